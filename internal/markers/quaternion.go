package markers

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// Above this |cos| the two rotations are close enough that normalized
	// linear interpolation replaces the trigonometric slerp.
	slerpLinearThreshold = 0.95

	// Dot products within angleEpsilon of 1 report a zero angle; acos is
	// ill-conditioned there.
	angleEpsilon = 1e-6
)

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		nan := math.NaN()
		return quat.Number{Real: nan, Imag: nan, Jmag: nan, Kmag: nan}
	}
	if n == 1 {
		return q
	}
	return quat.Scale(1/n, q)
}

func dot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

// Slerp interpolates from a toward b by t, clamped to [0, 1], along the
// shorter arc. The result is normalized.
func Slerp(a, b quat.Number, t float64) quat.Number {
	if t <= 0 {
		return a
	}
	if t > 1 {
		t = 1
	}
	if a == b {
		return a
	}

	cos := dot(a, b)
	if cos < 0 {
		b = quat.Scale(-1, b)
		cos = -cos
	}
	if cos >= slerpLinearThreshold {
		return normalize(quat.Add(quat.Scale(1-t, a), quat.Scale(t, b)))
	}

	theta := math.Acos(cos)
	sinTheta := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sinTheta
	wb := math.Sin(t*theta) / sinTheta
	return normalize(quat.Add(quat.Scale(wa, a), quat.Scale(wb, b)))
}

// AngleDegrees returns the angular distance between two unit rotations in
// degrees, in [0, 180].
func AngleDegrees(a, b quat.Number) float64 {
	d := math.Min(math.Abs(dot(a, b)), 1)
	if d > 1-angleEpsilon {
		return 0
	}
	return 2 * math.Acos(d) * 180 / math.Pi
}

// RotationFromAxisAngle builds a unit rotation of degrees around axis.
func RotationFromAxisAngle(axis r3.Vec, degrees float64) quat.Number {
	return normalize(quat.Number(r3.NewRotation(degrees*math.Pi/180, axis)))
}
