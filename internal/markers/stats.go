package markers

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// AverageMarker returns the mean pose of ms. The position is the arithmetic
// mean. The rotation is an incremental slerp mean: starting from the first
// rotation, the running mean is blended toward the i-th rotation with weight
// 1/(i+1). The rotation result therefore depends on input order.
// The returned ID is that of the last input.
//
// AverageMarker panics if ms is empty.
func AverageMarker(ms []Marker) Marker {
	if len(ms) == 0 {
		panic("markers: AverageMarker of empty sequence")
	}

	var pos r3.Vec
	rotations := make([]quat.Number, 0, len(ms))
	id := -1
	for i, m := range ms {
		// Running mean keeps identical inputs exact.
		pos = r3.Add(pos, r3.Scale(1/float64(i+1), r3.Sub(m.Position, pos)))
		rotations = append(rotations, m.Rotation)
		id = m.ID
	}

	return Marker{ID: id, Position: pos, Rotation: averageRotation(rotations)}
}

func averageRotation(qs []quat.Number) quat.Number {
	mean := qs[0]
	for i := 1; i < len(qs); i++ {
		mean = Slerp(mean, qs[i], 1/float64(i+1))
	}
	return mean
}

// StandardDeviation returns the population standard deviation of
// scalar(v) - scalar(reference) over values.
//
// StandardDeviation panics if values is empty.
func StandardDeviation[T any](values []T, reference T, scalar func(T) float64) float64 {
	if len(values) == 0 {
		panic("markers: StandardDeviation of empty sequence")
	}
	ref := scalar(reference)
	sum := 0.0
	for _, v := range values {
		delta := scalar(v) - ref
		sum += delta * delta
	}
	return math.Sqrt(sum / float64(len(values)))
}

// PositionDistance is the Euclidean distance between two marker positions.
func PositionDistance(a, b Marker) float64 {
	return r3.Norm(r3.Sub(a.Position, b.Position))
}

// RotationAngle is the angular distance between two marker rotations, in degrees.
func RotationAngle(a, b Marker) float64 {
	return AngleDegrees(a.Rotation, b.Rotation)
}

// StandardDeviations returns the position-distance and rotation-angle
// standard deviations of ms measured against reference.
func StandardDeviations(ms []Marker, reference Marker) (position, rotation float64) {
	position = StandardDeviation(ms, reference, func(m Marker) float64 {
		return PositionDistance(m, reference)
	})
	rotation = StandardDeviation(ms, reference, func(m Marker) float64 {
		return RotationAngle(m, reference)
	})
	return position, rotation
}

// InlierSet returns the markers of ms whose position distance and rotation
// angle from reference both fall inside threshold standard deviations.
// Both standard deviations are computed once over the whole of ms. Input
// order is preserved.
func InlierSet(ms []Marker, reference Marker, threshold float64) []Marker {
	return partition(ms, reference, threshold).inliers
}

type inlierPartition struct {
	inliers     []Marker
	outliers    []Marker
	positionStd float64
	rotationStd float64
}

func partition(ms []Marker, reference Marker, threshold float64) inlierPartition {
	p := inlierPartition{inliers: make([]Marker, 0, len(ms))}
	p.positionStd, p.rotationStd = StandardDeviations(ms, reference)
	maxDistance := threshold * p.positionStd
	maxAngle := threshold * p.rotationStd
	for _, m := range ms {
		if withinBand(PositionDistance(m, reference), maxDistance) &&
			withinBand(RotationAngle(m, reference), maxAngle) {
			p.inliers = append(p.inliers, m)
		} else {
			p.outliers = append(p.outliers, m)
		}
	}
	return p
}

// withinBand is a strict comparison, except that an exact match is always
// inside: with a zero deviation every sample sits on the reference and the
// band collapses to zero width.
func withinBand(deviation, limit float64) bool {
	return deviation == 0 || deviation < limit
}
