package markers

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// unitTolerance bounds how far |q| may drift from 1 before a rotation is
// considered unusable.
const unitTolerance = 1e-6

// Identity is the rotation reported when a producer supplies none.
var Identity = quat.Number{Real: 1}

// Marker is one pose of an identified fiducial: a single observation, or
// the averaged pose produced when detection completes.
type Marker struct {
	ID       int
	Position r3.Vec
	Rotation quat.Number
}

// NewMarker returns a Marker with its rotation normalized. A zero or
// non-finite rotation yields a Marker for which Valid reports false.
func NewMarker(id int, position r3.Vec, rotation quat.Number) Marker {
	return Marker{ID: id, Position: position, Rotation: normalize(rotation)}
}

// Valid reports whether the marker has a finite position and a unit rotation.
func (m Marker) Valid() bool {
	for _, v := range []float64{m.Position.X, m.Position.Y, m.Position.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if quat.IsNaN(m.Rotation) || quat.IsInf(m.Rotation) {
		return false
	}
	return math.Abs(quat.Abs(m.Rotation)-1) < unitTolerance
}

func (m Marker) withID(id int) Marker {
	m.ID = id
	return m
}

func (m Marker) String() string {
	return fmt.Sprintf("Marker(id=%d pos=(%.4f, %.4f, %.4f) rot=(%.4f, %.4f, %.4f, %.4f))",
		m.ID, m.Position.X, m.Position.Y, m.Position.Z,
		m.Rotation.Imag, m.Rotation.Jmag, m.Rotation.Kmag, m.Rotation.Real)
}
