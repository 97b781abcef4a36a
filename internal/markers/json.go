package markers

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// wireMarker is the JSON form of a Marker. Rotation is ordered x, y, z, w
// and may be omitted, in which case the identity rotation is used.
type wireMarker struct {
	ID       int         `json:"id"`
	Position [3]float64  `json:"position"`
	Rotation *[4]float64 `json:"rotation,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m Marker) MarshalJSON() ([]byte, error) {
	rot := [4]float64{m.Rotation.Imag, m.Rotation.Jmag, m.Rotation.Kmag, m.Rotation.Real}
	return json.Marshal(wireMarker{
		ID:       m.ID,
		Position: [3]float64{m.Position.X, m.Position.Y, m.Position.Z},
		Rotation: &rot,
	})
}

// UnmarshalJSON implements json.Unmarshaler. The rotation is normalized;
// a zero rotation decodes to a Marker for which Valid reports false.
func (m *Marker) UnmarshalJSON(data []byte) error {
	var w wireMarker
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode marker: %w", err)
	}
	rot := Identity
	if w.Rotation != nil {
		rot = quat.Number{Imag: w.Rotation[0], Jmag: w.Rotation[1], Kmag: w.Rotation[2], Real: w.Rotation[3]}
	}
	*m = NewMarker(w.ID, r3.Vec{X: w.Position[0], Y: w.Position[1], Z: w.Position[2]}, rot)
	return nil
}
