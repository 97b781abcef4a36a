package markers

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func at(id int, x, y, z float64) Marker {
	return NewMarker(id, r3.Vec{X: x, Y: y, Z: z}, Identity)
}

func rotated(id int, x, y, z float64, q quat.Number) Marker {
	return NewMarker(id, r3.Vec{X: x, Y: y, Z: z}, q)
}

// tightCluster is five samples within 1mm of the origin.
func tightCluster(id int) []Marker {
	return []Marker{
		at(id, 0, 0, 0),
		at(id, 0.001, 0, 0),
		at(id, -0.001, 0, 0),
		at(id, 0, 0.001, 0),
		at(id, 0, -0.001, 0),
	}
}

func testConfig(b Behavior) DetectionConfig {
	return DetectionConfig{
		Behavior:                                 b,
		RequiredObservations:                     5,
		RequiredInlierCount:                      5,
		MaximumMarkerSampleCount:                 15,
		MaximumPositionDistanceStandardDeviation: 0.01,
		MaximumRotationAngleStandardDeviation:    0.75,
		MarkerInlierStandardDeviationThreshold:   1.5,
	}
}
