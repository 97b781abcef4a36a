package markers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestAverageMarkerIdenticalInputsExact(t *testing.T) {
	t.Parallel()

	q := RotationFromAxisAngle(r3.Vec{X: 0.3, Y: -1, Z: 0.2}, 63)
	m := rotated(9, 0.123456789, -4.2, 17.000001, q)

	for _, n := range []int{1, 2, 3, 7, 50} {
		ms := make([]Marker, n)
		for i := range ms {
			ms[i] = m
		}
		assert.Equal(t, m, AverageMarker(ms), "n=%d", n)
	}
}

func TestAverageMarkerPositionIsMean(t *testing.T) {
	t.Parallel()

	avg := AverageMarker([]Marker{at(2, 1, 0, 0), at(2, 2, 3, 0), at(2, 3, 0, 6)})
	assert.InDelta(t, 2, avg.Position.X, 1e-12)
	assert.InDelta(t, 1, avg.Position.Y, 1e-12)
	assert.InDelta(t, 2, avg.Position.Z, 1e-12)
	assert.Equal(t, 2, avg.ID)
}

func TestAverageMarkerRotationIncrementalSlerp(t *testing.T) {
	t.Parallel()

	a := Identity
	b := RotationFromAxisAngle(r3.Vec{Z: 1}, 60)
	c := RotationFromAxisAngle(r3.Vec{X: 1}, 30)

	want := Slerp(Slerp(a, b, 0.5), c, 1.0/3)
	got := AverageMarker([]Marker{rotated(1, 0, 0, 0, a), rotated(1, 0, 0, 0, b), rotated(1, 0, 0, 0, c)})
	assert.Equal(t, want, got.Rotation)

	// Two rotations about one axis average to the half angle.
	half := AverageMarker([]Marker{rotated(1, 0, 0, 0, a), rotated(1, 0, 0, 0, b)})
	assert.InDelta(t, 30, AngleDegrees(half.Rotation, a), 1e-6)
}

func TestAverageMarkerDoesNotModifyInputs(t *testing.T) {
	t.Parallel()

	ms := []Marker{at(1, 1, 1, 1), at(1, 3, 3, 3)}
	before := append([]Marker(nil), ms...)
	_ = AverageMarker(ms)
	assert.Equal(t, before, ms)
}

func TestAverageMarkerEmptyPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { AverageMarker(nil) })
	assert.Panics(t, func() {
		StandardDeviation([]float64{}, 0, func(v float64) float64 { return v })
	})
}

func TestStandardDeviation(t *testing.T) {
	t.Parallel()

	identity := func(v float64) float64 { return v }

	tests := []struct {
		name      string
		values    []float64
		reference float64
		want      float64
	}{
		{name: "identical values against their mean", values: []float64{3, 3, 3}, reference: 3, want: 0},
		{name: "population not sample", values: []float64{1, 3}, reference: 2, want: 1},
		{name: "classic", values: []float64{2, 4, 4, 4, 5, 5, 7, 9}, reference: 5, want: 2},
		{name: "single value", values: []float64{8}, reference: 8, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StandardDeviation(tt.values, tt.reference, identity)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestStandardDeviationsZeroOnlyWhenIdentical(t *testing.T) {
	t.Parallel()

	same := []Marker{at(1, 1, 2, 3), at(1, 1, 2, 3), at(1, 1, 2, 3)}
	pos, rot := StandardDeviations(same, AverageMarker(same))
	assert.Zero(t, pos)
	assert.Zero(t, rot)

	spread := []Marker{at(1, 0, 0, 0), at(1, 0, 0, 0), at(1, 0.5, 0, 0)}
	pos, rot = StandardDeviations(spread, AverageMarker(spread))
	assert.Greater(t, pos, 0.0)
	assert.Zero(t, rot)
}

func TestInlierSetRejectsFarSample(t *testing.T) {
	t.Parallel()

	ms := append(tightCluster(3), at(3, 5, 0, 0))
	inliers := InlierSet(ms, AverageMarker(ms), 2)

	require.Len(t, inliers, 5)
	assert.Equal(t, tightCluster(3), inliers, "input order is preserved")
}

func TestInlierSetZeroDeviationKeepsExactMatches(t *testing.T) {
	t.Parallel()

	ms := []Marker{at(1, 1, 1, 1), at(1, 1, 1, 1), at(1, 1, 1, 1)}
	assert.Len(t, InlierSet(ms, ms[0], 1.5), 3)
}

func TestInlierSetRotationOutlier(t *testing.T) {
	t.Parallel()

	var ms []Marker
	for i := 0; i < 5; i++ {
		ms = append(ms, rotated(1, 0, 0, 0, RotationFromAxisAngle(r3.Vec{Z: 1}, float64(i)*0.1)))
	}
	flipped := rotated(1, 0, 0, 0, RotationFromAxisAngle(r3.Vec{Z: 1}, 120))
	ms = append(ms, flipped)

	inliers := InlierSet(ms, AverageMarker(ms), 2)
	assert.Len(t, inliers, 5)
	assert.NotContains(t, inliers, flipped)
}
