package markers

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBehavior(t *testing.T) {
	t.Parallel()

	b, err := ParseBehavior("stationary")
	require.NoError(t, err)
	assert.Equal(t, BehaviorStationary, b)

	b, err = ParseBehavior("moving")
	require.NoError(t, err)
	assert.Equal(t, BehaviorMoving, b)

	_, err = ParseBehavior("Stationary")
	assert.Error(t, err)
}

func TestNewStrategy(t *testing.T) {
	t.Parallel()

	moving := NewStrategy(testConfig(BehaviorMoving))
	require.IsType(t, &MovingStrategy{}, moving)
	assert.Equal(t, 5, moving.MaximumSampleCount())

	stationary := NewStrategy(testConfig(BehaviorStationary))
	require.IsType(t, &StationaryStrategy{}, stationary)
	assert.Equal(t, 15, stationary.MaximumSampleCount())
}

func TestMovingStrategyCompletesAtRequiredObservations(t *testing.T) {
	t.Parallel()

	s := &MovingStrategy{RequiredObservations: 3}
	obs := []Marker{at(1, 1, 0, 0), at(1, 2, 0, 0), at(1, 6, 0, 0), at(1, 7, 0, 0)}

	for n := 0; n <= len(obs); n++ {
		m, ok := s.TryCompleteDetection(obs[:n])
		if n < 3 {
			assert.False(t, ok, "n=%d", n)
			continue
		}
		require.True(t, ok, "n=%d", n)
		want := 0.0
		for _, o := range obs[:n] {
			want += o.Position.X
		}
		assert.InDelta(t, want/float64(n), m.Position.X, 1e-12)
	}
}

func TestStationaryStrategyCompletesTightCluster(t *testing.T) {
	t.Parallel()

	cfg := testConfig(BehaviorStationary)
	cfg.RequiredInlierCount = 4
	s := NewStrategy(cfg)

	cluster := tightCluster(1)
	_, ok := s.TryCompleteDetection(cluster[:4])
	assert.False(t, ok, "fewer than required observations")

	m, ok := s.TryCompleteDetection(cluster)
	require.True(t, ok)
	assert.InDelta(t, 0, m.Position.X, 1e-12)
	assert.InDelta(t, 0, m.Position.Y, 1e-12)
	assert.InDelta(t, 0, m.Position.Z, 1e-12)
	assert.Equal(t, Identity, m.Rotation)
}

func TestStationaryStrategyTooFewInliers(t *testing.T) {
	t.Parallel()

	s := &StationaryStrategy{
		RequiredObservations:  3,
		RequiredInlierCount:   6,
		SampleCapacity:        15,
		MaximumPositionStdDev: 100,
		MaximumRotationStdDev: 180,
		InlierStdDevThreshold: 2,
	}
	obs := append(tightCluster(1), at(1, 5, 0, 0))

	_, ok := s.TryCompleteDetection(obs)
	assert.False(t, ok, "one of six samples is an outlier")

	// The same five inliers satisfy a lower requirement.
	s.RequiredInlierCount = 5
	_, ok = s.TryCompleteDetection(obs)
	assert.True(t, ok)
}

func TestStationaryStrategyIgnoresSingleOutlier(t *testing.T) {
	t.Parallel()

	s := &StationaryStrategy{
		RequiredObservations:  5,
		RequiredInlierCount:   5,
		SampleCapacity:        15,
		MaximumPositionStdDev: 0.01,
		MaximumRotationStdDev: 0.75,
		InlierStdDevThreshold: 2,
	}

	clean, ok := s.TryCompleteDetection(tightCluster(1))
	require.True(t, ok)

	for _, pos := range []int{0, 2, 5} {
		obs := tightCluster(1)
		obs = append(obs[:pos], append([]Marker{at(1, 5, 0.3, -2)}, obs[pos:]...)...)

		withOutlier, ok := s.TryCompleteDetection(obs)
		require.True(t, ok, "outlier at %d", pos)
		assert.InDelta(t, 0, PositionDistance(clean, withOutlier), 1e-9, "outlier at %d", pos)
		assert.InDelta(t, 0, RotationAngle(clean, withOutlier), 1e-9)
	}
}

func TestStationaryStrategyRejectsWideSpread(t *testing.T) {
	t.Parallel()

	s := &StationaryStrategy{
		RequiredObservations:  5,
		RequiredInlierCount:   5,
		SampleCapacity:        15,
		MaximumPositionStdDev: 0.001,
		MaximumRotationStdDev: 0.75,
		InlierStdDevThreshold: 10,
	}
	obs := []Marker{at(1, 0, 0, 0), at(1, 0.1, 0, 0), at(1, 0.2, 0, 0), at(1, 0.3, 0, 0), at(1, 0.4, 0, 0)}

	_, ok := s.TryCompleteDetection(obs)
	assert.False(t, ok)

	s.MaximumPositionStdDev = 0.2
	m, ok := s.TryCompleteDetection(obs)
	require.True(t, ok)
	assert.InDelta(t, 0.2, m.Position.X, 1e-12)
}

func TestStationaryStrategyDiagnostics(t *testing.T) {
	var diag, trace bytes.Buffer
	SetLogWriters(LogWriters{Diag: &diag, Trace: &trace})
	defer SetLogWriters(LogWriters{})

	s := &StationaryStrategy{
		RequiredObservations:  5,
		RequiredInlierCount:   5,
		SampleCapacity:        15,
		MaximumPositionStdDev: 0.01,
		MaximumRotationStdDev: 0.75,
		InlierStdDevThreshold: 2,
	}
	_, ok := s.TryCompleteDetection(append(tightCluster(6), at(6, 5, 0, 0)))
	require.True(t, ok)

	assert.Contains(t, diag.String(), "Marker Id: 6 - calculated final marker position with 5 markers out of 6 available")
	assert.Contains(t, trace.String(), "Marker Id: 6 - outlier at (5.0000, 0.0000, 0.0000)")
}
