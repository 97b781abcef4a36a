package markers

import (
	"math"
	"sort"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetectingAggregator(t *testing.T, cfg DetectionConfig) *Aggregator {
	t.Helper()
	a, err := NewAggregator(cfg)
	require.NoError(t, err)
	require.True(t, a.Start())
	return a
}

func frameOf(ms ...Marker) map[int]Marker {
	frame := make(map[int]Marker, len(ms))
	for _, m := range ms {
		frame[m.ID] = m
	}
	return frame
}

var approxMarker = cmpopts.EquateApprox(0, 1e-12)

func TestAggregatorMovingScenario(t *testing.T) {
	t.Parallel()

	cfg := testConfig(BehaviorMoving)
	cfg.RequiredObservations = 3
	a := newDetectingAggregator(t, cfg)

	out := a.ProcessFrame(frameOf(at(7, 0, 0, 0)))
	assert.Empty(t, out)
	assert.NotNil(t, out)

	out = a.ProcessFrame(frameOf(at(7, 0, 0, 0.02)))
	assert.Empty(t, out)

	out = a.ProcessFrame(frameOf(at(7, 0, 0, -0.02)))
	want := map[int]Marker{7: at(7, 0, 0, 0)}
	if diff := cmp.Diff(want, out, approxMarker); diff != "" {
		t.Errorf("third cycle mismatch (-want +got):\n%s", diff)
	}

	stats := a.Stats()
	assert.Equal(t, uint64(3), stats.Cycles)
	assert.Equal(t, uint64(1), stats.Completions)
	assert.Equal(t, map[int]int{7: 0}, stats.Buffered, "buffer is cleared but the id stays tracked")
}

func TestAggregatorStationaryScenario(t *testing.T) {
	t.Parallel()

	cfg := testConfig(BehaviorStationary)
	cfg.RequiredInlierCount = 4
	a := newDetectingAggregator(t, cfg)

	cluster := tightCluster(11)
	for i, m := range cluster {
		out := a.ProcessFrame(frameOf(m))
		if i < len(cluster)-1 {
			assert.Empty(t, out, "sample %d", i)
			continue
		}
		require.Contains(t, out, 11)
		want := AverageMarker(cluster)
		if diff := cmp.Diff(want, out[11], approxMarker); diff != "" {
			t.Errorf("completed pose mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, Identity, out[11].Rotation)
	}
}

func TestAggregatorStopStartDiscardsEvidence(t *testing.T) {
	t.Parallel()

	cfg := testConfig(BehaviorMoving)
	cfg.RequiredObservations = 3
	a := newDetectingAggregator(t, cfg)

	a.ProcessFrame(frameOf(at(3, 0, 0, 0)))
	a.ProcessFrame(frameOf(at(3, 0, 0, 0)))
	assert.Equal(t, map[int]int{3: 2}, a.Stats().Buffered)

	require.True(t, a.Stop())
	assert.Equal(t, StateIdle, a.State())
	assert.Empty(t, a.Stats().Buffered, "stop drops buffers entirely")
	require.True(t, a.Start())

	assert.Empty(t, a.ProcessFrame(frameOf(at(3, 0, 0, 0))))
	assert.Empty(t, a.ProcessFrame(frameOf(at(3, 0, 0, 0))))
	assert.Contains(t, a.ProcessFrame(frameOf(at(3, 0, 0, 0))), 3)
}

func TestAggregatorStartStopIdempotent(t *testing.T) {
	t.Parallel()

	a, err := NewAggregator(testConfig(BehaviorMoving))
	require.NoError(t, err)

	assert.Equal(t, StateIdle, a.State())
	assert.False(t, a.Stop())
	assert.True(t, a.Start())
	assert.False(t, a.Start())
	assert.Equal(t, StateDetecting, a.State())
	assert.Equal(t, "detecting", a.State().String())
	assert.True(t, a.Stop())
	assert.False(t, a.Stop())
}

func TestAggregatorIgnoresFramesWhileIdle(t *testing.T) {
	t.Parallel()

	cfg := testConfig(BehaviorMoving)
	cfg.RequiredObservations = 1
	a, err := NewAggregator(cfg)
	require.NoError(t, err)

	out := a.ProcessFrame(frameOf(at(1, 0, 0, 0)))
	assert.NotNil(t, out)
	assert.Empty(t, out)

	stats := a.Stats()
	assert.Zero(t, stats.Cycles)
	assert.Empty(t, stats.Buffered)
	assert.Equal(t, "idle", stats.State)
}

func TestAggregatorBehaviorSwitchDropsBuffers(t *testing.T) {
	t.Parallel()

	a := newDetectingAggregator(t, testConfig(BehaviorStationary))
	for i := 0; i < 4; i++ {
		a.ProcessFrame(frameOf(at(1, 0, 0, 0)))
	}
	assert.Equal(t, map[int]int{1: 4}, a.Stats().Buffered)

	changed, err := a.SetBehavior(BehaviorMoving)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, BehaviorMoving, a.Behavior())
	assert.Empty(t, a.Stats().Buffered)

	// Four stationary samples would have completed a moving window of five.
	assert.Empty(t, a.ProcessFrame(frameOf(at(1, 0, 0, 0))))
	assert.Equal(t, map[int]int{1: 1}, a.Stats().Buffered)

	changed, err = a.SetBehavior(BehaviorMoving)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, map[int]int{1: 1}, a.Stats().Buffered, "no-op switch keeps buffers")

	_, err = a.SetBehavior("sideways")
	assert.Error(t, err)
}

func TestAggregatorSkipsInvalidMarkers(t *testing.T) {
	t.Parallel()

	cfg := testConfig(BehaviorMoving)
	cfg.RequiredObservations = 1
	a := newDetectingAggregator(t, cfg)

	out := a.ProcessFrame(map[int]Marker{
		1: at(1, math.NaN(), 0, 0),
		2: {ID: 2},
		3: at(3, 1, 2, 3),
	})

	assert.Equal(t, []int{3}, keys(out))
	stats := a.Stats()
	assert.Equal(t, uint64(2), stats.Rejected)
	assert.Equal(t, map[int]int{3: 0}, stats.Buffered)
}

func TestAggregatorUsesMapKeyAsID(t *testing.T) {
	t.Parallel()

	cfg := testConfig(BehaviorMoving)
	cfg.RequiredObservations = 1
	a := newDetectingAggregator(t, cfg)

	out := a.ProcessFrame(map[int]Marker{5: at(99, 1, 0, 0)})
	require.Contains(t, out, 5)
	assert.Equal(t, 5, out[5].ID)
}

func TestAggregatorRetriesStaleBuffers(t *testing.T) {
	t.Parallel()

	cfg := testConfig(BehaviorStationary)
	cfg.MaximumPositionDistanceStandardDeviation = 0.001
	cfg.MarkerInlierStandardDeviationThreshold = 10
	a := newDetectingAggregator(t, cfg)

	for i := 0; i < 5; i++ {
		out := a.ProcessFrame(frameOf(at(2, float64(i)*0.1, 0, 0)))
		assert.Empty(t, out)
	}

	// An empty frame neither crashes nor resets state.
	assert.Empty(t, a.ProcessFrame(map[int]Marker{}))
	assert.Empty(t, a.ProcessFrame(nil))
	assert.Equal(t, map[int]int{2: 5}, a.Stats().Buffered)

	require.NoError(t, a.UpdateConfig(func(c *DetectionConfig) {
		c.MaximumPositionDistanceStandardDeviation = 0.2
	}))

	out := a.ProcessFrame(map[int]Marker{})
	require.Contains(t, out, 2)
	assert.InDelta(t, 0.2, out[2].Position.X, 1e-12)
}

func TestAggregatorUpdateConfig(t *testing.T) {
	t.Parallel()

	a := newDetectingAggregator(t, testConfig(BehaviorStationary))
	for i := 0; i < 3; i++ {
		a.ProcessFrame(frameOf(at(4, 0, 0, 0), at(8, 1, 1, 1)))
	}

	err := a.UpdateConfig(func(c *DetectionConfig) { c.RequiredObservations = 0 })
	require.Error(t, err)
	assert.Equal(t, 5, a.Config().RequiredObservations, "rejected update leaves config untouched")

	require.NoError(t, a.UpdateConfig(func(c *DetectionConfig) { c.RequiredObservations = 6 }))
	assert.Equal(t, 6, a.Config().RequiredObservations)
	assert.Equal(t, map[int]int{4: 3, 8: 3}, a.Stats().Buffered, "buffers survive parameter changes")

	require.NoError(t, a.UpdateConfig(func(c *DetectionConfig) { c.Behavior = BehaviorMoving }))
	assert.Empty(t, a.Stats().Buffered, "behavior change through UpdateConfig also drops buffers")
}

func TestAggregatorCapacityFollowsStrategy(t *testing.T) {
	t.Parallel()

	cfg := testConfig(BehaviorStationary)
	cfg.MaximumMarkerSampleCount = 8
	cfg.MaximumPositionDistanceStandardDeviation = 0
	cfg.MarkerInlierStandardDeviationThreshold = 10
	a := newDetectingAggregator(t, cfg)

	for i := 0; i < 20; i++ {
		assert.Empty(t, a.ProcessFrame(frameOf(at(1, float64(i), 0, 0))))
	}
	stats := a.Stats()
	assert.Equal(t, map[int]int{1: 8}, stats.Buffered)
	assert.Equal(t, uint64(12), stats.Evictions)
}

func TestAggregatorUpdateConfigTrimsBuffers(t *testing.T) {
	t.Parallel()

	cfg := testConfig(BehaviorStationary)
	cfg.MaximumPositionDistanceStandardDeviation = 0
	cfg.MarkerInlierStandardDeviationThreshold = 10
	a := newDetectingAggregator(t, cfg)

	for i := 0; i < 12; i++ {
		assert.Empty(t, a.ProcessFrame(frameOf(at(1, float64(i), 0, 0))))
	}
	require.Equal(t, map[int]int{1: 12}, a.Stats().Buffered)

	require.NoError(t, a.UpdateConfig(func(c *DetectionConfig) { c.MaximumMarkerSampleCount = 6 }))
	assert.Empty(t, a.ProcessFrame(frameOf()))

	stats := a.Stats()
	assert.Equal(t, map[int]int{1: 6}, stats.Buffered)
	assert.Equal(t, uint64(6), stats.Evictions)
}

func TestNewAggregatorRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(BehaviorMoving)
	cfg.RequiredObservations = 0
	_, err := NewAggregator(cfg)
	assert.Error(t, err)
}

func TestAggregatorConcurrentFrames(t *testing.T) {
	t.Parallel()

	cfg := testConfig(BehaviorMoving)
	cfg.RequiredObservations = 1
	a := newDetectingAggregator(t, cfg)

	const workers, frames = 8, 100
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < frames; i++ {
				out := a.ProcessFrame(frameOf(at(id, float64(i), 0, 0)))
				mu.Lock()
				total += len(out)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	stats := a.Stats()
	assert.Equal(t, uint64(workers*frames), stats.Cycles)
	assert.Equal(t, workers*frames, total)
	assert.Equal(t, uint64(total), stats.Completions)
}

func keys(m map[int]Marker) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
