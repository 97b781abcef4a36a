package markers

import (
	"fmt"
	"sort"
	"sync"
)

// State is the lifecycle state of an Aggregator.
type State int

const (
	StateIdle State = iota
	StateDetecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDetecting:
		return "detecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Aggregator merges per-cycle observation maps into per-id buffers and
// emits the markers whose strategy completed during that cycle.
// All methods are safe for concurrent use; each runs under one lock so
// cycles never interleave.
type Aggregator struct {
	mu       sync.Mutex
	state    State
	cfg      DetectionConfig
	strategy CompletionStrategy
	buffers  *BufferSet

	cycles      uint64
	completions uint64
	evictions   uint64
	rejected    uint64
}

// AggregatorStats is a point-in-time snapshot of an Aggregator.
type AggregatorStats struct {
	State       string      `json:"state"`
	Behavior    Behavior    `json:"behavior"`
	Cycles      uint64      `json:"cycles"`
	Completions uint64      `json:"completions"`
	Evictions   uint64      `json:"evictions"`
	Rejected    uint64      `json:"rejected_observations"`
	Buffered    map[int]int `json:"buffered_samples"`
}

// NewAggregator validates cfg and returns an idle Aggregator.
func NewAggregator(cfg DetectionConfig) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detection config: %w", err)
	}
	return &Aggregator{
		cfg:      cfg,
		strategy: NewStrategy(cfg),
		buffers:  NewBufferSet(),
	}, nil
}

// Start moves the aggregator to Detecting with empty buffers. It returns
// false if detection was already running.
func (a *Aggregator) Start() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateDetecting {
		return false
	}
	a.buffers.Reset()
	a.state = StateDetecting
	Opsf("detection started (behavior=%s)", a.cfg.Behavior)
	return true
}

// Stop drops every buffer and returns to Idle. It returns false if
// detection was not running.
func (a *Aggregator) Stop() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateIdle {
		return false
	}
	dropped := a.buffers.Len()
	a.buffers.Reset()
	a.state = StateIdle
	Opsf("detection stopped, dropped %d marker buffers", dropped)
	return true
}

// State returns the current lifecycle state.
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// ProcessFrame runs one aggregation cycle. The returned map is never nil
// and holds only the markers finalized during this cycle. Frames that
// arrive while Idle are discarded.
func (a *Aggregator) ProcessFrame(frame map[int]Marker) map[int]Marker {
	a.mu.Lock()
	defer a.mu.Unlock()

	completed := make(map[int]Marker)
	if a.state != StateDetecting {
		return completed
	}
	a.cycles++

	capacity := a.strategy.MaximumSampleCount()
	for _, id := range sortedKeys(frame) {
		m := frame[id]
		if !m.Valid() {
			a.rejected++
			markerDiagf(id, "dropping invalid observation %s", m)
			continue
		}
		a.evictions += uint64(a.buffers.Observe(m.withID(id), capacity))
	}

	for _, id := range a.buffers.IDs() {
		buf, ok := a.buffers.Buffer(id)
		if !ok || buf.Len() == 0 {
			continue
		}
		if m, ok := a.strategy.TryCompleteDetection(buf.Samples()); ok {
			completed[id] = m
			buf.Clear()
			a.completions++
		}
	}
	return completed
}

// Behavior returns the active marker position behavior.
func (a *Aggregator) Behavior() Behavior {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Behavior
}

// SetBehavior swaps the completion strategy. Accumulated buffers are
// dropped so samples gathered under one strategy are never judged by the
// other. It returns false if b is already active.
func (a *Aggregator) SetBehavior(b Behavior) (bool, error) {
	if _, err := ParseBehavior(string(b)); err != nil {
		return false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg.Behavior == b {
		return false, nil
	}
	a.cfg.Behavior = b
	a.strategy = NewStrategy(a.cfg)
	a.buffers.Reset()
	Opsf("marker position behavior set to %s", b)
	return true, nil
}

// Config returns a copy of the active parameters.
func (a *Aggregator) Config() DetectionConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// UpdateConfig applies fn to a copy of the parameters and installs the
// result if it validates. Buffers survive unless the behavior changed. A
// smaller capacity trims every buffer immediately, oldest samples first.
func (a *Aggregator) UpdateConfig(fn func(*DetectionConfig)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := a.cfg
	fn(&next)
	if err := next.Validate(); err != nil {
		return err
	}
	if next.Behavior != a.cfg.Behavior {
		a.buffers.Reset()
	}
	a.cfg = next
	a.strategy = NewStrategy(next)
	if n := a.buffers.Trim(a.strategy.MaximumSampleCount()); n > 0 {
		a.evictions += uint64(n)
		Diagf("trimmed %d samples to new capacity %d", n, a.strategy.MaximumSampleCount())
	}
	Opsf("detection parameters updated: %+v", next)
	return nil
}

// Stats returns counters and the per-id buffered sample counts.
func (a *Aggregator) Stats() AggregatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AggregatorStats{
		State:       a.state.String(),
		Behavior:    a.cfg.Behavior,
		Cycles:      a.cycles,
		Completions: a.completions,
		Evictions:   a.evictions,
		Rejected:    a.rejected,
		Buffered:    a.buffers.Counts(),
	}
}

func sortedKeys(frame map[int]Marker) []int {
	ids := make([]int, 0, len(frame))
	for id := range frame {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
