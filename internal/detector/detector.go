// Package detector hosts the marker aggregator: it owns the detection
// session lifecycle, accepts frames pushed by ingest sources or pulled from
// a Poller, and fans finalized markers out to subscribers.
package detector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/markerpose/internal/config"
	"github.com/banshee-data/markerpose/internal/markers"
	"github.com/banshee-data/markerpose/internal/monitoring"
	"github.com/banshee-data/markerpose/internal/timeutil"
)

// Update is the product of one detection cycle. Markers holds only the
// markers finalized in that cycle and may be empty.
type Update struct {
	SessionID string                 `json:"session_id"`
	Cycle     uint64                 `json:"cycle"`
	At        time.Time              `json:"at"`
	Markers   map[int]markers.Marker `json:"markers"`
}

// Pose is the most recent finalized pose of one marker.
type Pose struct {
	Marker markers.Marker `json:"marker"`
	Cycle  uint64         `json:"cycle"`
	At     time.Time      `json:"at"`
}

// Poller returns the latest raw observations from a source that must be
// asked rather than pushing frames itself.
type Poller interface {
	Poll(ctx context.Context) (map[int]markers.Marker, error)
}

// SizeSetter forwards the physical marker size to the observation source.
type SizeSetter interface {
	SetMarkerSize(metres float64) error
}

// Options configures a Detector. Zero values take defaults.
type Options struct {
	Tuning *config.TuningConfig // nil uses config defaults
	Clock  timeutil.Clock
	Poller Poller
	// LogOutput receives the markers ops stream and, when debug logging is
	// enabled, the diag stream. Nil means os.Stderr.
	LogOutput io.Writer
}

// Detector is safe for concurrent use.
type Detector struct {
	agg    *markers.Aggregator
	clock  timeutil.Clock
	poller Poller
	logOut io.Writer

	mu         sync.RWMutex
	tuning     *config.TuningConfig
	sessionID  string
	markerSize float64
	sizeSetter SizeSetter
	latest     map[int]Pose
	subs       map[string]chan Update
	observers  []SessionObserver

	cycle   atomic.Uint64
	dropped atomic.Uint64
}

// Stats is a snapshot of the detector and its aggregator.
type Stats struct {
	SessionID   string                  `json:"session_id,omitempty"`
	Detecting   bool                    `json:"detecting"`
	MarkerSize  float64                 `json:"marker_size"`
	Subscribers int                     `json:"subscribers"`
	Dropped     uint64                  `json:"dropped_updates"`
	Aggregator  markers.AggregatorStats `json:"aggregator"`
}

// New creates an idle Detector.
func New(opts Options) (*Detector, error) {
	tuning := config.EmptyTuningConfig()
	tuning.Merge(opts.Tuning)
	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}

	agg, err := markers.NewAggregator(markers.DetectionConfigFromTuning(tuning))
	if err != nil {
		return nil, err
	}

	d := &Detector{
		agg:        agg,
		clock:      opts.Clock,
		poller:     opts.Poller,
		logOut:     opts.LogOutput,
		tuning:     tuning,
		markerSize: tuning.GetMarkerSize(),
		latest:     make(map[int]Pose),
		subs:       make(map[string]chan Update),
	}
	if d.clock == nil {
		d.clock = timeutil.RealClock{}
	}
	if d.logOut == nil {
		d.logOut = os.Stderr
	}
	d.configureLogging(tuning.GetDebugLogging())
	return d, nil
}

func (d *Detector) configureLogging(debug bool) {
	w := markers.LogWriters{Ops: d.logOut}
	if debug {
		w.Diag = d.logOut
	}
	markers.SetLogWriters(w)
}

// SessionObserver is told when detection sessions begin and end. Calls
// are made synchronously, outside the detector lock.
type SessionObserver interface {
	SessionStarted(id string, behavior markers.Behavior, at time.Time)
	SessionEnded(id string, at time.Time)
}

// AddSessionObserver registers o for session lifecycle notifications.
func (d *Detector) AddSessionObserver(o SessionObserver) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// StartDetecting begins a new session with no accumulated evidence. It
// returns the session id and whether a new session was started.
func (d *Detector) StartDetecting() (string, bool) {
	d.mu.Lock()
	if !d.agg.Start() {
		id := d.sessionID
		d.mu.Unlock()
		return id, false
	}
	d.sessionID = uuid.NewString()
	d.latest = make(map[int]Pose)
	id := d.sessionID
	observers := append([]SessionObserver(nil), d.observers...)
	d.mu.Unlock()

	monitoring.Logf("detector: session %s started", id)
	behavior, at := d.agg.Behavior(), d.clock.Now()
	for _, o := range observers {
		o.SessionStarted(id, behavior, at)
	}
	return id, true
}

// StopDetecting ends the session and drops all buffered observations.
func (d *Detector) StopDetecting() bool {
	d.mu.Lock()
	if !d.agg.Stop() {
		d.mu.Unlock()
		return false
	}
	id := d.sessionID
	d.sessionID = ""
	observers := append([]SessionObserver(nil), d.observers...)
	d.mu.Unlock()

	monitoring.Logf("detector: session %s stopped after %d cycles", id, d.cycle.Load())
	at := d.clock.Now()
	for _, o := range observers {
		o.SessionEnded(id, at)
	}
	return true
}

// Clock returns the clock used to timestamp cycles and session events.
func (d *Detector) Clock() timeutil.Clock {
	return d.clock
}

// Detecting reports whether a session is active.
func (d *Detector) Detecting() bool {
	return d.agg.State() == markers.StateDetecting
}

// SessionID returns the active session id, or "" when idle.
func (d *Detector) SessionID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sessionID
}

// MarkerPositionBehavior returns the active completion behavior.
func (d *Detector) MarkerPositionBehavior() markers.Behavior {
	return d.agg.Behavior()
}

// SetMarkerPositionBehavior switches the completion behavior. Accumulated
// observations are discarded when the behavior changes.
func (d *Detector) SetMarkerPositionBehavior(b markers.Behavior) (bool, error) {
	changed, err := d.agg.SetBehavior(b)
	if err != nil || !changed {
		return changed, err
	}
	d.mu.Lock()
	s := string(b)
	d.tuning.Merge(&config.TuningConfig{MarkerPositionBehavior: &s})
	d.mu.Unlock()
	return true, nil
}

// SetSizeSetter installs the source that receives marker size changes. The
// current size is pushed immediately.
func (d *Detector) SetSizeSetter(s SizeSetter) error {
	d.mu.Lock()
	d.sizeSetter = s
	size := d.markerSize
	d.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.SetMarkerSize(size)
}

// MarkerSize returns the physical marker edge length in metres. Every
// marker id shares the same size.
func (d *Detector) MarkerSize() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.markerSize
}

// SetMarkerSize updates the physical marker size and forwards it to the
// size setter, if any. The size is kept only if forwarding succeeds.
func (d *Detector) SetMarkerSize(metres float64) error {
	if metres <= 0 {
		return fmt.Errorf("marker size must be positive, got %f", metres)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sizeSetter != nil {
		if err := d.sizeSetter.SetMarkerSize(metres); err != nil {
			return err
		}
	}
	d.markerSize = metres
	d.tuning.Merge(&config.TuningConfig{MarkerSize: &metres})
	return nil
}

// Params returns the active detection parameters.
func (d *Detector) Params() markers.DetectionConfig {
	return d.agg.Config()
}

// UpdateParams mutates the detection parameters in place.
func (d *Detector) UpdateParams(fn func(*markers.DetectionConfig)) error {
	if err := d.agg.UpdateConfig(fn); err != nil {
		return err
	}
	cfg := d.agg.Config()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tuning.Merge(tuningFromDetection(cfg))
	return nil
}

// Tuning returns a copy of the effective tuning configuration.
func (d *Detector) Tuning() *config.TuningConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := config.EmptyTuningConfig()
	out.Merge(d.tuning)
	return out
}

// ApplyTuning merges a partial tuning update. The update is validated as a
// whole before anything changes.
func (d *Detector) ApplyTuning(partial *config.TuningConfig) error {
	next := d.Tuning()
	next.Merge(partial)
	if err := next.Validate(); err != nil {
		return err
	}
	detection := markers.DetectionConfigFromTuning(next)
	if err := detection.Validate(); err != nil {
		return err
	}

	if partial.MarkerSize != nil && *partial.MarkerSize != d.MarkerSize() {
		if err := d.SetMarkerSize(*partial.MarkerSize); err != nil {
			return err
		}
	}
	if err := d.agg.UpdateConfig(func(c *markers.DetectionConfig) { *c = detection }); err != nil {
		return err
	}

	d.mu.Lock()
	d.tuning.Merge(partial)
	d.mu.Unlock()

	if partial.DebugLogging != nil {
		d.configureLogging(*partial.DebugLogging)
	}
	return nil
}

func tuningFromDetection(c markers.DetectionConfig) *config.TuningConfig {
	behavior := string(c.Behavior)
	return &config.TuningConfig{
		MarkerPositionBehavior:                   &behavior,
		RequiredObservations:                     &c.RequiredObservations,
		RequiredInlierCount:                      &c.RequiredInlierCount,
		MaximumMarkerSampleCount:                 &c.MaximumMarkerSampleCount,
		MaximumPositionDistanceStandardDeviation: &c.MaximumPositionDistanceStandardDeviation,
		MaximumRotationAngleStandardDeviation:    &c.MaximumRotationAngleStandardDeviation,
		MarkerInlierStandardDeviationThreshold:   &c.MarkerInlierStandardDeviationThreshold,
	}
}

// Submit runs one cycle over frame and publishes the result. It returns
// false without touching any state when no session is active. The session
// lock is held for the whole cycle.
func (d *Detector) Submit(frame map[int]markers.Marker) (Update, bool) {
	d.mu.Lock()
	if d.sessionID == "" {
		d.mu.Unlock()
		return Update{}, false
	}
	u := Update{
		SessionID: d.sessionID,
		Markers:   d.agg.ProcessFrame(frame),
		Cycle:     d.cycle.Add(1),
		At:        d.clock.Now(),
	}
	for id, m := range u.Markers {
		d.latest[id] = Pose{Marker: m, Cycle: u.Cycle, At: u.At}
	}
	d.mu.Unlock()

	d.publish(u)
	return u, true
}

// Latest returns the last finalized pose of every marker seen in the
// current or most recent session, in ascending id order.
func (d *Detector) Latest() []Pose {
	d.mu.RLock()
	defer d.mu.RUnlock()
	poses := make([]Pose, 0, len(d.latest))
	for _, p := range d.latest {
		poses = append(poses, p)
	}
	sort.Slice(poses, func(i, j int) bool { return poses[i].Marker.ID < poses[j].Marker.ID })
	return poses
}

// Subscribe registers a new update channel with the given buffer size.
// Updates are dropped for a subscriber whose buffer is full.
func (d *Detector) Subscribe(buffer int) (string, <-chan Update) {
	if buffer < 0 {
		buffer = 0
	}
	id := uuid.NewString()
	ch := make(chan Update, buffer)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscription.
func (d *Detector) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subs[id]; ok {
		close(ch)
		delete(d.subs, id)
	}
}

func (d *Detector) publish(u Update) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for id, ch := range d.subs {
		select {
		case ch <- u:
		default:
			if n := d.dropped.Add(1); n == 1 || n%100 == 0 {
				monitoring.Logf("detector: subscriber %s is behind, %d updates dropped in total", id, n)
			}
		}
	}
}

// Stats returns a snapshot of the detector.
func (d *Detector) Stats() Stats {
	d.mu.RLock()
	s := Stats{
		SessionID:   d.sessionID,
		MarkerSize:  d.markerSize,
		Subscribers: len(d.subs),
		Dropped:     d.dropped.Load(),
	}
	d.mu.RUnlock()
	s.Aggregator = d.agg.Stats()
	s.Detecting = s.Aggregator.State == markers.StateDetecting.String()
	return s
}

// ErrNoPoller is returned by Run when the detector has no Poller.
var ErrNoPoller = errors.New("detector: no poller configured")

// Run polls the configured Poller every poll interval while a session is
// active and submits each result. Interval changes take effect after the
// next tick. It returns when ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	if d.poller == nil {
		return ErrNoPoller
	}
	interval := d.Tuning().GetPollInterval()
	ticker := d.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if next := d.Tuning().GetPollInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
			if !d.Detecting() {
				continue
			}
			frame, err := d.poller.Poll(ctx)
			if err != nil {
				monitoring.Logf("detector: poll failed: %v", err)
				continue
			}
			d.Submit(frame)
		}
	}
}

// Close ends the session and closes every subscription.
func (d *Detector) Close() {
	d.StopDetecting()
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, ch := range d.subs {
		close(ch)
		delete(d.subs, id)
	}
}
