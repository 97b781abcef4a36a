package db

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/markerpose/internal/detector"
	"github.com/banshee-data/markerpose/internal/markers"
	"github.com/banshee-data/markerpose/internal/monitoring"
)

// Recorder writes detector sessions and finalized poses to the log. It
// implements detector.SessionObserver.
type Recorder struct {
	db *DB

	mu    sync.Mutex
	known map[string]bool

	written atomic.Uint64
	failed  atomic.Uint64
}

// RecorderStats counts pose writes since the recorder was created.
type RecorderStats struct {
	Written uint64 `json:"poses_written"`
	Failed  uint64 `json:"write_failures"`
}

func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db, known: make(map[string]bool)}
}

// Attach registers r with det and consumes its updates until ctx is
// cancelled or the detector closes the subscription.
func (r *Recorder) Attach(ctx context.Context, det *detector.Detector, buffer int) {
	det.AddSessionObserver(r)
	if id := det.SessionID(); id != "" {
		r.SessionStarted(id, det.MarkerPositionBehavior(), det.Clock().Now())
	}
	subID, updates := det.Subscribe(buffer)
	defer det.Unsubscribe(subID)
	r.Run(ctx, updates)
}

// Run writes every update from updates until ctx is done or the channel
// is closed.
func (r *Recorder) Run(ctx context.Context, updates <-chan detector.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			r.Record(u)
		}
	}
}

// Record writes the poses of one update, creating the session row first
// if the recorder has not seen it.
func (r *Recorder) Record(u detector.Update) {
	if len(u.Markers) == 0 {
		return
	}
	if !r.ensureSession(u.SessionID, "", u.At) {
		r.failed.Add(uint64(len(u.Markers)))
		return
	}
	if err := r.db.RecordPoses(u.SessionID, u.Cycle, u.At, u.Markers); err != nil {
		r.failed.Add(uint64(len(u.Markers)))
		monitoring.Logf("recorder: cycle %d: %v", u.Cycle, err)
		return
	}
	r.written.Add(uint64(len(u.Markers)))
}

func (r *Recorder) SessionStarted(id string, behavior markers.Behavior, at time.Time) {
	r.ensureSession(id, string(behavior), at)
}

func (r *Recorder) SessionEnded(id string, at time.Time) {
	if err := r.db.EndSession(id, at); err != nil {
		monitoring.Logf("recorder: %v", err)
	}
}

func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{Written: r.written.Load(), Failed: r.failed.Load()}
}

func (r *Recorder) ensureSession(id, behavior string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.known[id] {
		return true
	}
	if _, err := r.db.GetSession(id); err == nil {
		r.known[id] = true
		return true
	}
	if behavior == "" {
		behavior = "unknown"
	}
	if err := r.db.CreateSession(id, behavior, at); err != nil {
		monitoring.Logf("recorder: %v", err)
		return false
	}
	r.known[id] = true
	return true
}
