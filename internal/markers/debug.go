package markers

import (
	"fmt"
	"io"
	"log"
	"sync"
)

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer

	// MarkerIDs limits the per-marker diag and trace lines to these ids.
	// Empty logs every marker. Ops lines are never filtered.
	MarkerIDs []int
}

// logStreams is the active logger set. A nil logger disables its stream.
type logStreams struct {
	ops, diag, trace *log.Logger
	only             map[int]bool
}

var (
	logMu   sync.RWMutex
	streams logStreams
)

// SetLogWriters configures all three logging streams at once.
// Pass nil for any writer to disable that stream.
func SetLogWriters(w LogWriters) {
	next := logStreams{
		ops:   newLogger(w.Ops),
		diag:  newLogger(w.Diag),
		trace: newLogger(w.Trace),
	}
	if len(w.MarkerIDs) > 0 {
		next.only = make(map[int]bool, len(w.MarkerIDs))
		for _, id := range w.MarkerIDs {
			next.only[id] = true
		}
	}
	logMu.Lock()
	streams = next
	logMu.Unlock()
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, "[markers] ", log.LstdFlags|log.Lmicroseconds)
}

func current() logStreams {
	logMu.RLock()
	defer logMu.RUnlock()
	return streams
}

// forMarker returns l, or nil when id is filtered out.
func (s logStreams) forMarker(l *log.Logger, id int) *log.Logger {
	if l == nil || (s.only != nil && !s.only[id]) {
		return nil
	}
	return l
}

func printf(l *log.Logger, format string, args ...interface{}) {
	if l != nil {
		l.Printf(format, args...)
	}
}

func markerPrintf(l *log.Logger, id int, format string, args ...interface{}) {
	if l != nil {
		l.Printf("Marker Id: %d - %s", id, fmt.Sprintf(format, args...))
	}
}

// Opsf logs to the ops stream (lifecycle events, configuration changes, warnings).
func Opsf(format string, args ...interface{}) {
	printf(current().ops, format, args...)
}

// Diagf logs to the diag stream. Lines about a single marker go through
// markerDiagf so the id filter applies.
func Diagf(format string, args ...interface{}) {
	printf(current().diag, format, args...)
}

// markerDiagf logs a per-marker completion decision.
func markerDiagf(id int, format string, args ...interface{}) {
	s := current()
	markerPrintf(s.forMarker(s.diag, id), id, format, args...)
}

// markerTracef logs per-sample chatter for one marker.
func markerTracef(id int, format string, args ...interface{}) {
	s := current()
	markerPrintf(s.forMarker(s.trace, id), id, format, args...)
}

// diagEnabled reports whether diag lines for id would be written, so
// callers can skip computing values that only feed a log line.
func diagEnabled(id int) bool {
	s := current()
	return s.forMarker(s.diag, id) != nil
}

// traceEnabled is diagEnabled for the trace stream.
func traceEnabled(id int) bool {
	s := current()
	return s.forMarker(s.trace, id) != nil
}
