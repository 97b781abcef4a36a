// Package monitoring holds the replaceable logger shared by the service
// layers: api, db, detector and ingest.
package monitoring

import (
	"log"
	"sync"
)

var (
	mu   sync.RWMutex
	logf = log.Printf
)

// Logf writes through the current package logger. It defaults to log.Printf.
func Logf(format string, v ...interface{}) {
	mu.RLock()
	f := logf
	mu.RUnlock()
	f(format, v...)
}

// SetLogger replaces the package logger and returns the previous one so tests
// can restore it. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) (previous func(string, ...interface{})) {
	mu.Lock()
	defer mu.Unlock()
	previous = logf
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	logf = f
	return previous
}
