// Package api exposes the detector and the pose log over HTTP.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/markerpose/internal/db"
	"github.com/banshee-data/markerpose/internal/detector"
)

// ANSI escape codes for the request log
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

type Server struct {
	det      *detector.Detector
	db       *db.DB
	recorder *db.Recorder
}

// NewServer builds the API over det. database and recorder may be nil, in
// which case the pose log routes report that persistence is disabled.
func NewServer(det *detector.Detector, database *db.DB, recorder *db.Recorder) *Server {
	return &Server{det: det, db: database, recorder: recorder}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes. Admin routes under /debug/ are added
// when a pose log is attached.
func (s *Server) ServeMux() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/detection/start", s.handleStart)
	mux.HandleFunc("/api/detection/stop", s.handleStop)
	mux.HandleFunc("/api/behavior", s.handleBehavior)
	mux.HandleFunc("/api/params", s.handleParams)
	mux.HandleFunc("/api/marker-size", s.handleMarkerSize)
	mux.HandleFunc("/api/markers/latest", s.handleLatest)
	mux.HandleFunc("/api/poses", s.handlePoses)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/debug/charts/poses", s.handlePoseChart)
	if s.db != nil {
		if err := s.db.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}
