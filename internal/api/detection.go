package api

import (
	"net/http"

	"github.com/banshee-data/markerpose/internal/config"
	"github.com/banshee-data/markerpose/internal/db"
	"github.com/banshee-data/markerpose/internal/detector"
	"github.com/banshee-data/markerpose/internal/httputil"
	"github.com/banshee-data/markerpose/internal/markers"
	"github.com/banshee-data/markerpose/internal/version"
)

type statusResponse struct {
	Version  string            `json:"version"`
	Detector detector.Stats    `json:"detector"`
	Recorder *db.RecorderStats `json:"recorder,omitempty"`
}

type startResponse struct {
	SessionID string `json:"session_id"`
	Started   bool   `json:"started"`
}

type stopResponse struct {
	Stopped bool `json:"stopped"`
}

type behaviorRequest struct {
	Behavior string `json:"behavior"`
}

type behaviorResponse struct {
	Behavior markers.Behavior `json:"behavior"`
	Changed  bool             `json:"changed,omitempty"`
}

type markerSizeRequest struct {
	MarkerSize *float64 `json:"marker_size"`
}

type markerSizeResponse struct {
	MarkerSize float64 `json:"marker_size"`
}

type latestResponse struct {
	SessionID string          `json:"session_id,omitempty"`
	Poses     []detector.Pose `json:"poses"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := statusResponse{Version: version.String(), Detector: s.det.Stats()}
	if s.recorder != nil {
		stats := s.recorder.Stats()
		resp.Recorder = &stats
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	id, started := s.det.StartDetecting()
	httputil.WriteJSONOK(w, startResponse{SessionID: id, Started: started})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, stopResponse{Stopped: s.det.StopDetecting()})
}

func (s *Server) handleBehavior(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, behaviorResponse{Behavior: s.det.MarkerPositionBehavior()})
	case http.MethodPut:
		var req behaviorRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		b, err := markers.ParseBehavior(req.Behavior)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		changed, err := s.det.SetMarkerPositionBehavior(b)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, behaviorResponse{Behavior: b, Changed: changed})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.det.Tuning())
	case http.MethodPost:
		partial := config.EmptyTuningConfig()
		if err := httputil.DecodeJSON(r, partial); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := s.det.ApplyTuning(partial); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, s.det.Tuning())
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleMarkerSize(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, markerSizeResponse{MarkerSize: s.det.MarkerSize()})
	case http.MethodPost:
		var req markerSizeRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if req.MarkerSize == nil || *req.MarkerSize <= 0 {
			httputil.BadRequest(w, "marker_size must be a positive number of metres")
			return
		}
		if err := s.det.SetMarkerSize(*req.MarkerSize); err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, markerSizeResponse{MarkerSize: s.det.MarkerSize()})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, latestResponse{SessionID: s.det.SessionID(), Poses: s.det.Latest()})
}
