package api

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/banshee-data/markerpose/internal/db"
	"github.com/banshee-data/markerpose/internal/httputil"
	"github.com/banshee-data/markerpose/internal/monitor"
)

const errPoseLogDisabled = "pose log is not enabled"

// parsePoseFilter reads session_id, marker_id and limit from q.
func parsePoseFilter(q url.Values) (db.PoseFilter, error) {
	f := db.PoseFilter{SessionID: q.Get("session_id")}
	if v := q.Get("marker_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("invalid marker_id %q", v)
		}
		f.MarkerID = &id
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	return f, nil
}

func (s *Server) handlePoses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, errPoseLogDisabled)
		return
	}
	f, err := parsePoseFilter(r.URL.Query())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	poses, err := s.db.ListPoses(f)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, poses)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, errPoseLogDisabled)
		return
	}
	sessions, err := s.db.ListSessions()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, sessions)
}

// handlePoseChart renders logged poses as an HTML scatter. Without a
// session_id it shows the active session, if any.
func (s *Server) handlePoseChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.NotFound(w, errPoseLogDisabled)
		return
	}
	f, err := parsePoseFilter(r.URL.Query())
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if f.SessionID == "" {
		f.SessionID = s.det.SessionID()
	}
	poses, err := s.db.ListPoses(f)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	subtitle := fmt.Sprintf("session=%s poses=%d", f.SessionID, len(poses))
	if f.SessionID == "" {
		subtitle = fmt.Sprintf("all sessions poses=%d", len(poses))
	}
	var buf bytes.Buffer
	if err := monitor.RenderPoseChart(&buf, poses, subtitle); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
