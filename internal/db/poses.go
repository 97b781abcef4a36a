package db

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/markerpose/internal/markers"
)

// DefaultPoseLimit caps ListPoses when the filter sets no limit.
const DefaultPoseLimit = 1000

// PoseRecord is one finalized marker pose as stored in the log.
type PoseRecord struct {
	SessionID  string         `json:"session_id"`
	Cycle      uint64         `json:"cycle"`
	Marker     markers.Marker `json:"marker"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// PoseFilter narrows ListPoses. Zero fields do not filter.
type PoseFilter struct {
	SessionID string
	MarkerID  *int
	Limit     int
}

// RecordPoses writes every marker finalized in one cycle in a single
// transaction. An empty map is a no-op.
func (db *DB) RecordPoses(sessionID string, cycle uint64, at time.Time, poses map[int]markers.Marker) error {
	if len(poses) == 0 {
		return nil
	}

	ids := make([]int, 0, len(poses))
	for id := range poses {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin pose insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO poses (session_id, cycle, marker_id, x, y, z, qx, qy, qz, qw, recorded_unix_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare pose insert: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		m := poses[id]
		if _, err := stmt.Exec(
			sessionID, int64(cycle), id,
			m.Position.X, m.Position.Y, m.Position.Z,
			m.Rotation.Imag, m.Rotation.Jmag, m.Rotation.Kmag, m.Rotation.Real,
			at.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert pose for marker %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// ListPoses returns logged poses newest first.
func (db *DB) ListPoses(f PoseFilter) ([]PoseRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.MarkerID != nil {
		where = append(where, "marker_id = ?")
		args = append(args, *f.MarkerID)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultPoseLimit
	}

	query := `SELECT session_id, cycle, marker_id, x, y, z, qx, qy, qz, qw, recorded_unix_ns FROM poses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY recorded_unix_ns DESC, pose_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list poses: %w", err)
	}
	defer rows.Close()

	records := []PoseRecord{}
	for rows.Next() {
		var (
			r          PoseRecord
			cycle      int64
			id         int
			pos        r3.Vec
			rot        quat.Number
			recordedNs int64
		)
		if err := rows.Scan(&r.SessionID, &cycle, &id,
			&pos.X, &pos.Y, &pos.Z,
			&rot.Imag, &rot.Jmag, &rot.Kmag, &rot.Real,
			&recordedNs); err != nil {
			return nil, fmt.Errorf("scan pose: %w", err)
		}
		r.Cycle = uint64(cycle)
		r.Marker = markers.Marker{ID: id, Position: pos, Rotation: rot}
		r.RecordedAt = time.Unix(0, recordedNs).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}
