package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session is one StartDetecting..StopDetecting span.
type Session struct {
	ID        string     `json:"session_id"`
	Behavior  string     `json:"behavior"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	PoseCount int        `json:"pose_count"`
}

// CreateSession inserts a new open session.
func (db *DB) CreateSession(id, behavior string, at time.Time) error {
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, behavior, started_unix_ns) VALUES (?, ?, ?)`,
		id, behavior, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}
	return nil
}

// EndSession stamps the end time of an open session. Ending a session
// that was already ended keeps the first end time.
func (db *DB) EndSession(id string, at time.Time) error {
	res, err := db.Exec(
		`UPDATE sessions SET ended_unix_ns = COALESCE(ended_unix_ns, ?) WHERE session_id = ?`,
		at.UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("end session %s: %w", id, ErrSessionNotFound)
	}
	return nil
}

// GetSession returns a single session with its pose count.
func (db *DB) GetSession(id string) (*Session, error) {
	row := db.QueryRow(sessionQuery+` WHERE s.session_id = ? GROUP BY s.session_id`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return s, nil
}

// ListSessions returns sessions newest first.
func (db *DB) ListSessions() ([]Session, error) {
	rows, err := db.Query(sessionQuery + ` GROUP BY s.session_id ORDER BY s.started_unix_ns DESC, s.session_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

const sessionQuery = `
	SELECT s.session_id, s.behavior, s.started_unix_ns, s.ended_unix_ns, COUNT(p.pose_id)
	FROM sessions s
	LEFT JOIN poses p ON p.session_id = s.session_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s       Session
		started int64
		ended   sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Behavior, &started, &ended, &s.PoseCount); err != nil {
		return nil, err
	}
	s.StartedAt = time.Unix(0, started).UTC()
	if ended.Valid {
		t := time.Unix(0, ended.Int64).UTC()
		s.EndedAt = &t
	}
	return &s, nil
}
