// Package store keeps a SQLite journal of navigation sessions.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dpup/wayfinder/internal/lib/geo"
	"github.com/dpup/wayfinder/internal/lib/routing"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

// Store wraps SQLite access for the session journal.
type Store struct {
	db *sql.DB
}

// Session is a journalled navigation session.
type Session struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Origin         geo.Point  `json:"origin"`
	Destination    geo.Point  `json:"destination"`
	DistanceMeters float64    `json:"distance_meters"`
	Steps          int        `json:"steps"`
	Summary        string     `json:"summary,omitempty"`
	EndReason      string     `json:"end_reason,omitempty"`
	// Path is the planned route geometry as a Google encoded polyline.
	Path string `json:"path,omitempty"`
}

// Event is a single journalled occurrence within a session.
type Event struct {
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			origin_lat REAL NOT NULL,
			origin_lng REAL NOT NULL,
			dest_lat REAL NOT NULL,
			dest_lng REAL NOT NULL,
			distance_m REAL NOT NULL,
			steps INTEGER NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			end_reason TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS session_events (
			id INTEGER PRIMARY KEY,
			session_id TEXT NOT NULL,
			at TEXT NOT NULL,
			kind TEXT NOT NULL,
			message TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);`,
		`CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id, id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SessionStarted records a new session.
func (s *Store) SessionStarted(ctx context.Context, id string, route routing.Route, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, origin_lat, origin_lng, dest_lat, dest_lng, distance_m, steps, summary, path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		at.UTC().Format(time.RFC3339Nano),
		route.Origin.Latitude, route.Origin.Longitude,
		route.Destination.Latitude, route.Destination.Longitude,
		route.TotalDistanceMeters,
		len(route.Steps),
		route.Summary,
		geo.EncodePolyline(route.Path()),
	)
	return err
}

// RecordEvent appends an event to a session.
func (s *Store) RecordEvent(ctx context.Context, id, kind, message string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_events (session_id, at, kind, message) VALUES (?, ?, ?, ?)`,
		id, at.UTC().Format(time.RFC3339Nano), kind, message,
	)
	return err
}

// SessionEnded marks a session finished.
func (s *Store) SessionEnded(ctx context.Context, id, reason string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ?, end_reason = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano), reason, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSessions returns the most recent sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, ended_at, origin_lat, origin_lng, dest_lat, dest_lng, distance_m, steps, summary, end_reason, path
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			sess      Session
			startedAt string
			endedAt   sql.NullString
		)
		if err := rows.Scan(&sess.ID, &startedAt, &endedAt,
			&sess.Origin.Latitude, &sess.Origin.Longitude,
			&sess.Destination.Latitude, &sess.Destination.Longitude,
			&sess.DistanceMeters, &sess.Steps, &sess.Summary, &sess.EndReason, &sess.Path); err != nil {
			return nil, err
		}
		if sess.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, err
		}
		if endedAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, endedAt.String)
			if err != nil {
				return nil, err
			}
			sess.EndedAt = &t
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Events returns a session's events in the order they were recorded.
func (s *Store) Events(ctx context.Context, id string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, at, kind, message FROM session_events WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev Event
			at string
		)
		if err := rows.Scan(&ev.SessionID, &at, &ev.Kind, &ev.Message); err != nil {
			return nil, err
		}
		if ev.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
