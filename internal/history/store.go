// Package history records connection sessions in a local sqlite database:
// when each attempt started, when it connected, and how it ended.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bennjii/reseda"
)

// Session is one connection attempt and its outcome.
type Session struct {
	ConnectionID string
	Location     string
	Server       string
	State        reseda.ConnectionState
	Message      string
	StartedAt    time.Time
	CompletedAt  time.Time
	EndedAt      time.Time
}

// ConnectDuration is the time from start to connected, or zero if the session
// never connected.
func (s Session) ConnectDuration() time.Duration {
	if s.StartedAt.IsZero() || s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// Store is a sqlite-backed session log.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set history db journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set history db busy timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
	connection_id TEXT PRIMARY KEY,
	location TEXT NOT NULL DEFAULT '',
	server TEXT NOT NULL DEFAULT '',
	state INTEGER NOT NULL DEFAULT 0,
	message TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL DEFAULT '',
	completed_at TEXT NOT NULL DEFAULT '',
	ended_at TEXT NOT NULL DEFAULT ''
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sessions schema: %w", err)
	}

	return &Store{db: db, log: slog.With("component", "history")}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// MarkStarted records the start of an attempt. Failures are logged; history
// never blocks a connection.
func (s *Store) MarkStarted(ctx context.Context, connectionID string, at time.Time) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (connection_id, started_at) VALUES (?, ?)
		 ON CONFLICT(connection_id) DO UPDATE SET started_at = excluded.started_at`,
		connectionID, formatTime(at),
	)
	if err != nil {
		s.log.Warn("failed to record session start", "connection_id", connectionID, "err", err)
	}
}

// MarkCompleted records when an attempt reached Connected.
func (s *Store) MarkCompleted(ctx context.Context, connectionID string, at time.Time) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (connection_id, completed_at) VALUES (?, ?)
		 ON CONFLICT(connection_id) DO UPDATE SET completed_at = excluded.completed_at`,
		connectionID, formatTime(at),
	)
	if err != nil {
		s.log.Warn("failed to record session completion", "connection_id", connectionID, "err", err)
	}
}

// Observe records the latest status of a session. Disconnected and Error
// statuses close the session at the given time.
func (s *Store) Observe(ctx context.Context, st reseda.ConnectionStatus, at time.Time) error {
	if st.ConnectionID == "" {
		return nil
	}
	location := ""
	if st.Location != nil {
		location = st.Location.ID
	}
	ended := ""
	if st.State == reseda.Disconnected || st.State == reseda.Error {
		ended = formatTime(at)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (connection_id, location, server, state, message, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(connection_id) DO UPDATE SET
		 location = CASE WHEN excluded.location = '' THEN sessions.location ELSE excluded.location END,
		 server = CASE WHEN excluded.server = '' THEN sessions.server ELSE excluded.server END,
		 state = excluded.state,
		 message = excluded.message,
		 ended_at = CASE WHEN excluded.ended_at = '' THEN sessions.ended_at ELSE excluded.ended_at END`,
		st.ConnectionID, location, st.Server, int(st.State), st.Message, ended,
	)
	if err != nil {
		return fmt.Errorf("record session status: %w", err)
	}
	return nil
}

// List returns the most recently started sessions first. limit <= 0 returns
// all of them.
func (s *Store) List(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT connection_id, location, server, state, message, started_at, completed_at, ended_at
		 FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]Session, 0)
	for rows.Next() {
		var (
			sess                        Session
			state                       int
			started, completed, endedAt string
		)
		if err := rows.Scan(&sess.ConnectionID, &sess.Location, &sess.Server, &state, &sess.Message, &started, &completed, &endedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sess.State = reseda.ConnectionState(state)
		if sess.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if sess.CompletedAt, err = parseTime(completed); err != nil {
			return nil, err
		}
		if sess.EndedAt, err = parseTime(endedAt); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

// timeLayout has a fixed width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session time %q: %w", v, err)
	}
	return t, nil
}
