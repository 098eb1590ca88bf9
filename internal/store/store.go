// Package store provides the durable client-side store for Brain Box:
// notes, the read-only topic cache, and the outbox of unconfirmed
// mutations, all in one embedded SQLite database.
//
// The database runs in WAL mode so the UI can keep reading while a sync
// run writes. Every user-facing mutation touches the note row and its
// outbox entry inside a single transaction; a crash can never leave one
// without the other.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection with Brain Box specific operations.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a new store at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads
// and created along with its schema if missing. Any in-flight send
// markers left behind by a crash are cleared so interrupted sends are
// retried rather than stuck.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		path = "file:" + path
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	// WAL keeps local reads non-blocking while a sync run writes.
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	// In-flight markers are process-local state; a crash mid-send must
	// not suppress retries after restart.
	if _, err := s.conn.Exec("UPDATE outbox SET in_flight = 0 WHERE in_flight != 0"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to reset in-flight markers: %w", err)
	}

	return s, nil
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// initSchema creates the schema if it doesn't exist. Idempotent.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		topic_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		local_revision INTEGER NOT NULL,
		server_revision INTEGER NOT NULL DEFAULT 0,
		sync_status TEXT NOT NULL,
		remote_revision INTEGER NOT NULL DEFAULT 0,
		remote_title TEXT NOT NULL DEFAULT '',
		remote_body TEXT NOT NULL DEFAULT '',
		attention_reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Read-only cache of the server's topic tree.
	CREATE TABLE IF NOT EXISTS topics (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		parent_id INTEGER,
		fetched_at TEXT NOT NULL
	);

	-- One unconfirmed mutation per note id. position orders entries
	-- FIFO across distinct ids; in_flight marks the entry currently
	-- being sent so a concurrent edit cannot re-send it.
	CREATE TABLE IF NOT EXISTS outbox (
		note_id TEXT PRIMARY KEY,
		op TEXT NOT NULL CHECK (op IN ('create','update','delete')),
		topic_id INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL DEFAULT '',
		body TEXT NOT NULL DEFAULT '',
		local_revision INTEGER NOT NULL,
		based_on_server_revision INTEGER NOT NULL DEFAULT 0,
		change_id INTEGER NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		in_flight INTEGER NOT NULL DEFAULT 0,
		enqueued_at TEXT NOT NULL,
		position INTEGER NOT NULL
	);

	-- Client-wide counters: change_id feeds the backend's idempotency
	-- key, position orders the outbox.
	CREATE TABLE IF NOT EXISTS sync_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		next_change_id INTEGER NOT NULL DEFAULT 1,
		next_position INTEGER NOT NULL DEFAULT 1,
		last_pull_at TEXT NOT NULL DEFAULT ''
	);
	INSERT OR IGNORE INTO sync_state (id) VALUES (1);

	CREATE INDEX IF NOT EXISTS idx_notes_status ON notes(sync_status);
	CREATE INDEX IF NOT EXISTS idx_notes_topic ON notes(topic_id);
	CREATE INDEX IF NOT EXISTS idx_outbox_position ON outbox(position);
	CREATE INDEX IF NOT EXISTS idx_topics_parent ON topics(parent_id);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// CheckIntegrity runs SQLite's integrity check and reports corruption as
// ErrCorrupt. The sync subsystem halts on corruption rather than risk
// spreading it; recovery goes through export/import.
func (s *Store) CheckIntegrity(ctx context.Context) error {
	var result string
	if err := s.conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: integrity check failed: %v", ErrCorrupt, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: %s", ErrCorrupt, result)
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nextChangeID hands out the next client-monotonic change id.
func nextChangeID(tx *sql.Tx) (int64, error) {
	var id int64
	if err := tx.QueryRow("SELECT next_change_id FROM sync_state WHERE id = 1").Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read next change id: %w", err)
	}
	if _, err := tx.Exec("UPDATE sync_state SET next_change_id = ? WHERE id = 1", id+1); err != nil {
		return 0, fmt.Errorf("failed to advance change id: %w", err)
	}
	return id, nil
}

// nextPosition hands out the next outbox tail position.
func nextPosition(tx *sql.Tx) (int64, error) {
	var pos int64
	if err := tx.QueryRow("SELECT next_position FROM sync_state WHERE id = 1").Scan(&pos); err != nil {
		return 0, fmt.Errorf("failed to read next position: %w", err)
	}
	if _, err := tx.Exec("UPDATE sync_state SET next_position = ? WHERE id = 1", pos+1); err != nil {
		return 0, fmt.Errorf("failed to advance position: %w", err)
	}
	return pos, nil
}

// LastPullAt returns the time of the last successful pull, or the zero
// time if none has happened.
func (s *Store) LastPullAt(ctx context.Context) (time.Time, error) {
	var raw string
	if err := s.conn.QueryRowContext(ctx, "SELECT last_pull_at FROM sync_state WHERE id = 1").Scan(&raw); err != nil {
		return time.Time{}, fmt.Errorf("failed to read last pull time: %w", err)
	}
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last pull time: %w", err)
	}
	return t, nil
}

// SetLastPullAt records the time of a successful pull.
func (s *Store) SetLastPullAt(ctx context.Context, t time.Time) error {
	_, err := s.conn.ExecContext(ctx,
		"UPDATE sync_state SET last_pull_at = ? WHERE id = 1",
		t.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record pull time: %w", err)
	}
	return nil
}
