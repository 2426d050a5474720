// Package store provides the embedded SQLite database that backs the
// point-of-sale terminal while it is offline.
//
// The database runs fully locally using ncruces/go-sqlite3 with WAL mode
// so reads stay concurrent with the single writer. Every collection the
// terminal needs to operate without connectivity lives here:
//
//   - employees: profiles mirrored from the remote store
//   - timesheets: clock-in/clock-out entries, one per employee per day
//   - pending_changes: append-only log of mutations awaiting sync
//   - counters: durable monotonic ticket numbering state
//
// Schema management is additive and idempotent: tables and indexes are
// created with IF NOT EXISTS, and incremental migrations are tracked via
// PRAGMA user_version. Opening a store that has never been written is
// indistinguishable from opening an empty one; reads return empty results
// rather than errors.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added partial index on open timesheet sessions
const currentSchemaVersion = 1

// Store wraps the embedded SQLite connection for one terminal.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the terminal database at the given path.
//
// The parent directory is created if needed. Failure to open or ping the
// database is reported as ErrStorageUnavailable so callers can degrade to
// read-empty/write-fail semantics.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create database directory: %v", ErrStorageUnavailable, err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrStorageUnavailable, err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: ping database: %v", ErrStorageUnavailable, err)
	}

	// SQLite allows a single writer; keep the pool small so local writes
	// serialize in the driver instead of surfacing SQLITE_BUSY.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	if err := s.applyPragmas(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := s.applySchema(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return s, nil
}

// DB returns the underlying sql.DB connection.
func (s *Store) DB() *sql.DB {
	return s.conn
}

// Close closes the database, checkpointing the WAL first so all writes
// land in the main database file.
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

func (s *Store) applyPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := s.conn.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables and indexes if they don't exist and runs
// incremental migrations. Idempotent - safe to call on every open.
func (s *Store) applySchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'staff',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_employees_email ON employees(email);
	CREATE INDEX IF NOT EXISTS idx_employees_name ON employees(full_name);

	CREATE TABLE IF NOT EXISTS timesheets (
		id TEXT PRIMARY KEY,
		employee_id TEXT,
		employee_name TEXT NOT NULL DEFAULT '',
		clock_in_time TEXT NOT NULL,
		clock_out_time TEXT,
		session_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'clocked_in',
		total_hours REAL,
		notes TEXT NOT NULL DEFAULT '',
		synced INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_timesheets_employee ON timesheets(employee_id);
	CREATE INDEX IF NOT EXISTS idx_timesheets_date ON timesheets(session_date);
	CREATE INDEX IF NOT EXISTS idx_timesheets_status ON timesheets(status);
	CREATE INDEX IF NOT EXISTS idx_timesheets_synced ON timesheets(synced);

	CREATE TABLE IF NOT EXISTS pending_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		change_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_pending_synced ON pending_changes(synced);

	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		last_number INTEGER NOT NULL DEFAULT 0
	);
	`

	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s.runMigrations()
}

// runMigrations applies incremental additive migrations based on
// PRAGMA user_version. Migrations never drop or rewrite existing data.
func (s *Store) runMigrations() error {
	var version int
	if err := s.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		// Partial index speeds up the "open session for employee today"
		// lookup that every clock operation performs.
		if _, err := s.conn.Exec(
			`CREATE INDEX IF NOT EXISTS idx_timesheets_open
			 ON timesheets(employee_id, session_date)
			 WHERE status = 'clocked_in'`); err != nil {
			return fmt.Errorf("migration 1: %w", err)
		}
		if _, err := s.conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", 1)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return nil
}

// SchemaVersion reports the applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
