package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Basic health check + apply a few safe pragmas.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
//
// messages is append-only and keyed by the platform event id; the PRIMARY KEY
// arbitrates racing redeliveries, so there is no application-level existence
// check anywhere.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
  event_id     TEXT PRIMARY KEY,
  event_type   TEXT NOT NULL,
  sender_id    TEXT NOT NULL,
  recipient_id TEXT NOT NULL,
  text         TEXT,
  ts           INTEGER NOT NULL,
  raw          JSON NOT NULL,
  body_hash    TEXT NOT NULL,
  received_at  TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS replies (
  id           TEXT PRIMARY KEY,
  event_id     TEXT NOT NULL UNIQUE REFERENCES messages(event_id),
  status       TEXT NOT NULL,
  error_detail TEXT,
  attempted_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS messages_received_at_idx ON messages(received_at);`,
		`CREATE INDEX IF NOT EXISTS messages_sender_id_idx ON messages(sender_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
