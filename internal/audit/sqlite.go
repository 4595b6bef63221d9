package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const timeLayout = "2006-01-02T15:04:05.000"

// SQLiteAuditor implements Auditor using a local SQLite database.
type SQLiteAuditor struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS merge_runs (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp    TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%f','now')),
    name         TEXT    NOT NULL DEFAULT '',
    local_path   TEXT    NOT NULL,
    target_path  TEXT    NOT NULL,
    contributed  INTEGER NOT NULL,
    outcome      TEXT    NOT NULL,
    duration_ms  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS key_changes (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     INTEGER NOT NULL REFERENCES merge_runs(id),
    key_index  INTEGER NOT NULL,
    key_name   TEXT    NOT NULL,
    action     TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_ts ON merge_runs(timestamp);
CREATE INDEX IF NOT EXISTS idx_run_target ON merge_runs(target_path);
CREATE INDEX IF NOT EXISTS idx_key_run ON key_changes(run_id);
`

// Open opens (or creates) a SQLite history database at the given path.
// It creates the schema and configures WAL mode with a 5-second busy timeout.
func Open(dbPath string) (*SQLiteAuditor, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create directory %q: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("audit: open database %q: %w", dbPath, err)
	}

	for _, step := range []struct {
		what string
		stmt string
	}{
		{"set WAL mode", "PRAGMA journal_mode=WAL"},
		{"set busy_timeout", "PRAGMA busy_timeout=5000"},
		{"create schema", schema},
	} {
		if _, err := db.Exec(step.stmt); err != nil {
			closeErr := db.Close()
			if closeErr != nil {
				return nil, fmt.Errorf("audit: %s: %w (also failed to close: %v)", step.what, err, closeErr)
			}
			return nil, fmt.Errorf("audit: %s: %w", step.what, err)
		}
	}

	return &SQLiteAuditor{db: db}, nil
}

// DB returns the underlying *sql.DB for use with query helpers.
// Returns nil if the receiver is nil.
func (a *SQLiteAuditor) DB() *sql.DB {
	if a == nil {
		return nil
	}
	return a.db
}

// RecordRun inserts a merge run and its key changes in a single transaction.
// Nil receiver is a no-op.
func (a *SQLiteAuditor) RecordRun(run MergeRun) error {
	if a == nil {
		return nil
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("audit: begin transaction: %w", err)
	}
	defer func() {
		// Rollback is a no-op if the transaction was already committed.
		_ = tx.Rollback()
	}()

	ts := run.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	result, err := tx.Exec(
		`INSERT INTO merge_runs (timestamp, name, local_path, target_path, contributed, outcome, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts.UTC().Format(timeLayout),
		run.Name,
		run.LocalPath,
		run.TargetPath,
		run.Contributed,
		run.Outcome,
		run.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("audit: insert merge_run: %w", err)
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("audit: get last insert id: %w", err)
	}

	for _, k := range run.Keys {
		_, err := tx.Exec(
			`INSERT INTO key_changes (run_id, key_index, key_name, action) VALUES (?, ?, ?, ?)`,
			runID,
			k.KeyIndex,
			k.Key,
			k.Action,
		)
		if err != nil {
			return fmt.Errorf("audit: insert key_change for key %q: %w", k.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("audit: commit transaction: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
// Nil receiver is a no-op.
func (a *SQLiteAuditor) Close() error {
	if a == nil {
		return nil
	}
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("audit: close database: %w", err)
	}
	return nil
}
