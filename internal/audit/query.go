package audit

import (
	"database/sql"
	"fmt"
	"time"
)

const runColumns = "id, timestamp, name, local_path, target_path, contributed, outcome, duration_ms"

// Filter narrows ListRuns results. Zero values match everything.
type Filter struct {
	Target  string
	Outcome string
}

// ListRuns returns merge runs with optional filtering by target path and outcome.
// Results are ordered by timestamp descending (newest first).
func ListRuns(db *sql.DB, limit, offset int, f Filter) ([]MergeRun, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: ListRuns called with nil db")
	}

	query := "SELECT " + runColumns + " FROM merge_runs WHERE 1=1"
	var args []any

	if f.Target != "" {
		query += " AND target_path = ?"
		args = append(args, f.Target)
	}
	if f.Outcome != "" {
		query += " AND outcome = ?"
		args = append(args, f.Outcome)
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	} else if offset > 0 {
		query += " LIMIT -1"
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list runs: %w", err)
	}
	defer rows.Close()

	var runs []MergeRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate run rows: %w", err)
	}

	return runs, nil
}

// GetRun returns a single merge run by ID, including its key changes.
func GetRun(db *sql.DB, id int64) (*MergeRun, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: GetRun called with nil db")
	}

	r, err := scanRun(db.QueryRow("SELECT "+runColumns+" FROM merge_runs WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("audit: get run %d: %w", id, err)
	}

	rows, err := db.Query(
		"SELECT id, run_id, key_index, key_name, action FROM key_changes WHERE run_id = ? ORDER BY key_index",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: get key changes for run %d: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var k KeyChange
		if err := rows.Scan(&k.ID, &k.RunID, &k.KeyIndex, &k.Key, &k.Action); err != nil {
			return nil, fmt.Errorf("audit: scan key change: %w", err)
		}
		r.Keys = append(r.Keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate key changes: %w", err)
	}

	return &r, nil
}

// Tail returns the last n merge runs ordered by timestamp descending (newest first).
func Tail(db *sql.DB, n int) ([]MergeRun, error) {
	return ListRuns(db, n, 0, Filter{})
}

// Prune deletes merge runs (and their key changes) older than the given duration.
// Returns the number of merge runs deleted.
func Prune(db *sql.DB, olderThan time.Duration) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("audit: Prune called with nil db")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("audit: begin prune transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Delete key changes for old runs first (foreign key reference).
	_, err = tx.Exec(
		"DELETE FROM key_changes WHERE run_id IN (SELECT id FROM merge_runs WHERE timestamp < ?)",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("audit: prune key changes: %w", err)
	}

	result, err := tx.Exec("DELETE FROM merge_runs WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: prune merge runs: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("audit: prune rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("audit: commit prune: %w", err)
	}

	return count, nil
}

// GetStats returns aggregate statistics from the history database.
func GetStats(db *sql.DB) (*Stats, error) {
	if db == nil {
		return nil, fmt.Errorf("audit: GetStats called with nil db")
	}

	stats := &Stats{
		CountByOutcome: make(map[string]int64),
		CountByTarget:  make(map[string]int64),
	}

	err := db.QueryRow("SELECT COALESCE(COUNT(*), 0), COALESCE(AVG(duration_ms), 0) FROM merge_runs").
		Scan(&stats.TotalRuns, &stats.AvgDurationMs)
	if err != nil {
		return nil, fmt.Errorf("audit: stats totals: %w", err)
	}

	if stats.TotalRuns == 0 {
		return stats, nil
	}

	var oldestStr, newestStr string
	err = db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM merge_runs").
		Scan(&oldestStr, &newestStr)
	if err != nil {
		return nil, fmt.Errorf("audit: stats min/max timestamp: %w", err)
	}
	if stats.OldestEntry, err = parseTimestamp(oldestStr); err != nil {
		return nil, err
	}
	if stats.NewestEntry, err = parseTimestamp(newestStr); err != nil {
		return nil, err
	}

	if err := countBy(db, "outcome", stats.CountByOutcome); err != nil {
		return nil, err
	}
	if err := countBy(db, "target_path", stats.CountByTarget); err != nil {
		return nil, err
	}

	return stats, nil
}

// countBy fills into with per-value row counts of a merge_runs column.
// column is always a constant from this package.
func countBy(db *sql.DB, column string, into map[string]int64) error {
	rows, err := db.Query(fmt.Sprintf("SELECT %s, COUNT(*) FROM merge_runs GROUP BY %s", column, column))
	if err != nil {
		return fmt.Errorf("audit: stats by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var value string
		var count int64
		if err := rows.Scan(&value, &count); err != nil {
			return fmt.Errorf("audit: scan %s count: %w", column, err)
		}
		into[value] = count
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("audit: iterate %s rows: %w", column, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (MergeRun, error) {
	var r MergeRun
	var tsStr string
	if err := row.Scan(&r.ID, &tsStr, &r.Name, &r.LocalPath, &r.TargetPath, &r.Contributed, &r.Outcome, &r.DurationMs); err != nil {
		return MergeRun{}, fmt.Errorf("audit: scan run row: %w", err)
	}
	ts, err := parseTimestamp(tsStr)
	if err != nil {
		return MergeRun{}, err
	}
	r.Timestamp = ts
	return r, nil
}

func parseTimestamp(s string) (time.Time, error) {
	ts, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("audit: parse timestamp %q: %w", s, err)
	}
	return ts, nil
}
