package audit

import (
	"os"
	"path/filepath"
	"time"
)

// Outcome constants for MergeRun.
const (
	OutcomeMerged    = "merged"    // target content changed
	OutcomeUnchanged = "unchanged" // target rewritten with identical content
)

// Action constants for KeyChange.
const (
	ActionAdded     = "added"
	ActionUpdated   = "updated"
	ActionUnchanged = "unchanged"
)

// Auditor records completed merge runs.
type Auditor interface {
	RecordRun(run MergeRun) error
	Close() error
}

// MergeRun represents one successful merge of a local file into a target.
type MergeRun struct {
	ID          int64
	Timestamp   time.Time
	Name        string // manifest entry name, empty for ad-hoc runs
	LocalPath   string
	TargetPath  string
	Contributed int // top-level keys in the local file
	Outcome     string
	DurationMs  int64
	Keys        []KeyChange
}

// KeyChange records what a run did to one top-level key of the target.
type KeyChange struct {
	ID       int64
	RunID    int64
	KeyIndex int
	Key      string
	Action   string // added|updated|unchanged
}

// Stats holds aggregate statistics from the history database.
type Stats struct {
	TotalRuns      int64
	CountByOutcome map[string]int64
	CountByTarget  map[string]int64
	AvgDurationMs  float64
	OldestEntry    time.Time
	NewestEntry    time.Time
}

// DefaultDBPath returns the default history database path.
// It checks $XDG_DATA_HOME/settings-merge/history.db, then falls back to
// ~/.local/share/settings-merge/history.db.
func DefaultDBPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "settings-merge", "history.db")
}
