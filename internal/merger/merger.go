// Package merger runs one local-into-target settings merge end to end.
package merger

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/Fuabioo/settings-merge/internal/audit"
	"github.com/Fuabioo/settings-merge/internal/settings"
)

// Request names the two files of a merge.
type Request struct {
	Name       string // manifest entry name, empty for ad-hoc runs
	LocalPath  string
	TargetPath string
	DryRun     bool
}

// Result holds the outcome of a merge.
type Result struct {
	Contributed int // top-level keys in the local file
	Changes     []settings.Change
	Changed     bool   // written bytes differ from the previous target content
	Diff        string // unified diff of the target, only set on dry runs
	Written     bool
}

// Merger executes merges against a filesystem.
type Merger struct {
	fs      afero.Fs
	auditor audit.Auditor
	logger  *slog.Logger
}

// New returns a Merger. auditor may be nil.
func New(fs afero.Fs, auditor audit.Auditor, logger *slog.Logger) *Merger {
	return &Merger{fs: fs, auditor: auditor, logger: logger}
}

// Run loads the target and local files, merges local over target and
// writes the result to the target path. Any error aborts the run before
// the target is touched. History recording is best effort.
func (m *Merger) Run(req Request) (Result, error) {
	start := time.Now()

	existing, err := settings.Load(m.fs, req.TargetPath)
	if err != nil {
		return Result{}, err
	}
	m.logger.Debug("loaded target", "path", req.TargetPath, "keys", existing.Len())

	incoming, err := settings.Load(m.fs, req.LocalPath)
	if err != nil {
		return Result{}, err
	}
	m.logger.Debug("loaded local", "path", req.LocalPath, "keys", incoming.Len())

	merged := settings.Merge(existing, incoming)
	out, err := settings.Format(merged)
	if err != nil {
		return Result{}, fmt.Errorf("merger: format %s: %w", req.TargetPath, err)
	}

	before, err := m.currentContent(req.TargetPath)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Contributed: incoming.Len(),
		Changes:     settings.Diff(existing, merged),
		Changed:     !bytes.Equal(before, out),
	}

	if req.DryRun {
		res.Diff = unifiedDiff(req.TargetPath, string(before), string(out))
		m.logger.Debug("dry run, target not written", "path", req.TargetPath, "changed", res.Changed)
		return res, nil
	}

	if err := settings.Write(m.fs, req.TargetPath, merged); err != nil {
		return Result{}, err
	}
	res.Written = true
	m.logger.Debug("wrote target", "path", req.TargetPath, "bytes", len(out), "changed", res.Changed)

	m.record(req, res, start)
	return res, nil
}

// currentContent returns the target's bytes, or nil when it does not exist.
// The target was already read successfully by settings.Load, so errors
// here are unexpected.
func (m *Merger) currentContent(path string) ([]byte, error) {
	data, err := afero.ReadFile(m.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("merger: read %s: %w", path, err)
	}
	return data, nil
}

// record stores a history entry. Failures are logged and otherwise ignored.
func (m *Merger) record(req Request, res Result, start time.Time) {
	if m.auditor == nil {
		return
	}

	outcome := audit.OutcomeMerged
	if !res.Changed {
		outcome = audit.OutcomeUnchanged
	}

	keys := make([]audit.KeyChange, len(res.Changes))
	for i, c := range res.Changes {
		keys[i] = audit.KeyChange{KeyIndex: i, Key: c.Key, Action: string(c.Action)}
	}

	err := m.auditor.RecordRun(audit.MergeRun{
		Timestamp:   start.UTC(),
		Name:        req.Name,
		LocalPath:   req.LocalPath,
		TargetPath:  req.TargetPath,
		Contributed: res.Contributed,
		Outcome:     outcome,
		DurationMs:  time.Since(start).Milliseconds(),
		Keys:        keys,
	})
	if err != nil {
		m.logger.Warn("failed to record merge history", "target", req.TargetPath, "err", err)
	}
}
