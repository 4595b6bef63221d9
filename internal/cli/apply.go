package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Fuabioo/settings-merge/internal/config"
	"github.com/Fuabioo/settings-merge/internal/merger"
)

func newApplyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply [name...]",
		Short: "Run merges from the manifest (all of them when no name is given)",
		RunE:  a.runApply,
	}
	cmd.Flags().Bool("dry-run", false, "print diffs instead of writing targets")
	return cmd
}

// runApply runs every selected manifest merge. A failed merge is reported
// and the rest still run; the command fails if any merge did.
func (a *app) runApply(cmd *cobra.Command, args []string) error {
	e, err := config.LoadEnv()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), e.Debug)

	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return fmt.Errorf("invalid --dry-run: %w", err)
	}

	cfg, cfgPath, err := config.Load(e)
	if err != nil {
		return err
	}
	if cfgPath == "" {
		return errors.New("no manifest found (set $SETTINGS_MERGE_CONFIG or create ~/.config/settings-merge/config.yaml)")
	}
	logger.Debug("loaded manifest", "path", cfgPath, "merges", len(cfg.Merges))

	entries, err := cfg.Resolve(args...)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No merges configured.")
		return nil
	}

	auditor, closeAuditor := openAuditor(cfg, e, dryRun, logger)
	defer closeAuditor()
	m := merger.New(a.fs, auditor, logger)

	failed := 0
	for _, entry := range entries {
		req := merger.Request{
			Name:       entry.Name,
			LocalPath:  entry.Local,
			TargetPath: entry.Target,
			DryRun:     dryRun,
		}
		if err := runMerge(cmd, m, req); err != nil {
			printError(cmd.ErrOrStderr(), fmt.Errorf("%s: %w", entry.Name, err))
			failed++
		}
	}

	if failed > 0 {
		return &exitError{code: 1}
	}
	return nil
}
