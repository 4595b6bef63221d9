package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Fuabioo/settings-merge/internal/audit"
	"github.com/Fuabioo/settings-merge/internal/config"
	"github.com/Fuabioo/settings-merge/internal/merger"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

const usageLine = "Usage: settings-merge <localSettingsPath> <targetSettingsPath>"

// errUsage is returned when the root command gets the wrong number of paths.
var errUsage = errors.New(usageLine)

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// app carries what every command needs. Tests swap the filesystem.
type app struct {
	fs afero.Fs
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "settings-merge <localSettingsPath> <targetSettingsPath>",
		Short:         "Merge local JSONC settings into a target settings file",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 2 {
				return errUsage
			}
			return nil
		},
		RunE: a.runRoot,
	}
	root.Flags().Bool("dry-run", false, "print the diff instead of writing the target")

	root.AddCommand(newApplyCmd(a))
	root.AddCommand(newValidateCmd(a))
	root.AddCommand(newVersionCmd())
	root.AddCommand(newHistoryCmd())

	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(&app{fs: afero.NewOsFs()})
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.Execute(); err != nil {
		var ee *exitError
		switch {
		case errors.As(err, &ee):
			return ee.code
		case errors.Is(err, errUsage):
			fmt.Fprintln(stderr, usageLine)
			return 1
		}
		printError(stderr, err)
		return 1
	}
	return 0
}

// printError writes err as a single line with the program prefix.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", color.New(color.FgRed).Sprint("settings-merge:"), err)
}

// runRoot merges the local file given first into the target file given second.
func (a *app) runRoot(cmd *cobra.Command, args []string) error {
	e, err := config.LoadEnv()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), e.Debug)

	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return fmt.Errorf("invalid --dry-run: %w", err)
	}

	// The manifest only matters here for audit settings, so a broken one
	// does not block an ad-hoc merge.
	cfg, cfgPath, err := config.Load(e)
	if err != nil {
		logger.Warn("ignoring manifest", "err", err)
		cfg = config.Config{}
	} else if cfgPath != "" {
		logger.Debug("loaded manifest", "path", cfgPath)
	}

	auditor, closeAuditor := openAuditor(cfg, e, dryRun, logger)
	defer closeAuditor()

	m := merger.New(a.fs, auditor, logger)
	return runMerge(cmd, m, merger.Request{LocalPath: args[0], TargetPath: args[1], DryRun: dryRun})
}

// runMerge runs one merge and prints its status line.
func runMerge(cmd *cobra.Command, m *merger.Merger, req merger.Request) error {
	res, err := m.Run(req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if req.DryRun {
		if res.Diff != "" {
			fmt.Fprint(out, res.Diff)
		}
		fmt.Fprintf(out, "Would merge %d local setting(s) into %s\n", res.Contributed, req.TargetPath)
		return nil
	}
	fmt.Fprintf(out, "Merged %d local setting(s) into %s\n", res.Contributed, req.TargetPath)
	return nil
}

// openAuditor opens the history database when auditing is enabled. It
// returns a nil Auditor when disabled or on failure; history never blocks
// a merge. Retention pruning runs on open.
func openAuditor(cfg config.Config, e config.Env, dryRun bool, logger *slog.Logger) (audit.Auditor, func()) {
	noop := func() {}
	if dryRun || !cfg.AuditEnabled(e) {
		return nil, noop
	}

	dbPath := cfg.AuditDBPath(e)
	if dbPath == "" {
		dbPath = audit.DefaultDBPath()
	}
	a, err := audit.Open(dbPath)
	if err != nil {
		logger.Warn("failed to open history db, continuing without history", "err", err)
		return nil, noop
	}

	if ret := cfg.Retention(); ret > 0 {
		n, err := audit.Prune(a.DB(), ret)
		if err != nil {
			logger.Warn("failed to prune history", "err", err)
		} else if n > 0 {
			logger.Debug("pruned history", "runs", n, "older_than", ret)
		}
	}

	return a, func() {
		if err := a.Close(); err != nil {
			logger.Warn("failed to close history db", "err", err)
		}
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "settings-merge %s (%s)\n", Version, Commit)
		},
	}
}
