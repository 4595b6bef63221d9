package cli

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Fuabioo/settings-merge/internal/audit"
	"github.com/Fuabioo/settings-merge/internal/config"
	_ "modernc.org/sqlite"
)

// resolveDBPath returns the history database path from the --db flag, the
// environment or manifest, or the default.
func resolveDBPath(cmd *cobra.Command) string {
	if dbPath, err := cmd.Flags().GetString("db"); err == nil && dbPath != "" {
		return dbPath
	}
	if e, err := config.LoadEnv(); err == nil {
		cfg, _, err := config.Load(e)
		if err != nil {
			cfg = config.Config{}
		}
		if p := cfg.AuditDBPath(e); p != "" {
			return p
		}
	}
	return audit.DefaultDBPath()
}

// openHistoryDBReadOnly opens an existing history DB for queries.
// Returns a clear error if the DB doesn't exist.
func openHistoryDBReadOnly(cmd *cobra.Command) (*sql.DB, error) {
	dbPath := resolveDBPath(cmd)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("history database not found at %s (is history enabled?)", dbPath)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db %q: %w", dbPath, err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on history db %q: %w", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect history db %q: %w", dbPath, err)
	}
	return db, nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query the merge history",
	}
	cmd.PersistentFlags().String("db", "", "path to history database (default: auto-detected)")
	cmd.AddCommand(
		newHistoryListCmd(),
		newHistoryShowCmd(),
		newHistoryTailCmd(),
		newHistoryPruneCmd(),
		newHistoryStatsCmd(),
		newHistoryDBPathCmd(),
	)
	return cmd
}

func newHistoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List merge runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList,
	}
	cmd.Flags().Int("limit", 20, "maximum number of entries")
	cmd.Flags().Int("offset", 0, "skip N entries")
	cmd.Flags().String("target", "", "filter by target path")
	cmd.Flags().String("outcome", "", "filter by outcome (merged|unchanged)")
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	db, err := openHistoryDBReadOnly(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return fmt.Errorf("invalid --limit: %w", err)
	}
	offset, err := cmd.Flags().GetInt("offset")
	if err != nil {
		return fmt.Errorf("invalid --offset: %w", err)
	}
	target, err := cmd.Flags().GetString("target")
	if err != nil {
		return fmt.Errorf("invalid --target: %w", err)
	}
	outcome, err := cmd.Flags().GetString("outcome")
	if err != nil {
		return fmt.Errorf("invalid --outcome: %w", err)
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("invalid --json: %w", err)
	}

	runs, err := audit.ListRuns(db, limit, offset, audit.Filter{Target: target, Outcome: outcome})
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if asJSON {
		return printJSON(cmd.OutOrStdout(), runs)
	}
	return printRunTable(cmd.OutOrStdout(), runs)
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one merge run and its key changes",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run ID %q: %w", args[0], err)
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("invalid --json: %w", err)
	}

	db, err := openHistoryDBReadOnly(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	run, err := audit.GetRun(db, id)
	if err != nil {
		return fmt.Errorf("get run %d: %w", id, err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return printJSON(out, run)
	}

	fmt.Fprintf(out, "Run #%d\n", run.ID)
	fmt.Fprintf(out, "  Timestamp:    %s (%s)\n", run.Timestamp.Format(time.RFC3339), humanize.Time(run.Timestamp))
	if run.Name != "" {
		fmt.Fprintf(out, "  Name:         %s\n", run.Name)
	}
	fmt.Fprintf(out, "  Local:        %s\n", run.LocalPath)
	fmt.Fprintf(out, "  Target:       %s\n", run.TargetPath)
	fmt.Fprintf(out, "  Contributed:  %d\n", run.Contributed)
	fmt.Fprintf(out, "  Outcome:      %s\n", run.Outcome)
	fmt.Fprintf(out, "  Duration:     %dms\n", run.DurationMs)

	if len(run.Keys) > 0 {
		fmt.Fprintf(out, "\n  Keys:\n")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "  IDX\tKEY\tACTION")
		for _, k := range run.Keys {
			_, _ = fmt.Fprintf(w, "  %d\t%s\t%s\n", k.KeyIndex, k.Key, k.Action)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("flush tabwriter: %w", err)
		}
	}

	return nil
}

func newHistoryTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show last N merge runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryTail,
	}
	cmd.Flags().Int("n", 10, "number of entries")
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func runHistoryTail(cmd *cobra.Command, _ []string) error {
	db, err := openHistoryDBReadOnly(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	n, err := cmd.Flags().GetInt("n")
	if err != nil {
		return fmt.Errorf("invalid --n: %w", err)
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("invalid --json: %w", err)
	}

	runs, err := audit.Tail(db, n)
	if err != nil {
		return fmt.Errorf("tail: %w", err)
	}

	if asJSON {
		return printJSON(cmd.OutOrStdout(), runs)
	}
	return printRunTable(cmd.OutOrStdout(), runs)
}

func newHistoryPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old merge runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryPrune,
	}
	cmd.Flags().String("older-than", "", "delete entries older than duration (e.g., 7d, 24h, 30d)")
	if err := cmd.MarkFlagRequired("older-than"); err != nil {
		panic(fmt.Sprintf("mark --older-than required: %v", err))
	}
	return cmd
}

func runHistoryPrune(cmd *cobra.Command, _ []string) error {
	olderThanStr, err := cmd.Flags().GetString("older-than")
	if err != nil {
		return fmt.Errorf("invalid --older-than: %w", err)
	}
	dur, err := config.ParseDuration(olderThanStr)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", olderThanStr, err)
	}

	a, err := audit.Open(resolveDBPath(cmd))
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	count, err := audit.Prune(a.DB(), dur)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d merge run(s).\n", count)
	return nil
}

func newHistoryStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show history statistics",
		Args:  cobra.NoArgs,
		RunE:  runHistoryStats,
	}
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func runHistoryStats(cmd *cobra.Command, _ []string) error {
	db, err := openHistoryDBReadOnly(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return fmt.Errorf("invalid --json: %w", err)
	}

	stats, err := audit.GetStats(db)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return printJSON(out, stats)
	}

	fmt.Fprintf(out, "Total runs:     %s\n", humanize.Comma(stats.TotalRuns))
	fmt.Fprintf(out, "Avg duration:   %.1fms\n", stats.AvgDurationMs)

	if stats.TotalRuns > 0 {
		fmt.Fprintf(out, "Oldest entry:   %s (%s)\n", stats.OldestEntry.Format(time.RFC3339), humanize.Time(stats.OldestEntry))
		fmt.Fprintf(out, "Newest entry:   %s (%s)\n", stats.NewestEntry.Format(time.RFC3339), humanize.Time(stats.NewestEntry))
	}

	printCounts(out, "By outcome", stats.CountByOutcome)
	printCounts(out, "By target", stats.CountByTarget)
	return nil
}

// printCounts prints a count map sorted by key.
func printCounts(w io.Writer, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "\n%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-10s %d\n", k, counts[k])
	}
}

func newHistoryDBPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "db-path",
		Short: "Print the history database path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveDBPath(cmd))
		},
	}
}

// printRunTable outputs merge runs in a tabwriter table.
func printRunTable(out io.Writer, runs []audit.MergeRun) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tWHEN\tNAME\tTARGET\tKEYS\tOUTCOME\tDURATION")
	for _, r := range runs {
		name := r.Name
		if name == "" {
			name = "-"
		}
		target := r.TargetPath
		if len(target) > 50 {
			target = "..." + target[len(target)-47:]
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%dms\n",
			r.ID,
			humanize.Time(r.Timestamp),
			name,
			target,
			r.Contributed,
			r.Outcome,
			r.DurationMs,
		)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush tabwriter: %w", err)
	}
	return nil
}

// printJSON marshals v as indented JSON and writes it to out.
func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}
