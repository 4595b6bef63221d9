package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Fuabioo/settings-merge/internal/settings"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>...",
		Short: "Check that settings files load as JSONC objects",
		Args:  cobra.MinimumNArgs(1),
		RunE:  a.runValidate,
	}
}

func (a *app) runValidate(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	hasIssues := false

	for _, path := range args {
		// A stat failure other than not-exist surfaces through Load.
		exists, _ := afero.Exists(a.fs, path)
		s, err := settings.Load(a.fs, path)
		switch {
		case err != nil:
			hasIssues = true
			_, _ = fmt.Fprintf(w, "%s\tINVALID\t%v\n", path, err)
		case !exists:
			_, _ = fmt.Fprintf(w, "%s\tMISSING\ttreated as {}\n", path)
		default:
			_, _ = fmt.Fprintf(w, "%s\tOK\t%d key(s)\n", path, s.Len())
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush tabwriter: %w", err)
	}

	if hasIssues {
		return &exitError{code: 1}
	}
	return nil
}
