package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/reposync/reposync/internal/engine"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	DryRun bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile managed files with the declared rules",
		Long: `Build the desired state from the manifest and rule files, then
reconcile every managed projection toward it. Human-authored content
outside managed regions is never touched.

Exit codes:
  0 - reconciled cleanly
  1 - one or more intents ended in conflict or failure
  2 - command error (missing root, bad manifest, corrupt ledger)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would change without writing")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	rc, err := openRepoContext(opts.RootOptions)
	if err != nil {
		return err
	}

	mode := engine.ModeApply
	if opts.DryRun {
		mode = engine.ModeDryRun
	}
	report, err := rc.eng.Reconcile(cmd.Context(), rc.desired, mode)
	if err != nil {
		return WrapExitError(ExitCommandError, "reconcile", err)
	}

	f := formatter(cmd, opts.RootOptions)
	if opts.Format == "json" {
		if err := f.Success(report); err != nil {
			return err
		}
	} else {
		printReport(cmd.OutOrStdout(), report, opts.Verbose)
	}

	if report.Has(engine.OutcomeConflict) || report.Has(engine.OutcomeFailed) {
		return NewExitError(ExitFailure, report.Summary())
	}
	return nil
}

// printReport renders a reconciliation report as text. Unchanged
// intents only show up in verbose mode.
func printReport(w io.Writer, report *engine.Report, verbose bool) {
	for _, res := range report.Results {
		if res.Outcome == engine.OutcomeUnchanged && !verbose {
			continue
		}
		mark := "✓"
		if res.Outcome == engine.OutcomeConflict || res.Outcome == engine.OutcomeFailed {
			mark = "✗"
		}
		line := fmt.Sprintf("%s %-9s %s", mark, res.Outcome, res.ID)
		if res.Reason != "" {
			line += "  (" + res.Reason + ")"
		}
		fmt.Fprintln(w, line)
	}
	summary := report.Summary()
	if report.DryRun {
		summary += " (dry-run)"
	}
	fmt.Fprintln(w, summary)
}
