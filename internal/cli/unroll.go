package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/reposync/reposync/internal/engine"
	"github.com/reposync/reposync/internal/ledger"
)

// UnrollOptions holds flags for the unroll command.
type UnrollOptions struct {
	*RootOptions
	All bool
}

// NewUnrollCommand creates the unroll command.
func NewUnrollCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UnrollOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "unroll [intent-id...]",
		Short: "Remove managed content for selected intents",
		Long: `Reconcile against a reduced desired state, removing the named
intents' projections from the working tree. Shared files survive with
the managed regions excised; wholly managed files are deleted.

With --all, every managed intent is removed and the working tree is
left with only human-authored content.

Example:
  reposync unroll rule:no-unwrap/tool:cursor
  reposync unroll --all`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnroll(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "remove every managed intent")

	return cmd
}

func runUnroll(opts *UnrollOptions, args []string, cmd *cobra.Command) error {
	if opts.All && len(args) > 0 {
		return NewExitError(ExitCommandError, "--all takes no intent ids")
	}
	if !opts.All && len(args) == 0 {
		return NewExitError(ExitCommandError, "name at least one intent id, or pass --all")
	}

	rc, err := openRepoContext(opts.RootOptions)
	if err != nil {
		return err
	}

	reduced := &engine.DesiredState{}
	if !opts.All {
		led, err := ledger.NewStore(rc.root).Load()
		if err != nil {
			return WrapExitError(ExitCommandError, "load ledger", err)
		}
		drop := make(map[string]bool, len(args))
		for _, id := range args {
			drop[id] = true
			if !knownIntent(id, rc.desired, led) {
				slog.Warn("intent not found in rules or ledger", "id", id)
			}
		}
		for _, in := range rc.desired.Intents {
			if drop[in.ID] {
				continue
			}
			reduced.Intents = append(reduced.Intents, in)
		}
	}

	report, err := rc.eng.Reconcile(cmd.Context(), reduced, engine.ModeApply)
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

func knownIntent(id string, desired *engine.DesiredState, led *ledger.Ledger) bool {
	for i := range desired.Intents {
		if desired.Intents[i].ID == id {
			return true
		}
	}
	return led.Find(id) != nil
}
