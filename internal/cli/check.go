package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reposync/reposync/internal/projection"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "CI gate: exit 1 when any projection is out of sync",
		Long: `Run drift detection and stay silent when everything is in sync.
Otherwise list every out-of-sync projection and exit 1. Read-only.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, cmd *cobra.Command) error {
	_, eng, err := openRepo(opts)
	if err != nil {
		return err
	}
	report, err := eng.DetectDrift(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "detect drift", err)
	}

	if report.Clean() {
		if opts.Format == "json" {
			return formatter(cmd, opts).Success(report)
		}
		return nil
	}

	if opts.Format == "json" {
		if err := formatter(cmd, opts).Success(report); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, in := range report.Intents {
			for _, p := range in.Projections {
				if p.State == projection.InSync {
					continue
				}
				fmt.Fprintf(w, "%s: %s (%s): %s\n", in.ID, p.File, p.Location, p.State)
			}
		}
	}

	out := report.Count(projection.Drifted) +
		report.Count(projection.BrokenLink) +
		report.Count(projection.MissingFile)
	return NewExitError(ExitFailure, fmt.Sprintf("%d projections out of sync", out))
}
