package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/reposync/reposync/internal/engine"
	"github.com/reposync/reposync/internal/projection"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report drift between the ledger and the working tree",
		Long: `Compare every recorded projection against the live file content and
report its state: in_sync, drifted, broken_link, or missing_file.
Read-only: takes no locks and writes nothing.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	_, eng, err := openRepo(opts)
	if err != nil {
		return err
	}
	report, err := eng.DetectDrift(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "detect drift", err)
	}

	f := formatter(cmd, opts)
	if opts.Format == "json" {
		return f.Success(report)
	}
	printDrift(cmd.OutOrStdout(), report, opts.Verbose)
	return nil
}

// printDrift renders a drift report grouped by tool. Each intent is
// one (rule, tool) pair, so grouping by the projections' tool keeps
// every intent in exactly one section.
func printDrift(w io.Writer, report *engine.DriftReport, verbose bool) {
	if report.Clean() {
		fmt.Fprintln(w, "✓ all projections in sync")
		return
	}

	byTool := map[string][]engine.IntentDrift{}
	for _, in := range report.Intents {
		tool := "unknown"
		if len(in.Projections) > 0 {
			tool = in.Projections[0].Tool
		}
		byTool[tool] = append(byTool[tool], in)
	}
	names := make([]string, 0, len(byTool))
	for name := range byTool {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(w, "tool: %s\n", name)
		for _, in := range byTool[name] {
			mark := "✓"
			if in.State != projection.InSync {
				mark = "✗"
			}
			fmt.Fprintf(w, "  %s %-12s %s\n", mark, in.State, in.ID)
			for _, p := range in.Projections {
				if p.State == projection.InSync && !verbose {
					continue
				}
				detail := ""
				if p.Error != "" {
					detail = "  (" + p.Error + ")"
				}
				fmt.Fprintf(w, "      %-12s %s (%s)%s\n", p.State, p.File, p.Location, detail)
			}
		}
	}

	fmt.Fprintf(w, "%d drifted, %d broken, %d missing, %d in sync\n",
		report.Count(projection.Drifted),
		report.Count(projection.BrokenLink),
		report.Count(projection.MissingFile),
		report.Count(projection.InSync))
}
