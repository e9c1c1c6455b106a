package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/reposync/reposync/internal/engine"
	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
	"github.com/reposync/reposync/internal/manifest"
	"github.com/reposync/reposync/internal/tools"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Root    string // repository root; empty means walk up from the working directory
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the reposync CLI.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRoot()
	return cmd
}

// Execute runs the CLI, renders any failure in the selected output
// format, and returns the process exit code.
func Execute() int {
	cmd, opts := newRoot()
	if err := cmd.Execute(); err != nil {
		f := &OutputFormatter{Format: opts.Format, Writer: cmd.ErrOrStderr()}
		_ = f.Error(errorCode(err), err.Error())
		return GetExitCode(err)
	}
	return ExitSuccess
}

func newRoot() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "reposync",
		Short: "reposync - keep AI-assistant config files in sync",
		Long: "Reconciles tool-owned regions of assistant config files\n" +
			"(.cursorrules, CLAUDE.md, .vscode/settings.json, Copilot\n" +
			"instructions) with the rules declared in this repository,\n" +
			"without ever touching human-authored content.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			setupLogging(opts.Verbose)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Root, "root", "", "repository root (default: walk up to the nearest .repository)")

	// Add subcommands
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewUnrollCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd, opts
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// findRoot walks up from dir to the nearest directory containing a
// .repository directory.
func findRoot(dir string) (string, error) {
	for {
		info, err := os.Stat(filepath.Join(dir, ledger.StateDir))
		if err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s directory found here or in any parent", ledger.StateDir)
		}
		dir = parent
	}
}

// resolveRootDir picks the repository root: --root when given,
// otherwise the nearest initialized ancestor of the working directory.
func resolveRootDir(opts *RootOptions) (string, error) {
	if opts.Root != "" {
		return opts.Root, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return findRoot(wd)
}

// openRepo opens the repository root for commands that only need the
// engine and ledger (status, check, diff).
func openRepo(opts *RootOptions) (*fsx.Root, *engine.Engine, error) {
	dir, err := resolveRootDir(opts)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "locate repository root", err)
	}
	root, err := fsx.NewRoot(dir)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open repository root", err)
	}
	return root, engine.New(root, ledger.NewStore(root)), nil
}

// repoContext bundles what every rule-driven command opens: the root,
// the engine, and the desired state composed from manifest and rules.
type repoContext struct {
	root    *fsx.Root
	eng     *engine.Engine
	mf      *manifest.Manifest
	rules   []manifest.Rule
	desired *engine.DesiredState
}

func openRepoContext(opts *RootOptions) (*repoContext, error) {
	root, eng, err := openRepo(opts)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Load(root)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load manifest", err)
	}
	rules, err := manifest.DiscoverRules(root, m)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "discover rules", err)
	}
	desired, err := tools.BuildDesired(tools.Builtin(), m, rules)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "build desired state", err)
	}
	return &repoContext{root: root, eng: eng, mf: m, rules: rules, desired: desired}, nil
}

// formatter builds the output formatter for a command invocation.
func formatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
