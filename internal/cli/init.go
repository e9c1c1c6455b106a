package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
	"github.com/reposync/reposync/internal/manifest"
)

const starterManifest = `# reposync project manifest.
version: 1

# Tools whose config files are kept in sync.
tools: [cursor, claude]

# Rule sources, doublestar patterns relative to the repository root.
rules:
  include:
    - "rules/**/*.md"
`

const starterRule = `---
id: example
priority: 100
---
Describe one convention per rule file. Delete this rule once real
ones exist.
`

var starterRulePath = fsx.Normalize("rules/example.md")

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold the .repository state directory",
		Long: `Create the manifest, an empty ledger, and a starter rule in the
target directory (--root, default: the working directory).

Existing files are left alone, so init is safe to re-run.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, cmd)
		},
	}
	return cmd
}

func runInit(opts *RootOptions, cmd *cobra.Command) error {
	dir := opts.Root
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return WrapExitError(ExitCommandError, "resolve working directory", err)
		}
		dir = wd
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "create root directory", err)
	}
	root, err := fsx.NewRoot(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "open repository root", err)
	}

	created := []string{}

	exists, err := root.Exists(manifest.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "probe manifest", err)
	}
	if !exists {
		if err := root.WriteAtomic(manifest.Path, []byte(starterManifest)); err != nil {
			return WrapExitError(ExitCommandError, "write manifest", err)
		}
		created = append(created, manifest.Path.String())
	}

	store := ledger.NewStore(root)
	hasLedger, err := store.Exists()
	if err != nil {
		return WrapExitError(ExitCommandError, "probe ledger", err)
	}
	if !hasLedger {
		if err := store.Save(ledger.New(), time.Now().UTC()); err != nil {
			return WrapExitError(ExitCommandError, "write ledger", err)
		}
		created = append(created, ledger.Path.String())
	}

	exists, err = root.Exists(starterRulePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "probe starter rule", err)
	}
	if !exists {
		if err := root.WriteAtomic(starterRulePath, []byte(starterRule)); err != nil {
			return WrapExitError(ExitCommandError, "write starter rule", err)
		}
		created = append(created, starterRulePath.String())
	}

	f := formatter(cmd, opts)
	if opts.Format == "json" {
		return f.Success(map[string]any{"root": root.Dir(), "created": created})
	}
	if len(created) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Already initialized, nothing to do.")
		return nil
	}
	for _, path := range created {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ created %s\n", path)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Run \"reposync sync\" to project the starter rule.")
	return nil
}
