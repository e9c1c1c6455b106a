package cli

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/reposync/reposync/internal/engine"
	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
	"github.com/reposync/reposync/internal/manifest"
	"github.com/reposync/reposync/internal/projection"
	"github.com/reposync/reposync/internal/tools"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Debounce time.Duration
	Sync     bool
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-check drift whenever watched files change",
		Long: `Watch the manifest, rule sources, and projection targets, and re-run
drift detection after each burst of changes. With --sync, apply a full
reconciliation instead of only reporting.

Runs until interrupted (SIGINT/SIGTERM).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatchCommand(opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 500*time.Millisecond, "quiet period before re-checking")
	cmd.Flags().BoolVar(&opts.Sync, "sync", false, "apply sync on change instead of only reporting drift")

	return cmd
}

func runWatchCommand(opts *WatchOptions, cmd *cobra.Command) error {
	root, eng, err := openRepo(opts.RootOptions)
	if err != nil {
		return err
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	pass := driftPass(eng)
	if opts.Sync {
		pass = syncPass(root, eng)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Watching for changes. Press Ctrl-C to stop.")
	w := &watcher{root: root, debounce: opts.Debounce, pass: pass}
	if err := w.run(ctx); err != nil && err != context.Canceled {
		return WrapExitError(ExitFailure, "watch", err)
	}
	slog.Info("watch stopped")
	return nil
}

// driftPass logs a drift summary after each change burst.
func driftPass(eng *engine.Engine) func(context.Context) error {
	return func(ctx context.Context) error {
		report, err := eng.DetectDrift(ctx)
		if err != nil {
			return err
		}
		slog.Info("drift checked",
			"drifted", report.Count(projection.Drifted),
			"broken", report.Count(projection.BrokenLink),
			"missing", report.Count(projection.MissingFile),
			"in_sync", report.Count(projection.InSync))
		return nil
	}
}

// syncPass rebuilds the desired state from the rule sources and
// applies it.
func syncPass(root *fsx.Root, eng *engine.Engine) func(context.Context) error {
	return func(ctx context.Context) error {
		m, err := manifest.Load(root)
		if err != nil {
			return err
		}
		rules, err := manifest.DiscoverRules(root, m)
		if err != nil {
			return err
		}
		desired, err := tools.BuildDesired(tools.Builtin(), m, rules)
		if err != nil {
			return err
		}
		report, err := eng.Reconcile(ctx, desired, engine.ModeApply)
		if err != nil {
			return err
		}
		slog.Info("synced", "summary", report.Summary())
		return nil
	}
}

// watcher drives debounced passes from filesystem events. Watches are
// refreshed after every pass so directories that appear later get
// covered.
type watcher struct {
	root     *fsx.Root
	debounce time.Duration
	pass     func(context.Context) error
}

func (w *watcher) run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer fw.Close()

	w.refreshWatches(fw)

	// One pass up front so the session starts from a known state.
	if err := w.pass(ctx); err != nil {
		slog.Error("pass failed", "error", err)
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(ev.Name) {
				continue
			}
			slog.Debug("fs event", "op", ev.Op.String(), "path", ev.Name)
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		case <-timer.C:
			pending = false
			if err := w.pass(ctx); err != nil {
				slog.Error("pass failed", "error", err)
			}
			w.refreshWatches(fw)
		}
	}
}

// refreshWatches points the watcher at the root, the state dir, every
// rule directory, and every projection target directory. fsnotify
// watches are not recursive, so rule trees are walked. Re-adding an
// already-watched path is a no-op, and vanished paths simply fail to
// add until they return.
func (w *watcher) refreshWatches(fw *fsnotify.Watcher) {
	dirs := map[string]bool{
		w.root.Dir(): true,
		filepath.Join(w.root.Dir(), ledger.StateDir): true,
	}

	if m, err := manifest.Load(w.root); err == nil {
		for _, pat := range m.Rules.Include {
			base, _ := doublestar.SplitPattern(pat)
			baseAbs := filepath.Join(w.root.Dir(), filepath.FromSlash(base))
			_ = filepath.WalkDir(baseAbs, func(path string, d fs.DirEntry, err error) error {
				if err == nil && d.IsDir() {
					dirs[path] = true
				}
				return nil
			})
		}
		if rules, err := manifest.DiscoverRules(w.root, m); err == nil {
			if desired, err := tools.BuildDesired(tools.Builtin(), m, rules); err == nil {
				for _, in := range desired.Intents {
					for _, p := range in.Projections {
						dir := filepath.Join(w.root.Dir(), filepath.FromSlash(p.File.Dir().String()))
						dirs[dir] = true
					}
				}
			}
		}
	}

	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			slog.Debug("watch add failed", "dir", dir, "error", err)
		}
	}
}

// relevantEvent filters out engine-generated churn: ledger rewrites
// from our own sync passes, lock files, and atomic-write temp files.
func relevantEvent(name string) bool {
	base := filepath.Base(name)
	if strings.HasSuffix(base, ".lock") || strings.HasSuffix(base, ".tmp") {
		return false
	}
	if strings.HasPrefix(base, ".reposync-") {
		return false
	}
	return base != ledger.FileName
}
