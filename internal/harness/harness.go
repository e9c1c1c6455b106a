package harness

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reposync/reposync/internal/engine"
	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
	"github.com/reposync/reposync/internal/manifest"
	"github.com/reposync/reposync/internal/testutil"
	"github.com/reposync/reposync/internal/tools"
)

// Harness executes scenarios against a real engine in a temporary
// repository root. The clock and instance-id generator are
// deterministic, so every run of the same scenario produces the same
// transcript, ledger, and file bytes.
type Harness struct {
	t    *testing.T
	root *fsx.Root
	eng  *engine.Engine

	transcript bytes.Buffer
}

// New builds a harness over a fresh t.TempDir repository.
func New(t *testing.T) *Harness {
	t.Helper()

	root, err := fsx.NewRoot(t.TempDir())
	require.NoError(t, err, "bind harness root")

	clock := testutil.NewClock(testutil.DefaultClockStart, time.Second)
	ids := testutil.NewIDSequence("instance")
	eng := engine.New(root, ledger.NewStore(root),
		engine.WithClock(clock.Now),
		engine.WithIDGenerator(ids.Next))

	return &Harness{t: t, root: root, eng: eng}
}

// Root exposes the repository root for tests that inspect state the
// scenario language cannot reach (the ledger file, lock files).
func (h *Harness) Root() *fsx.Root { return h.root }

// Transcript returns everything recorded so far.
func (h *Harness) Transcript() []byte { return h.transcript.Bytes() }

// Run executes the scenario: setup, every step with its expectations,
// then the golden-file snapshots. Failed expectations fail t.
func (h *Harness) Run(s *Scenario) {
	h.t.Helper()

	paths := make([]string, 0, len(s.Setup.Files))
	for p := range s.Setup.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		err := h.root.WriteAtomic(fsx.Normalize(p), []byte(s.Setup.Files[p]))
		require.NoError(h.t, err, "setup %s", p)
	}

	for i := range s.Steps {
		h.runStep(i+1, &s.Steps[i])
	}

	for _, p := range s.GoldenFiles {
		h.snapshotFile(p)
	}
}

func (h *Harness) runStep(num int, step *Step) {
	h.t.Helper()

	op, err := step.stepOp()
	require.NoError(h.t, err, "step %d", num)

	var (
		report *engine.Report
		drift  *engine.DriftReport
	)

	switch op {
	case "sync":
		h.section("step %d: sync", num)
		report = h.reconcile(num, h.buildDesired(num), engine.ModeApply)

	case "dry_run":
		h.section("step %d: dry-run", num)
		report = h.reconcile(num, h.buildDesired(num), engine.ModeDryRun)

	case "unroll":
		h.section("step %d: unroll", num)
		report = h.reconcile(num, h.reduceDesired(num, step.Unroll), engine.ModeApply)

	case "edit":
		h.section("step %d: edit %s", num, step.Edit.File)
		err := h.root.WriteAtomic(fsx.Normalize(step.Edit.File), []byte(step.Edit.Content))
		require.NoError(h.t, err, "step %d: edit %s", num, step.Edit.File)
		h.blank()

	case "remove_rule":
		h.section("step %d: remove_rule %s", num, step.RemoveRule)
		h.removeRule(num, step.RemoveRule)
		h.blank()

	case "drift":
		h.section("step %d: drift", num)
		var err error
		drift, err = h.eng.DetectDrift(context.Background())
		require.NoError(h.t, err, "step %d: detect drift", num)
		h.logDrift(drift)
	}

	if step.Expect != nil {
		h.checkExpect(num, step.Expect, report, drift)
	}
}

// buildDesired composes manifest, discovered rules, and the built-in
// tool registry into the engine's desired state, exactly as the CLI
// does.
func (h *Harness) buildDesired(num int) *engine.DesiredState {
	h.t.Helper()

	m, err := manifest.Load(h.root)
	require.NoError(h.t, err, "step %d: load manifest", num)
	rules, err := manifest.DiscoverRules(h.root, m)
	require.NoError(h.t, err, "step %d: discover rules", num)
	desired, err := tools.BuildDesired(tools.Builtin(), m, rules)
	require.NoError(h.t, err, "step %d: build desired state", num)
	return desired
}

// reduceDesired drops the unrolled intents from the desired state.
func (h *Harness) reduceDesired(num int, u *UnrollStep) *engine.DesiredState {
	h.t.Helper()

	if u.All {
		return &engine.DesiredState{}
	}

	desired := h.buildDesired(num)
	drop := make(map[string]bool, len(u.Intents))
	for _, id := range u.Intents {
		drop[id] = true
	}

	reduced := &engine.DesiredState{}
	for _, in := range desired.Intents {
		if drop[in.ID] {
			delete(drop, in.ID)
			continue
		}
		reduced.Intents = append(reduced.Intents, in)
	}
	for id := range drop {
		h.t.Fatalf("step %d: unroll names unknown intent %q", num, id)
	}
	return reduced
}

func (h *Harness) reconcile(num int, desired *engine.DesiredState, mode engine.Mode) *engine.Report {
	h.t.Helper()

	report, err := h.eng.Reconcile(context.Background(), desired, mode)
	require.NoError(h.t, err, "step %d: reconcile", num)
	h.logReport(report)
	return report
}

func (h *Harness) removeRule(num int, id string) {
	h.t.Helper()

	m, err := manifest.Load(h.root)
	require.NoError(h.t, err, "step %d: load manifest", num)
	rules, err := manifest.DiscoverRules(h.root, m)
	require.NoError(h.t, err, "step %d: discover rules", num)

	for i := range rules {
		if rules[i].ID == id {
			require.NoError(h.t, h.root.Remove(rules[i].Source),
				"step %d: remove rule source %s", num, rules[i].Source)
			return
		}
	}
	h.t.Fatalf("step %d: remove_rule names unknown rule %q", num, id)
}

func (h *Harness) checkExpect(num int, e *Expect, report *engine.Report, drift *engine.DriftReport) {
	h.t.Helper()

	if len(e.Outcomes) > 0 {
		require.NotNil(h.t, report, "step %d: expect.outcomes without a report", num)
		require.NoError(h.t, checkOutcomes(report, e.Outcomes), "step %d", num)
	}
	if len(e.Drift) > 0 {
		require.NotNil(h.t, drift, "step %d: expect.drift without a drift report", num)
		require.NoError(h.t, checkDriftStates(drift, e.Drift), "step %d", num)
	}
	require.NoError(h.t, checkFiles(h.root, e), "step %d", num)
}

// Transcript rendering. The format is fixed: golden files depend on it.

func (h *Harness) section(format string, args ...any) {
	fmt.Fprintf(&h.transcript, "== "+format+" ==\n", args...)
}

func (h *Harness) blank() {
	h.transcript.WriteByte('\n')
}

func (h *Harness) logReport(report *engine.Report) {
	for _, res := range report.Results {
		fmt.Fprintf(&h.transcript, "%-9s %s\n", res.Outcome, res.ID)
		if res.Reason != "" {
			fmt.Fprintf(&h.transcript, "  reason: %s\n", res.Reason)
		}
	}
	summary := report.Summary()
	if report.DryRun {
		summary += " (dry-run)"
	}
	fmt.Fprintln(&h.transcript, summary)
	h.blank()
}

func (h *Harness) logDrift(drift *engine.DriftReport) {
	for _, in := range drift.Intents {
		fmt.Fprintf(&h.transcript, "%-12s %s\n", in.State, in.ID)
		for _, p := range in.Projections {
			fmt.Fprintf(&h.transcript, "  %-12s %s (%s)\n", p.State, p.File, p.Location)
		}
	}
	h.blank()
}

func (h *Harness) snapshotFile(rel string) {
	h.t.Helper()

	h.section("file: %s", rel)
	data, exists, err := h.root.ReadFile(fsx.Normalize(rel))
	require.NoError(h.t, err, "snapshot %s", rel)
	switch {
	case !exists:
		h.transcript.WriteString("(absent)\n")
	case len(data) == 0:
		h.transcript.WriteString("(empty)\n")
	default:
		h.transcript.Write(data)
		if data[len(data)-1] != '\n' {
			h.transcript.WriteByte('\n')
		}
	}
	h.blank()
}
