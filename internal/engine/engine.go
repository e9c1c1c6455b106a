package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
	"github.com/reposync/reposync/internal/projection"
)

// Mode selects whether a reconcile run touches disk.
type Mode int

const (
	// ModeApply performs writes and persists the ledger.
	ModeApply Mode = iota
	// ModeDryRun computes every outcome the run would produce without
	// writing a single byte.
	ModeDryRun
)

func (m Mode) String() string {
	if m == ModeDryRun {
		return "dry-run"
	}
	return "apply"
}

// DefaultLockTimeout bounds how long a run waits for the ledger or a
// target file held by another process.
const DefaultLockTimeout = 5 * time.Second

// Engine reconciles a desired state against one repository root.
//
// CRITICAL: mutating runs are single-writer per root. The ledger lock
// is held for the whole of Reconcile in ModeApply; each target file is
// additionally locked around its read-transform-replace. Read-only
// flows (ModeDryRun, DetectDrift) take no locks at all.
//
// Write discipline per run: the ledger is read once and written at
// most once; every target file is read at most once and atomically
// replaced at most once, no matter how many intents share it.
type Engine struct {
	root  *fsx.Root
	store *ledger.Store

	idGen       func() (string, error)
	clock       func() time.Time
	lockTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator swaps the instance-id source. Tests use fixed ids;
// production uses UUIDv7.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(e *Engine) { e.idGen = gen }
}

// WithClock swaps the time source stamped into the ledger.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLockTimeout bounds lock acquisition. Timeouts are retried once
// before the affected work is failed.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) { e.lockTimeout = d }
}

// New builds an engine over the given root and ledger store.
func New(root *fsx.Root, store *ledger.Store, opts ...Option) *Engine {
	e := &Engine{
		root:        root,
		store:       store,
		idGen:       newInstanceID,
		clock:       time.Now,
		lockTimeout: DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Instance ids are UUIDv7: unique, time-ordered, never reused even for
// identical content.
func newInstanceID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate instance id: %w", err)
	}
	return id.String(), nil
}

// Reconcile drives the repository toward desired. Per-intent failures
// never abort sibling intents; the only fatal conditions are an
// unreadable or corrupt ledger, an unacquirable ledger lock, a failed
// ledger save, and context cancellation.
func (e *Engine) Reconcile(ctx context.Context, desired *DesiredState, mode Mode) (*Report, error) {
	if err := desired.Validate(); err != nil {
		return nil, fmt.Errorf("desired state: %w", err)
	}

	if mode == ModeApply {
		lock, err := e.lockLedger()
		if err != nil {
			return nil, err
		}
		defer lock.Release()
	}

	led, err := e.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	work := e.plan(desired, led)

	batches := make(map[fsx.NormalizedPath][]*slot)
	for _, w := range work {
		for _, s := range w.slots {
			batches[s.file()] = append(batches[s.file()], s)
		}
	}
	paths := make([]fsx.NormalizedPath, 0, len(batches))
	for p := range batches {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	slog.Debug("reconcile planned",
		"mode", mode.String(), "intents", len(work), "files", len(paths))

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.processBatch(p, batches[p], mode)
	}

	report, changed := e.finish(work, led, mode)

	if mode == ModeApply && changed {
		if err := e.store.Save(led, e.clock()); err != nil {
			return nil, fmt.Errorf("save ledger: %w", err)
		}
	}

	slog.Info("reconcile complete", "mode", mode.String(), "summary", report.Summary())
	return report, nil
}

func (e *Engine) lockLedger() (*fsx.Lock, error) {
	lock, err := e.store.Lock(e.lockTimeout)
	if errors.Is(err, fsx.ErrLockTimeout) {
		slog.Warn("ledger lock busy, retrying once", "timeout", e.lockTimeout)
		lock, err = e.store.Lock(e.lockTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire ledger lock: %w", err)
	}
	return lock, nil
}

func (e *Engine) lockFile(p fsx.NormalizedPath) (*fsx.Lock, error) {
	lock, err := e.root.AcquireLock(p, e.lockTimeout)
	if errors.Is(err, fsx.ErrLockTimeout) {
		slog.Warn("file lock busy, retrying once", "path", p, "timeout", e.lockTimeout)
		lock, err = e.root.AcquireLock(p, e.lockTimeout)
	}
	return lock, err
}

// processBatch runs every slot touching one file: a single read, all
// transforms in memory, then one atomic replace (or delete). Slot-level
// problems are recorded on the slot, never returned.
func (e *Engine) processBatch(path fsx.NormalizedPath, slots []*slot, mode Mode) {
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].phase < slots[j].phase })

	if mode == ModeApply {
		lock, err := e.lockFile(path)
		if err != nil {
			failSlots(slots, fmt.Sprintf("lock %s: %v", path, err))
			return
		}
		defer lock.Release()
	}

	data, exists, err := e.root.ReadFile(path)
	if err != nil {
		failSlots(slots, fmt.Sprintf("read %s: %v", path, err))
		return
	}
	f := projection.NewFile(path, data, exists)

	for _, s := range slots {
		e.runSlot(f, s)
	}

	if mode == ModeDryRun || !f.Dirty() {
		return
	}

	if f.Deleted() {
		if err := e.root.Remove(path); err != nil {
			failWriters(slots, fmt.Sprintf("delete %s: %v", path, err))
		}
		return
	}

	out, err := f.Bytes()
	if err != nil {
		failWriters(slots, fmt.Sprintf("serialize %s: %v", path, err))
		return
	}
	if exists && bytes.Equal(out, data) {
		return
	}
	if err := e.root.WriteAtomic(path, out); err != nil {
		failWriters(slots, fmt.Sprintf("write %s: %v", path, err))
	}
}

func (e *Engine) runSlot(f *projection.File, s *slot) {
	if s.des == nil {
		backend, err := projection.ForKind(s.prior.Kind)
		if err != nil {
			s.outcome, s.detail = slotFailed, err.Error()
			return
		}
		if err := backend.Unroll(f, s.prior); err != nil {
			var conflict *projection.ConflictError
			if errors.As(err, &conflict) {
				s.outcome, s.detail = slotConflict, conflict.Error()
			} else {
				s.outcome, s.detail = slotFailed, err.Error()
			}
			return
		}
		s.outcome = slotUnrolled
		return
	}

	backend, err := projection.ForKind(s.next.Kind)
	if err != nil {
		s.outcome, s.detail = slotFailed, err.Error()
		return
	}

	if s.w.action == actSync {
		d, err := backend.CheckDrift(f, s.prior)
		if err != nil {
			s.outcome, s.detail = slotFailed, err.Error()
			return
		}
		switch d.State {
		case projection.InSync:
			s.outcome = slotInSync
			return
		case projection.Drifted:
			// Unchanged rule, edited file: the edit stands until the
			// rule itself changes.
			s.outcome = slotConflict
			s.detail = (&projection.ConflictError{
				File:     s.prior.File,
				Location: locationOf(s.prior),
				Stored:   d.Stored,
				Live:     d.Live,
			}).Error()
			return
		}
		// BrokenLink or MissingFile: fall through and repair.
	}

	if err := backend.Apply(f, &s.next, s.des.Content); err != nil {
		s.outcome, s.detail = slotFailed, err.Error()
		return
	}
	s.outcome = slotApplied
}

func failSlots(slots []*slot, detail string) {
	for _, s := range slots {
		if s.outcome == slotPending {
			s.outcome, s.detail = slotFailed, detail
		}
	}
}

// failWriters demotes slots whose in-memory mutation could not be
// persisted. Read-only results (in-sync, conflict) stand.
func failWriters(slots []*slot, detail string) {
	for _, s := range slots {
		if s.outcome == slotApplied || s.outcome == slotUnrolled {
			s.outcome, s.detail = slotFailed, detail
		}
	}
}

// finish aggregates slot outcomes into per-intent results and folds the
// run back into the ledger. Reports whether the ledger changed.
func (e *Engine) finish(work []*workIntent, led *ledger.Ledger, mode Mode) (*Report, bool) {
	report := &Report{DryRun: mode == ModeDryRun}
	changed := false

	for _, w := range work {
		res := IntentResult{ID: w.id}
		if w.planErr != "" {
			res.Outcome, res.Reason = OutcomeFailed, w.planErr
			report.Results = append(report.Results, res)
			continue
		}

		var failures, conflicts []string
		var applied, unrolled bool
		var projs []ledger.Projection
		desiredOK := true

		for _, s := range w.slots {
			switch s.outcome {
			case slotApplied:
				projs = append(projs, s.next)
				applied = true
			case slotInSync:
				projs = append(projs, *s.prior)
			case slotUnrolled:
				unrolled = true
			case slotConflict:
				conflicts = append(conflicts, s.detail)
				if s.prior != nil {
					projs = append(projs, *s.prior)
				}
				if s.des != nil {
					desiredOK = false
				}
			case slotFailed:
				failures = append(failures, s.detail)
				if s.prior != nil {
					projs = append(projs, *s.prior)
				}
				if s.des != nil {
					desiredOK = false
				}
			default:
				failures = append(failures, fmt.Sprintf("%s: not processed", s.file()))
				desiredOK = false
			}
		}

		if mode == ModeApply {
			changed = e.fold(w, led, projs, desiredOK) || changed
		}

		switch {
		case len(failures) > 0:
			res.Outcome, res.Reason = OutcomeFailed, joinDetails(failures)
		case len(conflicts) > 0:
			res.Outcome, res.Reason = OutcomeConflict, joinDetails(conflicts)
		case w.action == actCreate:
			res.Outcome = OutcomeCreated
		case w.action == actRemove:
			res.Outcome = OutcomeRemoved
		case applied || unrolled:
			res.Outcome = OutcomeUpdated
		default:
			res.Outcome = OutcomeUnchanged
		}
		report.Results = append(report.Results, res)
	}

	return report, changed
}

// fold applies one intent's results to the ledger. projs is the
// projection set actually on disk now, as far as this run could tell.
func (e *Engine) fold(w *workIntent, led *ledger.Ledger, projs []ledger.Projection, desiredOK bool) bool {
	switch w.action {
	case actCreate:
		if len(projs) == 0 {
			return false
		}
		// Partial creates are recorded too: the next run repairs the
		// missing projections instead of minting an orphan instance id.
		led.Intents = append(led.Intents, ledger.Intent{
			ID:          w.id,
			InstanceID:  w.instanceID,
			Args:        w.args,
			Projections: projs,
		})
		return true

	case actRemove:
		in := led.Find(w.id)
		if in == nil {
			return false
		}
		if len(projs) == 0 {
			removeIntent(led, w.id)
			return true
		}
		if !projectionsEqual(in.Projections, projs) {
			in.Projections = projs
			return true
		}
		return false

	default: // actSync, actUpdate
		in := led.Find(w.id)
		if in == nil {
			return false
		}
		mutated := false
		// Args advance only once every desired projection landed, so an
		// interrupted update is retried whole on the next run.
		if desiredOK && in.Args != w.args {
			in.Args = w.args
			mutated = true
		}
		if !projectionsEqual(in.Projections, projs) {
			in.Projections = projs
			mutated = true
		}
		return mutated
	}
}

func removeIntent(led *ledger.Ledger, id string) {
	kept := led.Intents[:0]
	for _, in := range led.Intents {
		if in.ID != id {
			kept = append(kept, in)
		}
	}
	led.Intents = kept
}

func projectionsEqual(a, b []ledger.Projection) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinDetails(details []string) string {
	out := details[0]
	for _, d := range details[1:] {
		out += "; " + d
	}
	return out
}
