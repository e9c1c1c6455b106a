package engine

import "fmt"

// Outcome classifies what happened to one intent during a run.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeRemoved   Outcome = "removed"
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeConflict: the live file diverged from the recorded state
	// and the engine refused to overwrite or remove it.
	OutcomeConflict Outcome = "conflict"
	OutcomeFailed   Outcome = "failed"
)

// IntentResult is the per-intent line of a reconcile report.
type IntentResult struct {
	ID      string  `json:"id"`
	Outcome Outcome `json:"outcome"`
	// Reason carries conflict and failure detail, empty otherwise.
	Reason string `json:"reason,omitempty"`
}

// Report is what a reconcile run produced, in desired-state order with
// removals last.
type Report struct {
	DryRun  bool           `json:"dry_run"`
	Results []IntentResult `json:"results"`
}

// Counts tallies results per outcome.
func (r *Report) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, res := range r.Results {
		counts[res.Outcome]++
	}
	return counts
}

// Has reports whether any intent finished with the given outcome.
func (r *Report) Has(o Outcome) bool {
	for _, res := range r.Results {
		if res.Outcome == o {
			return true
		}
	}
	return false
}

// Summary renders the one-line totals used by logs and CLI footers.
func (r *Report) Summary() string {
	c := r.Counts()
	return fmt.Sprintf("%d created, %d updated, %d removed, %d unchanged, %d conflicts, %d failed",
		c[OutcomeCreated], c[OutcomeUpdated], c[OutcomeRemoved],
		c[OutcomeUnchanged], c[OutcomeConflict], c[OutcomeFailed])
}
