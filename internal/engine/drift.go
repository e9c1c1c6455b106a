package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
	"github.com/reposync/reposync/internal/projection"
)

// ProjectionDrift is the observed state of one recorded projection.
type ProjectionDrift struct {
	Tool     string                `json:"tool"`
	File     fsx.NormalizedPath    `json:"file"`
	Kind     ledger.Kind           `json:"kind"`
	Location string                `json:"location"`
	State    projection.DriftState `json:"state"`
	Stored   string                `json:"stored,omitempty"`
	Live     string                `json:"live,omitempty"`
	// Error is set when the live file could not even be inspected
	// (unparseable structured file). Such projections count as drifted.
	Error string `json:"error,omitempty"`
}

// IntentDrift aggregates one intent's projections; State is the worst
// projection state.
type IntentDrift struct {
	ID          string                `json:"id"`
	InstanceID  string                `json:"instance_id"`
	State       projection.DriftState `json:"state"`
	Projections []ProjectionDrift     `json:"projections"`
}

// DriftReport is a full read-only inspection of the ledger against the
// working tree.
type DriftReport struct {
	CheckedAt time.Time     `json:"checked_at"`
	Intents   []IntentDrift `json:"intents"`
}

// Clean reports whether every projection is in sync.
func (r *DriftReport) Clean() bool {
	for _, in := range r.Intents {
		if in.State != projection.InSync {
			return false
		}
	}
	return true
}

// Count tallies projections per state.
func (r *DriftReport) Count(state projection.DriftState) int {
	n := 0
	for _, in := range r.Intents {
		for _, p := range in.Projections {
			if p.State == state {
				n++
			}
		}
	}
	return n
}

// DetectDrift compares every recorded projection against the live tree.
// It mutates nothing and takes no locks; a concurrent writer can at
// worst make the snapshot momentarily stale.
func (e *Engine) DetectDrift(ctx context.Context) (*DriftReport, error) {
	led, err := e.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	report := &DriftReport{CheckedAt: e.clock().UTC()}
	files := make(map[fsx.NormalizedPath]*projection.File)

	for i := range led.Intents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in := &led.Intents[i]
		drift := IntentDrift{ID: in.ID, InstanceID: in.InstanceID, State: projection.InSync}

		for j := range in.Projections {
			proj := &in.Projections[j]
			status := ProjectionDrift{
				Tool:     proj.Tool,
				File:     proj.File,
				Kind:     proj.Kind,
				Location: locationOf(proj),
			}

			f, ok := files[proj.File]
			if !ok {
				data, exists, err := e.root.ReadFile(proj.File)
				if err != nil {
					status.State = projection.Drifted
					status.Error = err.Error()
					drift.Projections = append(drift.Projections, status)
					drift.State = worseDrift(drift.State, status.State)
					continue
				}
				f = projection.NewFile(proj.File, data, exists)
				files[proj.File] = f
			}

			backend, err := projection.ForKind(proj.Kind)
			if err != nil {
				status.State, status.Error = projection.Drifted, err.Error()
			} else if d, err := backend.CheckDrift(f, proj); err != nil {
				status.State, status.Error = projection.Drifted, err.Error()
			} else {
				status.State, status.Stored, status.Live = d.State, d.Stored, d.Live
			}

			drift.Projections = append(drift.Projections, status)
			drift.State = worseDrift(drift.State, status.State)
		}
		report.Intents = append(report.Intents, drift)
	}
	return report, nil
}

// worseDrift orders states by how much attention they demand.
func worseDrift(a, b projection.DriftState) projection.DriftState {
	if driftSeverity(b) > driftSeverity(a) {
		return b
	}
	return a
}

func driftSeverity(s projection.DriftState) int {
	switch s {
	case projection.Drifted:
		return 3
	case projection.BrokenLink:
		return 2
	case projection.MissingFile:
		return 1
	default:
		return 0
	}
}
