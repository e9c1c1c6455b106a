package engine

import (
	"fmt"

	"github.com/reposync/reposync/internal/canon"
	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
)

// action is what one run intends for one intent.
type action int

const (
	actCreate action = iota
	actSync   // args and projection set unchanged: verify, repair if broken
	actUpdate // args or projection set changed: re-render in place
	actRemove
)

// slotOutcome tracks a single projection through a run.
type slotOutcome int

const (
	slotPending slotOutcome = iota
	slotInSync
	slotApplied
	slotUnrolled
	slotConflict
	slotFailed
)

// Phases order work within one file: removals free locations before
// creates claim them, updates last.
const (
	phaseUnroll = iota
	phaseCreate
	phaseUpdate
)

// slot is one projection-level unit of work. des==nil means unroll the
// prior projection; otherwise apply (or, for actSync, verify first).
type slot struct {
	w     *workIntent
	phase int

	des   *DesiredProjection
	prior *ledger.Projection // private copy, nil for fresh creates
	next  ledger.Projection  // Apply fills Checksum/ValueSnapshot

	outcome slotOutcome
	detail  string
}

func (s *slot) file() fsx.NormalizedPath {
	if s.des != nil {
		return s.des.File
	}
	return s.prior.File
}

// workIntent accumulates one intent's slots and their results.
type workIntent struct {
	id         string
	action     action
	instanceID string
	args       string // canonical snapshot of desired args
	slots      []*slot
	planErr    string // set when the intent could not even be planned
}

// plan partitions desired against the ledger into per-intent work.
// Desired intents keep their input order; removals follow in ledger
// order.
func (e *Engine) plan(desired *DesiredState, led *ledger.Ledger) []*workIntent {
	desiredIDs := make(map[string]bool, len(desired.Intents))
	work := make([]*workIntent, 0, len(desired.Intents))

	for i := range desired.Intents {
		d := &desired.Intents[i]
		desiredIDs[d.ID] = true
		work = append(work, e.planIntent(d, led.Find(d.ID)))
	}

	for i := range led.Intents {
		prior := &led.Intents[i]
		if desiredIDs[prior.ID] {
			continue
		}
		w := &workIntent{id: prior.ID, action: actRemove, instanceID: prior.InstanceID}
		for j := range prior.Projections {
			pc := prior.Projections[j]
			w.slots = append(w.slots, &slot{w: w, phase: phaseUnroll, prior: &pc})
		}
		work = append(work, w)
	}
	return work
}

func (e *Engine) planIntent(d *DesiredIntent, prior *ledger.Intent) *workIntent {
	w := &workIntent{id: d.ID}

	snapshot, err := canon.ArgsSnapshot(d.Args)
	if err != nil {
		w.planErr = fmt.Sprintf("snapshot args: %v", err)
		return w
	}
	w.args = snapshot

	if prior == nil {
		w.action = actCreate
		id, err := e.idGen()
		if err != nil {
			w.planErr = fmt.Sprintf("generate instance id: %v", err)
			return w
		}
		w.instanceID = id
		for j := range d.Projections {
			des := &d.Projections[j]
			w.slots = append(w.slots, &slot{
				w: w, phase: phaseCreate, des: des,
				next: buildProjection(des, w.instanceID),
			})
		}
		return w
	}

	// Existing intent keeps its instance id through every update.
	w.instanceID = prior.InstanceID

	priorByKey := make(map[string]*ledger.Projection, len(prior.Projections))
	for j := range prior.Projections {
		pc := prior.Projections[j]
		priorByKey[projectionKey(&pc)] = &pc
	}

	sameShape := len(prior.Projections) == len(d.Projections)
	for j := range d.Projections {
		if priorByKey[d.Projections[j].key()] == nil {
			sameShape = false
		}
	}

	if snapshot == prior.Args && sameShape {
		w.action = actSync
	} else {
		w.action = actUpdate
	}

	matched := make(map[string]bool, len(d.Projections))
	for j := range d.Projections {
		des := &d.Projections[j]
		key := des.key()
		matched[key] = true
		w.slots = append(w.slots, &slot{
			w: w, phase: phaseUpdate, des: des,
			prior: priorByKey[key],
			next:  buildProjection(des, w.instanceID),
		})
	}

	// Prior locations the intent no longer wants are unrolled first.
	for j := range prior.Projections {
		pc := prior.Projections[j]
		if matched[projectionKey(&pc)] {
			continue
		}
		w.slots = append(w.slots, &slot{w: w, phase: phaseUnroll, prior: &pc})
	}
	return w
}

func buildProjection(des *DesiredProjection, instanceID string) ledger.Projection {
	p := ledger.Projection{
		Tool: des.Tool,
		File: des.File,
		Kind: des.Kind,
	}
	switch des.Kind {
	case ledger.KindTextBlock:
		p.Marker = instanceID
	case ledger.KindJSONKey:
		p.Pointer = des.Pointer
	}
	return p
}

func projectionKey(p *ledger.Projection) string {
	return p.Tool + "\x00" + string(p.File) + "\x00" + string(p.Kind) + "\x00" + p.Pointer
}

func locationOf(p *ledger.Projection) string {
	switch p.Kind {
	case ledger.KindTextBlock:
		return "marker " + p.Marker
	case ledger.KindJSONKey:
		return "pointer " + p.Pointer
	default:
		return "whole file"
	}
}
