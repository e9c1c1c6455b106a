package projection

import (
	"fmt"

	"github.com/reposync/reposync/internal/canon"
	"github.com/reposync/reposync/internal/ledger"
)

// jsonKeyBackend owns one key inside a structured settings file. Live
// values are compared canonically, not byte-wise: a hand-reformatted
// file whose owned value still decodes to the recorded snapshot is in
// sync.
type jsonKeyBackend struct{}

func (jsonKeyBackend) Apply(f *File, proj *ledger.Projection, c Content) error {
	tokens, err := ParsePointer(proj.Pointer)
	if err != nil {
		return err
	}
	doc, err := f.structured()
	if err != nil {
		return err
	}
	if err := doc.set(tokens, c.Value); err != nil {
		return fmt.Errorf("%s: set %s: %w", f.Path, proj.Pointer, err)
	}
	snap, err := canon.MarshalCanonical(c.Value)
	if err != nil {
		return fmt.Errorf("snapshot value at %s: %w", proj.Pointer, err)
	}
	proj.ValueSnapshot = string(snap)
	return nil
}

func (jsonKeyBackend) Unroll(f *File, proj *ledger.Projection) error {
	if !f.HasContent() {
		return nil
	}
	tokens, err := ParsePointer(proj.Pointer)
	if err != nil {
		return err
	}
	doc, err := f.structured()
	if err != nil {
		return err
	}
	live, found, err := doc.get(tokens)
	if err != nil {
		return fmt.Errorf("%s: read %s: %w", f.Path, proj.Pointer, err)
	}
	if !found {
		return nil
	}
	liveCanon, err := canon.MarshalCanonical(live)
	if err != nil {
		return fmt.Errorf("%s: canonicalize live value at %s: %w", f.Path, proj.Pointer, err)
	}
	if string(liveCanon) != proj.ValueSnapshot {
		return &ConflictError{
			File:     f.Path,
			Location: "pointer " + proj.Pointer,
			Stored:   proj.ValueSnapshot,
			Live:     string(liveCanon),
		}
	}
	return doc.delete(tokens)
}

func (jsonKeyBackend) CheckDrift(f *File, proj *ledger.Projection) (Drift, error) {
	if !f.HasContent() {
		return Drift{State: MissingFile, Stored: proj.ValueSnapshot}, nil
	}
	tokens, err := ParsePointer(proj.Pointer)
	if err != nil {
		return Drift{}, err
	}
	doc, err := f.structured()
	if err != nil {
		return Drift{}, err
	}
	live, found, err := doc.get(tokens)
	if err != nil {
		return Drift{}, fmt.Errorf("%s: read %s: %w", f.Path, proj.Pointer, err)
	}
	if !found {
		return Drift{State: BrokenLink, Stored: proj.ValueSnapshot}, nil
	}
	liveCanon, err := canon.MarshalCanonical(live)
	if err != nil {
		return Drift{}, fmt.Errorf("%s: canonicalize live value at %s: %w", f.Path, proj.Pointer, err)
	}
	d := Drift{Stored: proj.ValueSnapshot, Live: string(liveCanon)}
	if d.Live == d.Stored {
		d.State = InSync
	} else {
		d.State = Drifted
	}
	return d, nil
}
