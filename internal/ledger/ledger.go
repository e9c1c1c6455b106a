// Package ledger defines the durable record of every engine-owned
// modification: which intents exist, which projections realize them, and
// the snapshots (checksums, value snapshots, args) that later runs diff
// against. The ledger file is the single source of truth for "what did
// the engine write, and where".
package ledger

import (
	"fmt"
	"time"

	"github.com/reposync/reposync/internal/canon"
	"github.com/reposync/reposync/internal/fsx"
)

// CurrentVersion is the ledger schema version this build reads and
// writes.
//
// Version history:
//  1 - initial schema
const CurrentVersion = 1

// Kind is the closed set of projection strategies.
type Kind string

const (
	// KindTextBlock owns a marker-delimited region inside a shared file.
	KindTextBlock Kind = "text_block"
	// KindJSONKey owns one key (addressed by JSON Pointer) inside a
	// structured file.
	KindJSONKey Kind = "json_key"
	// KindFileManaged owns an entire file.
	KindFileManaged Kind = "file_managed"
)

// Projection is one concrete write location plus the strategy used to
// own it there. Exactly one strategy's fields are populated, selected by
// Kind.
type Projection struct {
	Tool string             `toml:"tool"`
	File fsx.NormalizedPath `toml:"file"`
	Kind Kind               `toml:"kind"`

	// text_block: Marker is the instance id embedded in the delimiters;
	// Checksum covers the enclosed content only.
	Marker   string `toml:"marker,omitempty"`
	Checksum string `toml:"checksum,omitempty"`

	// json_key: Pointer addresses the owned key (RFC 6901);
	// ValueSnapshot is the canonical JSON the engine last wrote there.
	Pointer       string `toml:"pointer,omitempty"`
	ValueSnapshot string `toml:"value_snapshot,omitempty"`

	// file_managed reuses Checksum, computed over the whole file.
}

// Intent is a declared, idempotent unit of desired change: one rule
// applied to one tool, realized by an ordered sequence of projections.
type Intent struct {
	// ID is stable and human-meaningful ("rule:<id>/tool:<name>");
	// unique within a ledger and reused across runs.
	ID string `toml:"id"`

	// InstanceID is the opaque correlation key embedded in files. It is
	// preserved across in-place updates and never reused: a removed and
	// re-created intent gets a fresh one even for identical content.
	InstanceID string `toml:"instance_id"`

	// Args is the canonical JSON snapshot of the rendering inputs.
	// Snapshot equality means "this intent would regenerate identically".
	Args string `toml:"args"`

	Projections []Projection `toml:"projections"`
}

// Ledger is the persisted state: every intent the engine currently owns.
type Ledger struct {
	Version   int       `toml:"version"`
	UpdatedAt time.Time `toml:"updated_at"`
	Intents   []Intent  `toml:"intents,omitempty"`
}

// New returns an empty ledger at the current schema version.
func New() *Ledger {
	return &Ledger{Version: CurrentVersion}
}

// Find returns the intent with the given id, or nil.
func (l *Ledger) Find(id string) *Intent {
	for i := range l.Intents {
		if l.Intents[i].ID == id {
			return &l.Intents[i]
		}
	}
	return nil
}

// IDs returns the set of intent ids present in the ledger.
func (l *Ledger) IDs() map[string]bool {
	ids := make(map[string]bool, len(l.Intents))
	for i := range l.Intents {
		ids[l.Intents[i].ID] = true
	}
	return ids
}

// OwnershipError reports two projections claiming the same location.
// Ownership is exclusive per (file, location-within-file): a ledger that
// violates this is rejected outright rather than partially honored.
type OwnershipError struct {
	File     fsx.NormalizedPath
	Location string // "marker <m>", "pointer <p>", or "whole file"
	IntentA  string
	IntentB  string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("ownership conflict on %s (%s): claimed by %s and %s",
		e.File, e.Location, e.IntentA, e.IntentB)
}

// Validate checks structural integrity and the exclusive-ownership
// invariant. A valid ledger has unique intent ids, globally unique
// instance ids, well-formed projections, and no two claims on the same
// (file, location): duplicate markers, duplicate pointers within a file,
// double file_managed claims, or file_managed combined with any other
// claim on the same file.
func (l *Ledger) Validate() error {
	if l.Version != CurrentVersion {
		return fmt.Errorf("ledger version %d, want %d", l.Version, CurrentVersion)
	}

	seenIDs := make(map[string]bool, len(l.Intents))
	seenInstances := make(map[string]string, len(l.Intents))

	type claim struct {
		intentID string
		location string
	}
	markers := make(map[string]claim)  // file \x00 marker
	pointers := make(map[string]claim) // file \x00 pointer
	wholeFiles := make(map[fsx.NormalizedPath]string)

	for i := range l.Intents {
		in := &l.Intents[i]
		if in.ID == "" {
			return fmt.Errorf("intent %d: empty id", i)
		}
		if seenIDs[in.ID] {
			return fmt.Errorf("duplicate intent id %q", in.ID)
		}
		seenIDs[in.ID] = true

		if in.InstanceID == "" {
			return fmt.Errorf("intent %s: empty instance id", in.ID)
		}
		if other, ok := seenInstances[in.InstanceID]; ok {
			return fmt.Errorf("instance id %s reused by %s and %s", in.InstanceID, other, in.ID)
		}
		seenInstances[in.InstanceID] = in.ID

		if len(in.Projections) == 0 {
			return fmt.Errorf("intent %s: no projections", in.ID)
		}

		for j := range in.Projections {
			p := &in.Projections[j]
			if p.File.IsRoot() {
				return fmt.Errorf("intent %s: projection %d has no file", in.ID, j)
			}
			if p.File != fsx.Normalize(string(p.File)) {
				return fmt.Errorf("intent %s: projection file %q is not normalized", in.ID, p.File)
			}

			switch p.Kind {
			case KindTextBlock:
				if p.Marker == "" {
					return fmt.Errorf("intent %s: text_block on %s has no marker", in.ID, p.File)
				}
				if !canon.ValidDigest(p.Checksum) {
					return fmt.Errorf("intent %s: text_block on %s has invalid checksum %q", in.ID, p.File, p.Checksum)
				}
				key := string(p.File) + "\x00" + p.Marker
				if prev, ok := markers[key]; ok {
					return &OwnershipError{File: p.File, Location: "marker " + p.Marker, IntentA: prev.intentID, IntentB: in.ID}
				}
				markers[key] = claim{intentID: in.ID}

			case KindJSONKey:
				if p.Pointer == "" {
					return fmt.Errorf("intent %s: json_key on %s has no pointer", in.ID, p.File)
				}
				key := string(p.File) + "\x00" + p.Pointer
				if prev, ok := pointers[key]; ok {
					return &OwnershipError{File: p.File, Location: "pointer " + p.Pointer, IntentA: prev.intentID, IntentB: in.ID}
				}
				pointers[key] = claim{intentID: in.ID}

			case KindFileManaged:
				if !canon.ValidDigest(p.Checksum) {
					return fmt.Errorf("intent %s: file_managed %s has invalid checksum %q", in.ID, p.File, p.Checksum)
				}
				if prev, ok := wholeFiles[p.File]; ok {
					return &OwnershipError{File: p.File, Location: "whole file", IntentA: prev, IntentB: in.ID}
				}
				wholeFiles[p.File] = in.ID

			default:
				return fmt.Errorf("intent %s: unknown projection kind %q", in.ID, p.Kind)
			}
		}
	}

	// A whole-file claim excludes every other claim on that file, in
	// either order of declaration.
	for file, owner := range wholeFiles {
		for i := range l.Intents {
			in := &l.Intents[i]
			for j := range in.Projections {
				p := &in.Projections[j]
				if p.File != file {
					continue
				}
				if p.Kind == KindFileManaged && in.ID == owner {
					continue
				}
				return &OwnershipError{File: file, Location: "whole file", IntentA: owner, IntentB: in.ID}
			}
		}
	}

	return nil
}
