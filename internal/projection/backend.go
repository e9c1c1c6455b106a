package projection

import (
	"fmt"

	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
)

// DriftState classifies how a projection's live bytes relate to the
// record the engine kept for it.
type DriftState string

const (
	// InSync: the owned region exists and matches the recorded state.
	InSync DriftState = "in_sync"
	// Drifted: the owned region exists but its content changed.
	Drifted DriftState = "drifted"
	// BrokenLink: the file exists but the owned region is gone
	// (markers removed, key deleted).
	BrokenLink DriftState = "broken_link"
	// MissingFile: the target file itself is gone.
	MissingFile DriftState = "missing_file"
)

// Drift is the result of comparing one projection against its file.
// Stored and Live carry the recorded and observed values (checksums or
// canonical JSON, depending on the kind); Live is empty when the region
// or file is absent.
type Drift struct {
	State  DriftState
	Stored string
	Live   string
}

// ConflictError is returned when an operation would destroy content the
// engine did not write: unrolling a region whose live state no longer
// matches the record. The region is left untouched.
type ConflictError struct {
	File     fsx.NormalizedPath
	Location string
	Stored   string
	Live     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s (%s): live content diverged from recorded state", e.File, e.Location)
}

// Content is the rendered payload a backend applies. Exactly one field
// is meaningful, matching the backend's kind.
type Content struct {
	Text  string // text_block body, without delimiters
	Value any    // json_key value
	Raw   []byte // file_managed full content
}

// Backend is one ownership strategy. Backends edit the in-memory *File
// only; the engine decides when (and whether) bytes reach disk. Apply
// refreshes the projection's checksum or snapshot to match what it
// wrote.
type Backend interface {
	Apply(f *File, proj *ledger.Projection, c Content) error
	Unroll(f *File, proj *ledger.Projection) error
	CheckDrift(f *File, proj *ledger.Projection) (Drift, error)
}

// ForKind returns the backend implementing the given projection kind.
func ForKind(kind ledger.Kind) (Backend, error) {
	switch kind {
	case ledger.KindTextBlock:
		return textBlockBackend{}, nil
	case ledger.KindJSONKey:
		return jsonKeyBackend{}, nil
	case ledger.KindFileManaged:
		return fileManagedBackend{}, nil
	default:
		return nil, fmt.Errorf("unknown projection kind %q", kind)
	}
}
