package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/reposync/reposync/internal/fsx"
)

// StateDir is the engine's directory under the repository root.
const StateDir = ".repository"

// FileName is the ledger file inside StateDir.
const FileName = "ledger.toml"

// Path is the ledger's root-relative location.
var Path = fsx.Normalize(StateDir + "/" + FileName)

// ErrVersion marks a ledger written by an incompatible schema version.
// There is no silent migration: the run refuses and the file is left
// untouched.
var ErrVersion = errors.New("unsupported ledger version")

// CorruptError is fatal: the ledger file exists but cannot be trusted.
// The previous file is never partially overwritten; recovery is manual.
type CorruptError struct {
	Path fsx.NormalizedPath
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("ledger %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Store reads and writes the ledger file through the atomic substrate.
// All mutating access is serialized by the ledger lock, which callers
// hold for the duration of a reconciliation run.
type Store struct {
	root *fsx.Root
}

// NewStore binds a store to a repository root.
func NewStore(root *fsx.Root) *Store {
	return &Store{root: root}
}

// Lock acquires the ledger's advisory lock with a bounded wait. The lock
// serializes mutating runs against the same root; hold it across the
// whole load-reconcile-save cycle.
func (s *Store) Lock(timeout time.Duration) (*fsx.Lock, error) {
	return s.root.AcquireLock(Path, timeout)
}

// Load reads and validates the ledger. A missing file yields a fresh
// empty ledger (the file is created on the first mutating save, not
// here). Parse failures, version mismatches, and invariant violations
// all surface as *CorruptError: the caller must treat them as fatal and
// never write over the existing file.
func (s *Store) Load() (*Ledger, error) {
	data, exists, err := s.root.ReadFile(Path)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if !exists {
		return New(), nil
	}

	// Check the version gate before trusting the full document.
	var probe struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &probe); err != nil {
		return nil, &CorruptError{Path: Path, Err: err}
	}
	if probe.Version != CurrentVersion {
		return nil, &CorruptError{
			Path: Path,
			Err:  fmt.Errorf("%w: file has version %d, this build supports %d", ErrVersion, probe.Version, CurrentVersion),
		}
	}

	var led Ledger
	if err := toml.Unmarshal(data, &led); err != nil {
		return nil, &CorruptError{Path: Path, Err: err}
	}
	if err := led.Validate(); err != nil {
		return nil, &CorruptError{Path: Path, Err: err}
	}
	return &led, nil
}

// Save validates and atomically persists the ledger. An invalid ledger
// is never written; a failed write leaves the previous file intact.
func (s *Store) Save(led *Ledger, now time.Time) error {
	led.Version = CurrentVersion
	led.UpdatedAt = now.UTC()

	if err := led.Validate(); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}

	data, err := toml.Marshal(led)
	if err != nil {
		return fmt.Errorf("save ledger: marshal: %w", err)
	}
	if err := s.root.WriteAtomic(Path, data); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

// Exists reports whether a ledger file is present under the root.
func (s *Store) Exists() (bool, error) {
	return s.root.Exists(Path)
}
