package projection

import (
	"bytes"
	"fmt"

	"github.com/reposync/reposync/internal/canon"
	"github.com/reposync/reposync/internal/ledger"
)

// fileManagedBackend owns a file outright. Drift is byte-exact: any
// edit to the file, however cosmetic, is the human's word against ours
// and surfaces as a conflict on removal.
type fileManagedBackend struct{}

func (fileManagedBackend) Apply(f *File, proj *ledger.Projection, c Content) error {
	if !f.HasContent() || !bytes.Equal(f.data, c.Raw) {
		f.setData(c.Raw)
	}
	proj.Checksum = canon.Digest(canon.DomainFile, c.Raw)
	return nil
}

func (fileManagedBackend) Unroll(f *File, proj *ledger.Projection) error {
	if !f.HasContent() {
		return nil
	}
	live := canon.Digest(canon.DomainFile, f.data)
	if live != proj.Checksum {
		return &ConflictError{
			File:     f.Path,
			Location: "whole file",
			Stored:   proj.Checksum,
			Live:     live,
		}
	}
	f.markDeleted()
	return nil
}

func (fileManagedBackend) CheckDrift(f *File, proj *ledger.Projection) (Drift, error) {
	if !f.HasContent() {
		return Drift{State: MissingFile, Stored: proj.Checksum}, nil
	}
	if proj.Checksum == "" {
		return Drift{}, fmt.Errorf("file_managed projection for %s has no checksum", f.Path)
	}
	live := canon.Digest(canon.DomainFile, f.data)
	d := Drift{Stored: proj.Checksum, Live: live}
	if live == proj.Checksum {
		d.State = InSync
	} else {
		d.State = Drifted
	}
	return d, nil
}
