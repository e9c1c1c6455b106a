// Package projection implements the three strategies for owning a unit
// of generated content inside a target file: marker-delimited text
// blocks, key ownership in structured files, and whole-file management.
//
// Backends operate on an in-memory *File, never on disk: the engine
// reads a target once, applies every transform that touches it, and
// replaces it with one atomic write. That keeps "a file is opened and
// atomically replaced at most once per run" true no matter how many
// intents share the file.
package projection

import (
	"fmt"
	"path"

	"github.com/reposync/reposync/internal/fsx"
)

// File is the in-memory working copy of one target file.
type File struct {
	Path fsx.NormalizedPath

	data    []byte
	has     bool // content available: on disk when read, or written this run
	dirty   bool
	deleted bool

	doc *document // lazy-parsed structured form, json_key only
}

// NewFile wraps the bytes read from disk. exists=false means the target
// is absent; backends treat that as empty content.
func NewFile(p fsx.NormalizedPath, data []byte, exists bool) *File {
	return &File{Path: p, data: data, has: exists}
}

// Bytes returns the current serialized content. If a structured document
// was edited, it is re-encoded here.
func (f *File) Bytes() ([]byte, error) {
	if f.doc != nil && f.doc.dirty {
		data, err := f.doc.encode()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		f.data = data
		f.has = true
		f.dirty = true
		f.doc.dirty = false
	}
	return f.data, nil
}

// HasContent reports whether there is content for backends to read: the
// file was on disk, or an earlier transform in this run wrote to it.
// Backends sharing a file must see each other's writes, so they consult
// this rather than the on-disk state.
func (f *File) HasContent() bool { return f.has && !f.deleted }

// Dirty reports whether the file needs to be written back.
func (f *File) Dirty() bool { return f.dirty || (f.doc != nil && f.doc.dirty) }

// Deleted reports whether the file should be removed instead of written.
func (f *File) Deleted() bool { return f.deleted }

// Lookup returns the live value at a JSON Pointer. The file is parsed
// on demand but never marked dirty.
func (f *File) Lookup(pointer string) (any, bool, error) {
	tokens, err := ParsePointer(pointer)
	if err != nil {
		return nil, false, err
	}
	doc, err := f.structured()
	if err != nil {
		return nil, false, err
	}
	return doc.get(tokens)
}

// setData replaces the raw content.
func (f *File) setData(data []byte) {
	f.data = data
	f.has = true
	f.dirty = true
	f.deleted = false
	f.doc = nil
}

// markDeleted schedules the file for removal.
func (f *File) markDeleted() {
	f.deleted = true
	f.dirty = true
}

// structured returns the parsed document form, parsing on first use.
// The format follows the file extension: .json, or .yaml/.yml.
func (f *File) structured() (*document, error) {
	if f.doc != nil {
		return f.doc, nil
	}
	format, err := formatFor(f.Path)
	if err != nil {
		return nil, err
	}
	var raw []byte
	if f.has {
		raw = f.data
	}
	doc, err := parseDocument(format, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	f.doc = doc
	return doc, nil
}

// docFormat selects the structured-file codec.
type docFormat int

const (
	formatJSON docFormat = iota
	formatYAML
)

func formatFor(p fsx.NormalizedPath) (docFormat, error) {
	switch path.Ext(string(p)) {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	default:
		return 0, fmt.Errorf("%s: no structured codec for extension %q", p, path.Ext(string(p)))
	}
}
