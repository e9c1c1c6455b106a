package fsx

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const defaultFileMode fs.FileMode = 0o644

// ReadFile reads the file at p. A missing file is not an error: it
// returns (nil, false, nil) so callers can treat absent targets as empty
// content.
func (r *Root) ReadFile(p NormalizedPath) (data []byte, exists bool, err error) {
	abs, err := r.Resolve(p)
	if err != nil {
		return nil, false, err
	}
	data, err = os.ReadFile(abs)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", p, err)
	}
	return data, true, nil
}

// WriteAtomic replaces the file at p with data in one atomic step: the
// bytes are written to a sibling temporary file, synced to disk, and then
// renamed over the destination. A crash at any point leaves the
// destination either untouched or fully updated, never partial; at worst
// an orphaned temporary file remains in the directory.
//
// Missing parent directories are created idempotently. An existing
// destination keeps its file mode; new files are created 0644.
func (r *Root) WriteAtomic(p NormalizedPath, data []byte) error {
	abs, err := r.Resolve(p)
	if err != nil {
		return err
	}

	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write %s: create parent: %w", p, err)
	}

	mode := defaultFileMode
	if info, err := os.Stat(abs); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, ".reposync-*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: create temp: %w", p, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: sync: %w", p, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: chmod: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: close temp: %w", p, err)
	}

	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("write %s: rename: %w", p, err)
	}

	syncDir(dir)
	return nil
}

// syncDir flushes directory metadata after a rename so the new directory
// entry survives a crash. Best-effort: not every platform supports
// fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Remove deletes the file at p. Removing an already-absent file is not
// an error.
func (r *Root) Remove(p NormalizedPath) error {
	abs, err := r.Resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}

// Exists reports whether a regular file exists at p.
func (r *Root) Exists(p NormalizedPath) (bool, error) {
	abs, err := r.Resolve(p)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", p, err)
	}
	return info.Mode().IsRegular(), nil
}

// MkdirAll creates the directory at p (and parents) inside the root.
func (r *Root) MkdirAll(p NormalizedPath) error {
	abs, err := r.Resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", p, err)
	}
	return nil
}
