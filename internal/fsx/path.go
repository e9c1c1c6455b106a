// Package fsx is the path-safety and atomic I/O substrate.
//
// Every file the engine reads or writes is addressed by a NormalizedPath
// and resolved through a Root, which refuses any path that would land
// outside the configured root directory (including escapes through
// symlinked parent components). Mutations go through WriteAtomic so a
// reader never observes a partially written file.
package fsx

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// NormalizedPath is a cleaned, forward-slash, root-relative path.
//
// Normalization resolves "." and ".." segments lexically, drops leading
// ".." segments instead of letting them escape, and strips any leading
// separator or drive prefix. Two references to the same file always
// normalize to the same value regardless of platform separators, which
// makes NormalizedPath the identity key for files in the ledger.
type NormalizedPath string

// Normalize converts an arbitrary path string to its NormalizedPath form.
func Normalize(p string) NormalizedPath {
	s := strings.ReplaceAll(p, `\`, "/")

	// Strip Windows drive or volume prefixes so the result is relative.
	if v := volumeLen(s); v > 0 {
		s = s[v:]
	}
	s = strings.TrimPrefix(s, "/")

	s = path.Clean(s)

	// Clean preserves leading ".." on relative paths; drop those segments
	// rather than allowing an escape above the root.
	for s == ".." || strings.HasPrefix(s, "../") {
		s = strings.TrimPrefix(strings.TrimPrefix(s, ".."), "/")
		if s == "" {
			s = "."
		}
		s = path.Clean(s)
	}
	if s == "" {
		s = "."
	}
	return NormalizedPath(s)
}

// volumeLen returns the length of a leading drive specifier ("C:"), if any.
func volumeLen(s string) int {
	if len(s) >= 2 && s[1] == ':' &&
		(('a' <= s[0] && s[0] <= 'z') || ('A' <= s[0] && s[0] <= 'Z')) {
		return 2
	}
	return 0
}

func (p NormalizedPath) String() string { return string(p) }

// IsRoot reports whether p refers to the root directory itself.
func (p NormalizedPath) IsRoot() bool { return p == "." || p == "" }

// Dir returns the normalized parent of p ("." for top-level entries).
func (p NormalizedPath) Dir() NormalizedPath {
	return NormalizedPath(path.Dir(string(p)))
}

// Base returns the final element of p.
func (p NormalizedPath) Base() string { return path.Base(string(p)) }

// Join appends further elements to p and re-normalizes.
func (p NormalizedPath) Join(elem ...string) NormalizedPath {
	parts := append([]string{string(p)}, elem...)
	return Normalize(path.Join(parts...))
}

// PathEscapeError reports a path that would resolve outside the root.
// Such paths are never written, created, or locked.
type PathEscapeError struct {
	Path     NormalizedPath // the requested root-relative path
	Resolved string         // where it actually leads
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("path %q resolves outside root: %s", e.Path, e.Resolved)
}

// Root anchors all engine I/O to one absolute, symlink-resolved directory.
//
// Resolve is the only way to turn a NormalizedPath into an absolute path,
// and it re-validates containment on every call: the deepest existing
// ancestor of the target is resolved through any symlinks and the result
// must still lie under the root.
type Root struct {
	dir string
}

// NewRoot binds a root directory. The directory must exist; its absolute,
// symlink-resolved form becomes the containment boundary.
func NewRoot(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("resolve root: %s is not a directory", dir)
	}
	return &Root{dir: real}, nil
}

// Dir returns the absolute root directory.
func (r *Root) Dir() string { return r.dir }

// Resolve maps a normalized path to its absolute location under the root.
// It returns a *PathEscapeError if any existing component is a symlink
// that leads outside the root boundary.
func (r *Root) Resolve(p NormalizedPath) (string, error) {
	abs := filepath.Join(r.dir, filepath.FromSlash(string(p)))

	real, err := resolveExisting(abs)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	if !within(r.dir, real) {
		return "", &PathEscapeError{Path: p, Resolved: real}
	}
	return abs, nil
}

// resolveExisting resolves symlinks on the deepest existing ancestor of
// abs and rejoins the not-yet-existing remainder, so containment can be
// checked before any component is created.
func resolveExisting(abs string) (string, error) {
	var tail []string
	cur := abs
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				real = filepath.Join(real, tail[i])
			}
			return real, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			// Walked to the filesystem root without finding anything.
			return abs, nil
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}

// within reports whether p equals root or lies beneath it.
func within(root, p string) bool {
	if p == root {
		return true
	}
	return strings.HasPrefix(p, root+string(filepath.Separator))
}
