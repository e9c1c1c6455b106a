package projection

import (
	"fmt"
	"strings"

	"github.com/reposync/reposync/internal/canon"
	"github.com/reposync/reposync/internal/ledger"
)

// textBlockBackend owns a marker-delimited region inside a shared file.
// The delimiters embed the intent's instance id:
//
//	<!-- repo:block:{instance_id} -->
//	...owned content...
//	<!-- /repo:block:{instance_id} -->
//
// Everything outside the delimiters belongs to humans and is never
// touched, with one exception: a dangling delimiter carrying our own
// instance id is engine debris and is cleaned up on the next apply.
type textBlockBackend struct{}

func markerStart(id string) string { return "<!-- repo:block:" + id + " -->" }
func markerEnd(id string) string   { return "<!-- /repo:block:" + id + " -->" }

func (textBlockBackend) Apply(f *File, proj *ledger.Projection, c Content) error {
	if proj.Marker == "" {
		return fmt.Errorf("text_block projection for %s has no marker", f.Path)
	}
	var raw string
	if f.HasContent() {
		raw = string(f.data)
	}
	lines := strings.Split(raw, "\n")

	var out string
	if br, ok := findBlock(lines, proj.Marker); ok {
		out = strings.Join(replaceEnclosed(lines, br, c.Text), "\n")
	} else {
		cleaned, _ := dropMarkerLines(lines, proj.Marker)
		out = appendBlock(strings.Join(cleaned, "\n"), renderBlock(proj.Marker, c.Text))
	}

	if out != raw || !f.HasContent() {
		f.setData([]byte(out))
	}
	proj.Checksum = canon.Digest(canon.DomainBlock, []byte(c.Text))
	return nil
}

func (textBlockBackend) Unroll(f *File, proj *ledger.Projection) error {
	if !f.HasContent() {
		return nil
	}
	raw := string(f.data)
	lines := strings.Split(raw, "\n")
	br, ok := findBlock(lines, proj.Marker)
	if !ok {
		// Region already gone; sweep any dangling delimiter of ours.
		if cleaned, changed := dropMarkerLines(lines, proj.Marker); changed {
			f.setData([]byte(strings.Join(cleaned, "\n")))
		}
		return nil
	}

	// Invert appendBlock exactly where the layout still matches it, so
	// the surrounding human bytes come back untouched.
	blockText := strings.Join(lines[br.startLine:br.endLine+1], "\n")
	switch {
	case raw == blockText+"\n" || raw == blockText:
		f.setData(nil)
		return nil
	case strings.HasSuffix(raw, "\n"+blockText+"\n"):
		f.setData([]byte(strings.TrimSuffix(raw, "\n"+blockText+"\n")))
		return nil
	case strings.HasPrefix(raw, blockText+"\n\n"):
		f.setData([]byte(raw[len(blockText)+2:]))
		return nil
	}

	// Humans moved the block or wrote right up against it; drop just
	// its lines and leave their spacing alone.
	rest := append(append([]string{}, lines[:br.startLine]...), lines[br.endLine+1:]...)
	out := strings.Join(rest, "\n")
	if strings.TrimSpace(out) == "" {
		out = ""
	}
	f.setData([]byte(out))
	return nil
}

func (textBlockBackend) CheckDrift(f *File, proj *ledger.Projection) (Drift, error) {
	if !f.HasContent() {
		return Drift{State: MissingFile, Stored: proj.Checksum}, nil
	}
	lines := strings.Split(string(f.data), "\n")
	br, ok := findBlock(lines, proj.Marker)
	if !ok {
		return Drift{State: BrokenLink, Stored: proj.Checksum}, nil
	}
	body := strings.Join(lines[br.startLine+1:br.endLine], "\n")
	live := canon.Digest(canon.DomainBlock, []byte(body))
	if live == proj.Checksum {
		return Drift{State: InSync, Stored: proj.Checksum, Live: live}, nil
	}
	return Drift{State: Drifted, Stored: proj.Checksum, Live: live}, nil
}

type blockRange struct {
	startLine int
	endLine   int
}

// findBlock locates a well-formed delimiter pair. A start without a
// matching end (or in the wrong order) reports not-found; callers treat
// that the same as absent markers.
// ExtractBlock returns the body of the marker-fenced block for the
// given instance id. Read-only consumers use it to see live block
// content without going through a backend.
func ExtractBlock(data []byte, instanceID string) (string, bool) {
	lines := strings.Split(string(data), "\n")
	br, ok := findBlock(lines, instanceID)
	if !ok {
		return "", false
	}
	return strings.Join(lines[br.startLine+1:br.endLine], "\n"), true
}

func findBlock(lines []string, id string) (blockRange, bool) {
	start := -1
	for i, ln := range lines {
		if strings.TrimSpace(ln) == markerStart(id) {
			start = i
			break
		}
	}
	if start < 0 {
		return blockRange{}, false
	}
	for j := start + 1; j < len(lines); j++ {
		if strings.TrimSpace(lines[j]) == markerEnd(id) {
			return blockRange{startLine: start, endLine: j}, true
		}
	}
	return blockRange{}, false
}

// replaceEnclosed swaps the lines between the delimiters for the new
// body. The delimiters and everything outside them stay byte-identical.
func replaceEnclosed(lines []string, br blockRange, body string) []string {
	out := append([]string{}, lines[:br.startLine+1]...)
	if body != "" {
		out = append(out, strings.Split(body, "\n")...)
	}
	return append(out, lines[br.endLine:]...)
}

// renderBlock lays out a full delimited block. Empty bodies collapse to
// the two delimiter lines with nothing between.
func renderBlock(id, body string) string {
	if body == "" {
		return markerStart(id) + "\n" + markerEnd(id)
	}
	return markerStart(id) + "\n" + body + "\n" + markerEnd(id)
}

// appendBlock attaches a block after the existing content. The existing
// bytes are kept untouched and the inserted tail is always exactly
// "\n" + block + "\n", so Unroll can strip it and restore the original
// file byte for byte.
func appendBlock(raw, block string) string {
	if raw == "" {
		return block + "\n"
	}
	return raw + "\n" + block + "\n"
}

// dropMarkerLines removes lines that are exactly one of our delimiters.
func dropMarkerLines(lines []string, id string) ([]string, bool) {
	out := lines[:0:0]
	changed := false
	for _, ln := range lines {
		t := strings.TrimSpace(ln)
		if t == markerStart(id) || t == markerEnd(id) {
			changed = true
			continue
		}
		out = append(out, ln)
	}
	return out, changed
}
