package cli

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/reposync/reposync/internal/canon"
	"github.com/reposync/reposync/internal/engine"
	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
	"github.com/reposync/reposync/internal/projection"
)

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show what sync would change",
		Long: `Render a unified-style diff between live managed content and the
content the declared rules would project. Read-only.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(rootOpts, cmd)
		},
	}
	return cmd
}

// diffEntry is one differing projection.
type diffEntry struct {
	Intent  string `json:"intent"`
	File    string `json:"file"`
	Pointer string `json:"pointer,omitempty"`
	Diff    string `json:"diff"`
}

func runDiff(opts *RootOptions, cmd *cobra.Command) error {
	rc, err := openRepoContext(opts)
	if err != nil {
		return err
	}
	led, err := ledger.NewStore(rc.root).Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "load ledger", err)
	}

	cache := map[fsx.NormalizedPath]*liveFile{}
	entries := []diffEntry{}

	desiredIDs := make(map[string]bool, len(rc.desired.Intents))
	for i := range rc.desired.Intents {
		in := &rc.desired.Intents[i]
		desiredIDs[in.ID] = true
		prior := led.Find(in.ID)
		for j := range in.Projections {
			des := &in.Projections[j]
			live, err := liveForDesired(rc.root, cache, des, prior)
			if err != nil {
				entries = append(entries, diffEntry{
					Intent: in.ID, File: des.File.String(), Pointer: des.Pointer,
					Diff: "! cannot read live content: " + err.Error() + "\n",
				})
				continue
			}
			want, err := desiredText(des)
			if err != nil {
				return WrapExitError(ExitCommandError, "render desired content", err)
			}
			if live == want {
				continue
			}
			entries = append(entries, diffEntry{
				Intent: in.ID, File: des.File.String(), Pointer: des.Pointer,
				Diff: renderDiff(live, want),
			})
		}
	}

	// Intents the rules no longer declare: everything live is a removal.
	for i := range led.Intents {
		in := &led.Intents[i]
		if desiredIDs[in.ID] {
			continue
		}
		for j := range in.Projections {
			proj := &in.Projections[j]
			live, err := liveForRecorded(rc.root, cache, proj)
			if err != nil {
				entries = append(entries, diffEntry{
					Intent: in.ID, File: proj.File.String(), Pointer: proj.Pointer,
					Diff: "! cannot read live content: " + err.Error() + "\n",
				})
				continue
			}
			if live == "" {
				continue
			}
			entries = append(entries, diffEntry{
				Intent: in.ID, File: proj.File.String(), Pointer: proj.Pointer,
				Diff: renderDiff(live, ""),
			})
		}
	}

	f := formatter(cmd, opts)
	if opts.Format == "json" {
		return f.Success(map[string]any{"entries": entries})
	}
	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(w, "✓ no differences")
		return nil
	}
	for _, e := range entries {
		header := "diff " + e.Intent + " " + e.File
		if e.Pointer != "" {
			header += " " + e.Pointer
		}
		fmt.Fprintln(w, header)
		fmt.Fprintln(w, "--- live")
		fmt.Fprintln(w, "+++ desired")
		fmt.Fprint(w, e.Diff)
	}
	return nil
}

// liveFile caches one on-disk file across projections during a diff.
type liveFile struct {
	data   []byte
	exists bool
	doc    *projection.File
}

func loadLive(root *fsx.Root, cache map[fsx.NormalizedPath]*liveFile, p fsx.NormalizedPath) (*liveFile, error) {
	if lf, ok := cache[p]; ok {
		return lf, nil
	}
	data, exists, err := root.ReadFile(p)
	if err != nil {
		return nil, err
	}
	lf := &liveFile{data: data, exists: exists, doc: projection.NewFile(p, data, exists)}
	cache[p] = lf
	return lf, nil
}

// liveForDesired reads the live content at a desired projection's
// location. A missing file, block, or key reads as empty, which the
// diff then shows as a pure addition.
func liveForDesired(root *fsx.Root, cache map[fsx.NormalizedPath]*liveFile, des *engine.DesiredProjection, prior *ledger.Intent) (string, error) {
	lf, err := loadLive(root, cache, des.File)
	if err != nil {
		return "", err
	}
	switch des.Kind {
	case ledger.KindTextBlock:
		marker := priorMarker(des, prior)
		if marker == "" || !lf.exists {
			return "", nil
		}
		body, ok := projection.ExtractBlock(lf.data, marker)
		if !ok {
			return "", nil
		}
		return body + "\n", nil
	case ledger.KindJSONKey:
		if !lf.exists {
			return "", nil
		}
		value, found, err := lf.doc.Lookup(des.Pointer)
		if err != nil || !found {
			return "", err
		}
		return canonicalText(value)
	default:
		if !lf.exists {
			return "", nil
		}
		return string(lf.data), nil
	}
}

// liveForRecorded reads the live content at a recorded projection's
// location, for intents the rules no longer declare.
func liveForRecorded(root *fsx.Root, cache map[fsx.NormalizedPath]*liveFile, proj *ledger.Projection) (string, error) {
	lf, err := loadLive(root, cache, proj.File)
	if err != nil {
		return "", err
	}
	if !lf.exists {
		return "", nil
	}
	switch proj.Kind {
	case ledger.KindTextBlock:
		body, ok := projection.ExtractBlock(lf.data, proj.Marker)
		if !ok {
			return "", nil
		}
		return body + "\n", nil
	case ledger.KindJSONKey:
		value, found, err := lf.doc.Lookup(proj.Pointer)
		if err != nil || !found {
			return "", err
		}
		return canonicalText(value)
	default:
		return string(lf.data), nil
	}
}

// priorMarker finds the recorded marker for a desired block, matching
// on (tool, file, kind, pointer). New blocks have no marker yet.
func priorMarker(des *engine.DesiredProjection, prior *ledger.Intent) string {
	if prior == nil {
		return ""
	}
	for i := range prior.Projections {
		p := &prior.Projections[i]
		if p.Tool == des.Tool && p.File == des.File && p.Kind == des.Kind && p.Pointer == des.Pointer {
			return p.Marker
		}
	}
	return ""
}

// desiredText renders a desired projection's content for diffing.
func desiredText(des *engine.DesiredProjection) (string, error) {
	switch des.Kind {
	case ledger.KindTextBlock:
		return des.Content.Text + "\n", nil
	case ledger.KindJSONKey:
		return canonicalText(des.Content.Value)
	default:
		return string(des.Content.Raw), nil
	}
}

func canonicalText(value any) (string, error) {
	b, err := canon.MarshalCanonical(value)
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

// renderDiff produces a line-oriented diff with -/+ prefixes.
func renderDiff(live, want string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(live, want)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
