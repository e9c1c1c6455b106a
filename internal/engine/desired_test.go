package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
	"github.com/reposync/reposync/internal/projection"
)

func TestDesiredStateValidateAccepts(t *testing.T) {
	state := desired(
		blockIntent("rule:a/tool:cursor", ".cursorrules", "a"),
		blockIntent("rule:b/tool:cursor", ".cursorrules", "b"), // distinct intents share a file
		keyIntent("rule:c/tool:vscode", ".vscode/settings.json", "/reposync.rules/c", 1),
		keyIntent("rule:d/tool:vscode", ".vscode/settings.json", "/reposync.rules/d", 2),
		fileIntent("rule:e/tool:copilot", ".github/instructions/e.instructions.md", "e"),
	)

	require.NoError(t, state.Validate())
}

func TestDesiredStateValidateRejects(t *testing.T) {
	cases := []struct {
		name  string
		state *DesiredState
		want  string
	}{
		{
			name:  "duplicate intent id",
			state: desired(blockIntent("rule:a/tool:c", "x.md", "1"), blockIntent("rule:a/tool:c", "y.md", "2")),
			want:  "duplicate intent id",
		},
		{
			name: "empty id",
			state: &DesiredState{Intents: []DesiredIntent{{
				Projections: []DesiredProjection{{Tool: "t", File: "x.md", Kind: ledger.KindTextBlock}},
			}}},
			want: "empty id",
		},
		{
			name:  "no projections",
			state: &DesiredState{Intents: []DesiredIntent{{ID: "rule:a/tool:c"}}},
			want:  "no projections",
		},
		{
			name: "pointer on text_block",
			state: &DesiredState{Intents: []DesiredIntent{{
				ID: "rule:a/tool:c",
				Projections: []DesiredProjection{{
					Tool: "t", File: "x.md", Kind: ledger.KindTextBlock, Pointer: "/k",
				}},
			}}},
			want: "carries a pointer",
		},
		{
			name:  "malformed pointer",
			state: desired(keyIntent("rule:a/tool:v", "s.json", "no-slash", 1)),
			want:  "must start with /",
		},
		{
			name: "two blocks from one intent on one file",
			state: &DesiredState{Intents: []DesiredIntent{{
				ID: "rule:a/tool:c",
				Projections: []DesiredProjection{
					{Tool: "t", File: "x.md", Kind: ledger.KindTextBlock},
					{Tool: "u", File: "x.md", Kind: ledger.KindTextBlock},
				},
			}}},
			want: "two text_block projections",
		},
		{
			name: "state directory target",
			state: desired(blockIntent("rule:a/tool:c", ledger.StateDir+"/notes.md", "x")),
			want:  "state directory",
		},
		{
			name: "unnormalized path",
			state: &DesiredState{Intents: []DesiredIntent{{
				ID: "rule:a/tool:c",
				Projections: []DesiredProjection{{
					Tool: "t", File: fsx.NormalizedPath("../escape.md"), Kind: ledger.KindTextBlock,
				}},
			}}},
			want: "normalized",
		},
		{
			name: "unknown kind",
			state: &DesiredState{Intents: []DesiredIntent{{
				ID:          "rule:a/tool:c",
				Projections: []DesiredProjection{{Tool: "t", File: "x.md", Kind: "symlink"}},
			}}},
			want: "unknown projection kind",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.state.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDesiredStateValidateOwnershipExclusivity(t *testing.T) {
	t.Run("exact pointer collision", func(t *testing.T) {
		err := desired(
			keyIntent("rule:a/tool:v", "s.json", "/k", 1),
			keyIntent("rule:b/tool:v", "s.json", "/k", 2),
		).Validate()
		var ownership *ledger.OwnershipError
		require.ErrorAs(t, err, &ownership)
	})

	t.Run("nested pointer overlap", func(t *testing.T) {
		err := desired(
			keyIntent("rule:a/tool:v", "s.json", "/a", 1),
			keyIntent("rule:b/tool:v", "s.json", "/a/b", 2),
		).Validate()
		var ownership *ledger.OwnershipError
		require.ErrorAs(t, err, &ownership)
	})

	t.Run("sibling prefix is not overlap", func(t *testing.T) {
		err := desired(
			keyIntent("rule:a/tool:v", "s.json", "/a", 1),
			keyIntent("rule:b/tool:v", "s.json", "/ab", 2),
		).Validate()
		require.NoError(t, err)
	})

	t.Run("file_managed excludes every other claim", func(t *testing.T) {
		err := desired(
			fileIntent("rule:a/tool:c", "doc.md", "a"),
			blockIntent("rule:b/tool:c", "doc.md", "b"),
		).Validate()
		var ownership *ledger.OwnershipError
		require.ErrorAs(t, err, &ownership)
		assert.Equal(t, "whole file", ownership.Location)
	})

	t.Run("two file_managed claims", func(t *testing.T) {
		err := desired(
			fileIntent("rule:a/tool:c", "doc.md", "a"),
			fileIntent("rule:b/tool:c", "doc.md", "b"),
		).Validate()
		var ownership *ledger.OwnershipError
		require.ErrorAs(t, err, &ownership)
	})
}

func TestPointersOverlap(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"/a", "/a", true},
		{"/a", "/a/b", true},
		{"/a/b", "/a", true},
		{"/a", "/ab", false},
		{"/a/b", "/a/c", false},
		{"/", "/a", false}, // "/" owns the empty-string key, not the root
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, pointersOverlap(tc.a, tc.b), "%q vs %q", tc.a, tc.b)
	}
}

func TestDesiredProjectionContentRoundTrip(t *testing.T) {
	// Content union: exactly the field for the kind is honored.
	in := keyIntent("rule:a/tool:v", "s.json", "/k", map[string]any{"x": 1})
	require.Len(t, in.Projections, 1)
	assert.Equal(t, map[string]any{"x": 1}, in.Projections[0].Content.Value)
	assert.Empty(t, in.Projections[0].Content.Text)

	p := projection.Content{Text: "body"}
	assert.Nil(t, p.Raw)
}
