package projection

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reposync/reposync/internal/canon"
	"github.com/reposync/reposync/internal/ledger"
)

func blockProj(instanceID string) *ledger.Projection {
	return &ledger.Projection{
		Tool:   "cursor",
		File:   ".cursorrules",
		Kind:   ledger.KindTextBlock,
		Marker: instanceID,
	}
}

func applyBlock(t *testing.T, f *File, proj *ledger.Projection, body string) string {
	t.Helper()
	require.NoError(t, textBlockBackend{}.Apply(f, proj, Content{Text: body}))
	data, err := f.Bytes()
	require.NoError(t, err)
	return string(data)
}

func TestTextBlockApplyCreatesFile(t *testing.T) {
	f := NewFile(".cursorrules", nil, false)
	proj := blockProj("inst-1")

	out := applyBlock(t, f, proj, "Always use tabs.\nNever use spaces.")

	want := "<!-- repo:block:inst-1 -->\n" +
		"Always use tabs.\nNever use spaces.\n" +
		"<!-- /repo:block:inst-1 -->\n"
	assert.Equal(t, want, out)
	assert.True(t, f.Dirty(), "new block must mark the file for writing")
	assert.Equal(t, canon.Digest(canon.DomainBlock, []byte("Always use tabs.\nNever use spaces.")), proj.Checksum)
}

func TestTextBlockAppendSeparatesFromHumanContent(t *testing.T) {
	human := "# My rules\n\nHand-written prose.\n"
	f := NewFile(".cursorrules", []byte(human), true)

	out := applyBlock(t, f, blockProj("inst-1"), "generated")

	assert.True(t, strings.HasPrefix(out, human), "human content must survive byte for byte")
	assert.Equal(t, human+"\n<!-- repo:block:inst-1 -->\ngenerated\n<!-- /repo:block:inst-1 -->\n", out)
}

func TestTextBlockAppendWithoutTrailingNewline(t *testing.T) {
	f := NewFile(".cursorrules", []byte("no newline at end"), true)

	out := applyBlock(t, f, blockProj("inst-1"), "x")

	assert.Equal(t, "no newline at end\n<!-- repo:block:inst-1 -->\nx\n<!-- /repo:block:inst-1 -->\n", out)
}

func TestTextBlockApplyUnrollRestoresOriginalBytes(t *testing.T) {
	// Whatever tail the human left, apply followed by unroll must give
	// the file back exactly.
	originals := map[string]string{
		"no trailing newline": "human text",
		"single newline":      "# Title\n",
		"blank tail":          "# Title\n\n",
		"whitespace only":     "  \n",
	}
	for name, original := range originals {
		t.Run(name, func(t *testing.T) {
			f := NewFile(".cursorrules", []byte(original), true)
			proj := blockProj("inst-1")

			applyBlock(t, f, proj, "generated")
			require.NoError(t, textBlockBackend{}.Unroll(f, proj))

			data, err := f.Bytes()
			require.NoError(t, err)
			assert.Equal(t, original, string(data))
		})
	}
}

func TestTextBlockReapplySameContentIsClean(t *testing.T) {
	f := NewFile(".cursorrules", nil, false)
	proj := blockProj("inst-1")
	out := applyBlock(t, f, proj, "stable")

	f2 := NewFile(".cursorrules", []byte(out), true)
	out2 := applyBlock(t, f2, proj, "stable")

	assert.Equal(t, out, out2)
	assert.False(t, f2.Dirty(), "identical re-apply must not dirty the file")
}

func TestTextBlockReplaceTouchesOnlyEnclosedRegion(t *testing.T) {
	raw := "above\n\n<!-- repo:block:inst-1 -->\nold body\n<!-- /repo:block:inst-1 -->\n\nbelow\n"
	f := NewFile(".cursorrules", []byte(raw), true)
	proj := blockProj("inst-1")

	out := applyBlock(t, f, proj, "new body\nsecond line")

	assert.Equal(t, "above\n\n<!-- repo:block:inst-1 -->\nnew body\nsecond line\n<!-- /repo:block:inst-1 -->\n\nbelow\n", out)
	assert.Equal(t, canon.Digest(canon.DomainBlock, []byte("new body\nsecond line")), proj.Checksum)
}

func TestTextBlockEmptyBodyCollapsesDelimiters(t *testing.T) {
	f := NewFile(".cursorrules", nil, false)

	out := applyBlock(t, f, blockProj("inst-1"), "")

	assert.Equal(t, "<!-- repo:block:inst-1 -->\n<!-- /repo:block:inst-1 -->\n", out)
}

func TestTextBlockApplySweepsDanglingDelimiter(t *testing.T) {
	// End delimiter lost to a careless edit: the dangling start is ours,
	// so it goes, and a fresh block is appended.
	raw := "keep me\n<!-- repo:block:inst-1 -->\n"
	f := NewFile(".cursorrules", []byte(raw), true)

	out := applyBlock(t, f, blockProj("inst-1"), "restored")

	assert.Equal(t, 1, strings.Count(out, "<!-- repo:block:inst-1 -->"), "exactly one start delimiter")
	assert.Equal(t, 1, strings.Count(out, "<!-- /repo:block:inst-1 -->"), "exactly one end delimiter")
	assert.Contains(t, out, "keep me\n")
	assert.Contains(t, out, "restored")
}

func TestTextBlockUnrollRemovesBlockAndSeparator(t *testing.T) {
	raw := "# Title\n\n<!-- repo:block:inst-1 -->\nbody\n<!-- /repo:block:inst-1 -->\n"
	f := NewFile(".cursorrules", []byte(raw), true)

	require.NoError(t, textBlockBackend{}.Unroll(f, blockProj("inst-1")))

	data, err := f.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "# Title\n", string(data))
	assert.False(t, f.Deleted())
}

func TestTextBlockUnrollLeavesEmptyFileNotDeletion(t *testing.T) {
	raw := "<!-- repo:block:inst-1 -->\nonly content\n<!-- /repo:block:inst-1 -->\n"
	f := NewFile(".cursorrules", []byte(raw), true)

	require.NoError(t, textBlockBackend{}.Unroll(f, blockProj("inst-1")))

	data, err := f.Bytes()
	require.NoError(t, err)
	assert.Empty(t, string(data))
	assert.False(t, f.Deleted(), "shared files are emptied, never deleted")
	assert.True(t, f.Dirty())
}

func TestTextBlockUnrollMissingMarkersIsNoop(t *testing.T) {
	f := NewFile(".cursorrules", []byte("human only\n"), true)

	require.NoError(t, textBlockBackend{}.Unroll(f, blockProj("inst-1")))

	assert.False(t, f.Dirty())
}

func TestTextBlockUnrollMissingFileIsNoop(t *testing.T) {
	f := NewFile(".cursorrules", nil, false)

	require.NoError(t, textBlockBackend{}.Unroll(f, blockProj("inst-1")))

	assert.False(t, f.Dirty())
}

func TestTextBlockDriftStates(t *testing.T) {
	proj := blockProj("inst-1")
	f := NewFile(".cursorrules", nil, false)
	out := applyBlock(t, f, proj, "tracked body")

	t.Run("in sync", func(t *testing.T) {
		live := NewFile(".cursorrules", []byte(out), true)
		d, err := textBlockBackend{}.CheckDrift(live, proj)
		require.NoError(t, err)
		assert.Equal(t, InSync, d.State)
		assert.Equal(t, proj.Checksum, d.Live)
	})

	t.Run("drifted", func(t *testing.T) {
		tampered := strings.Replace(out, "tracked body", "edited by hand", 1)
		live := NewFile(".cursorrules", []byte(tampered), true)
		d, err := textBlockBackend{}.CheckDrift(live, proj)
		require.NoError(t, err)
		assert.Equal(t, Drifted, d.State)
		assert.Equal(t, proj.Checksum, d.Stored)
		assert.NotEqual(t, d.Stored, d.Live)
	})

	t.Run("broken link", func(t *testing.T) {
		live := NewFile(".cursorrules", []byte("markers gone\n"), true)
		d, err := textBlockBackend{}.CheckDrift(live, proj)
		require.NoError(t, err)
		assert.Equal(t, BrokenLink, d.State)
	})

	t.Run("dangling start is broken too", func(t *testing.T) {
		live := NewFile(".cursorrules", []byte("<!-- repo:block:inst-1 -->\nbody\n"), true)
		d, err := textBlockBackend{}.CheckDrift(live, proj)
		require.NoError(t, err)
		assert.Equal(t, BrokenLink, d.State)
	})

	t.Run("missing file", func(t *testing.T) {
		live := NewFile(".cursorrules", nil, false)
		d, err := textBlockBackend{}.CheckDrift(live, proj)
		require.NoError(t, err)
		assert.Equal(t, MissingFile, d.State)
	})
}

func TestTextBlockTwoBlocksShareOneFile(t *testing.T) {
	f := NewFile(".cursorrules", nil, false)
	projA := blockProj("inst-a")
	projB := blockProj("inst-b")

	applyBlock(t, f, projA, "from rule a")
	out := applyBlock(t, f, projB, "from rule b")

	assert.Contains(t, out, "repo:block:inst-a")
	assert.Contains(t, out, "repo:block:inst-b")

	// Unrolling one leaves the other intact.
	require.NoError(t, textBlockBackend{}.Unroll(f, projA))
	data, err := f.Bytes()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "inst-a")
	assert.Contains(t, string(data), "from rule b")

	d, err := textBlockBackend{}.CheckDrift(f, projB)
	require.NoError(t, err)
	assert.Equal(t, InSync, d.State, "sibling block must survive unharmed")
}
