package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
	"github.com/reposync/reposync/internal/manifest"
)

func sampleRule() *manifest.Rule {
	return &manifest.Rule{
		ID:       "no-unwrap",
		Priority: 10,
		Content:  "Never call unwrap in production code.",
		Source:   fsx.Normalize("rules/no-unwrap.md"),
	}
}

func TestRegistry(t *testing.T) {
	reg := Builtin()

	assert.Equal(t, []string{"claude", "copilot", "cursor", "vscode"}, reg.Names())

	tool, ok := reg.Lookup("cursor")
	require.True(t, ok)
	assert.Equal(t, "cursor", tool.Name())

	_, ok = reg.Lookup("emacs")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	assert.Panics(t, func() { NewRegistry(Cursor{}, Cursor{}) })
}

func TestCursorRender(t *testing.T) {
	projs := Cursor{}.Render(sampleRule())
	require.Len(t, projs, 1)

	assert.Equal(t, fsx.Normalize(".cursorrules"), projs[0].File)
	assert.Equal(t, ledger.KindTextBlock, projs[0].Kind)
	assert.Equal(t, "Never call unwrap in production code.", projs[0].Content.Text)
	assert.Empty(t, projs[0].Pointer)
}

func TestClaudeRender(t *testing.T) {
	projs := Claude{}.Render(sampleRule())
	require.Len(t, projs, 1)

	assert.Equal(t, fsx.Normalize("CLAUDE.md"), projs[0].File)
	assert.Equal(t, ledger.KindTextBlock, projs[0].Kind)
	assert.Equal(t, "## no-unwrap\n\nNever call unwrap in production code.", projs[0].Content.Text)
}

func TestVSCodeRender(t *testing.T) {
	projs := VSCode{}.Render(sampleRule())
	require.Len(t, projs, 1)

	assert.Equal(t, fsx.Normalize(".vscode/settings.json"), projs[0].File)
	assert.Equal(t, ledger.KindJSONKey, projs[0].Kind)
	assert.Equal(t, "/reposync.rules/no-unwrap", projs[0].Pointer)

	value, ok := projs[0].Content.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 10, value["priority"])
	digest, _ := value["digest"].(string)
	assert.True(t, strings.HasPrefix(digest, "sha256:"), "digest %q should be a sha256 digest", digest)
}

func TestVSCodeDigestTracksContent(t *testing.T) {
	a := VSCode{}.Render(sampleRule())
	changed := sampleRule()
	changed.Content = "Something else."
	b := VSCode{}.Render(changed)

	digestA := a[0].Content.Value.(map[string]any)["digest"]
	digestB := b[0].Content.Value.(map[string]any)["digest"]
	assert.NotEqual(t, digestA, digestB)
}

func TestCopilotRender(t *testing.T) {
	projs := Copilot{}.Render(sampleRule())
	require.Len(t, projs, 1)

	assert.Equal(t, fsx.Normalize(".github/instructions/no-unwrap.instructions.md"), projs[0].File)
	assert.Equal(t, ledger.KindFileManaged, projs[0].Kind)
	assert.Equal(t, "---\napplyTo: \"**\"\n---\nNever call unwrap in production code.\n", string(projs[0].Content.Raw))
}

func TestIntentID(t *testing.T) {
	assert.Equal(t, "rule:no-unwrap/tool:cursor", IntentID("no-unwrap", "cursor"))
}

func TestBuildDesired(t *testing.T) {
	m := &manifest.Manifest{Version: 1, Tools: []string{"cursor", "claude"}}
	rules := []manifest.Rule{
		{ID: "first", Priority: 1, Content: "One."},
		{ID: "second", Priority: 2, Content: "Two.", Tools: []string{"cursor"}},
	}

	state, err := BuildDesired(Builtin(), m, rules)
	require.NoError(t, err)
	require.Len(t, state.Intents, 3, "second rule is restricted to cursor")

	var ids []string
	for _, in := range state.Intents {
		ids = append(ids, in.ID)
	}
	assert.Equal(t, []string{
		"rule:first/tool:cursor",
		"rule:first/tool:claude",
		"rule:second/tool:cursor",
	}, ids, "intents keep rule order, then manifest tool order")

	first := state.Intents[0]
	assert.Equal(t, "first", first.Args["rule"])
	assert.Equal(t, 1, first.Args["priority"])
	assert.Equal(t, "One.", first.Args["content"])
	assert.Equal(t, "cursor", first.Args["tool"])
	require.Len(t, first.Projections, 1)
	assert.Equal(t, "cursor", first.Projections[0].Tool, "caller fills the Tool field")
}

func TestBuildDesiredUnknownTool(t *testing.T) {
	m := &manifest.Manifest{Version: 1, Tools: []string{"cursor", "emacs"}}

	_, err := BuildDesired(Builtin(), m, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown tool "emacs"`)
}

func TestBuildDesiredPassesEngineValidation(t *testing.T) {
	m := &manifest.Manifest{Version: 1, Tools: []string{"cursor", "claude", "vscode", "copilot"}}
	rules := []manifest.Rule{
		{ID: "style", Priority: 1, Content: "Use tabs."},
		{ID: "errors", Priority: 2, Content: "Wrap errors."},
	}

	state, err := BuildDesired(Builtin(), m, rules)
	require.NoError(t, err)
	require.Len(t, state.Intents, 8)
	require.NoError(t, state.Validate(), "built state must satisfy engine ownership rules")
}

func TestBuildDesiredEmptyRules(t *testing.T) {
	m := &manifest.Manifest{Version: 1, Tools: []string{"cursor"}}

	state, err := BuildDesired(Builtin(), m, nil)
	require.NoError(t, err)
	assert.Empty(t, state.Intents)
}
