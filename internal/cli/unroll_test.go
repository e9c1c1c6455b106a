package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reposync/reposync/internal/fsx"
	"github.com/reposync/reposync/internal/ledger"
)

func TestUnrollSingleIntent(t *testing.T) {
	dir := initRepo(t)
	_, err := runCommand(t, "sync", "--root", dir)
	require.NoError(t, err)

	out, err := runCommand(t, "unroll", "--root", dir, "rule:example/tool:cursor")
	require.NoError(t, err)
	assert.Contains(t, out, "removed")
	assert.Contains(t, out, "rule:example/tool:cursor")

	// The cursor block is gone; the claude one survives.
	assert.Equal(t, "", readRepoFile(t, dir, ".cursorrules"))
	assert.Contains(t, readRepoFile(t, dir, "CLAUDE.md"), "## example")

	root, err := fsx.NewRoot(dir)
	require.NoError(t, err)
	led, err := ledger.NewStore(root).Load()
	require.NoError(t, err)
	assert.Nil(t, led.Find("rule:example/tool:cursor"))
	assert.NotNil(t, led.Find("rule:example/tool:claude"))
}

func TestUnrollAll(t *testing.T) {
	dir := initRepo(t)
	_, err := runCommand(t, "sync", "--root", dir)
	require.NoError(t, err)

	out, err := runCommand(t, "unroll", "--root", dir, "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "removed")

	root, err := fsx.NewRoot(dir)
	require.NoError(t, err)
	led, err := ledger.NewStore(root).Load()
	require.NoError(t, err)
	assert.Empty(t, led.Intents)
}

func TestUnrollLeavesHumanContent(t *testing.T) {
	dir := initRepo(t)
	writeRepoFile(t, dir, ".cursorrules", "# Team conventions\n")
	_, err := runCommand(t, "sync", "--root", dir)
	require.NoError(t, err)

	_, err = runCommand(t, "unroll", "--root", dir, "--all")
	require.NoError(t, err)

	assert.Equal(t, "# Team conventions\n", readRepoFile(t, dir, ".cursorrules"))
}

func TestUnrollRequiresSelection(t *testing.T) {
	dir := initRepo(t)

	_, err := runCommand(t, "unroll", "--root", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--all")
}

func TestUnrollRejectsIdsWithAll(t *testing.T) {
	dir := initRepo(t)

	_, err := runCommand(t, "unroll", "--root", dir, "--all", "rule:example/tool:cursor")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestUnrollSyncRecreates(t *testing.T) {
	dir := initRepo(t)
	_, err := runCommand(t, "sync", "--root", dir)
	require.NoError(t, err)

	_, err = runCommand(t, "unroll", "--root", dir, "--all")
	require.NoError(t, err)

	out, err := runCommand(t, "sync", "--root", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "created", "the rules still exist, so sync recreates the projections")
	assert.Contains(t, readRepoFile(t, dir, ".cursorrules"), "Describe one convention")
}
