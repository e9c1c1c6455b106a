package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCleanTree(t *testing.T) {
	dir := initRepo(t)
	_, err := runCommand(t, "sync", "--root", dir)
	require.NoError(t, err)

	out, err := runCommand(t, "status", "--root", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ all projections in sync")
}

func TestStatusReportsDrift(t *testing.T) {
	dir := initRepo(t)
	_, err := runCommand(t, "sync", "--root", dir)
	require.NoError(t, err)

	edited := strings.Replace(readRepoFile(t, dir, "CLAUDE.md"), "Describe", "Rewrote", 1)
	writeRepoFile(t, dir, "CLAUDE.md", edited)

	out, err := runCommand(t, "status", "--root", dir)
	require.NoError(t, err, "status is informational, drift is not a command failure")
	assert.Contains(t, out, "tool: claude")
	assert.Contains(t, out, "drifted")
	assert.Contains(t, out, "rule:example/tool:claude")
}

func TestStatusReportsMissingFile(t *testing.T) {
	dir := initRepo(t)
	_, err := runCommand(t, "sync", "--root", dir)
	require.NoError(t, err)

	require.NoError(t, removeRepoFile(dir, ".cursorrules"))

	out, err := runCommand(t, "status", "--root", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "missing_file")
}

func TestStatusJSON(t *testing.T) {
	dir := initRepo(t)
	_, err := runCommand(t, "sync", "--root", dir)
	require.NoError(t, err)

	out, err := runCommand(t, "status", "--root", dir, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"status":"ok"`)
	assert.Contains(t, out, `"intents"`)
}

func TestStatusEmptyLedger(t *testing.T) {
	dir := initRepo(t)

	out, err := runCommand(t, "status", "--root", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "in sync", "nothing managed means nothing out of sync")
}
