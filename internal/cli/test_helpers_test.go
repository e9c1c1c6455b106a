package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// runCommand executes the CLI with args and returns stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// initRepo scaffolds an initialized repository in a temp dir.
func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	out, err := runCommand(t, "init", "--root", dir)
	require.NoError(t, err)
	require.Contains(t, out, "created")
	return dir
}

// writeRepoFile writes a file under the repository, creating parents.
func writeRepoFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// readRepoFile reads a file under the repository.
func readRepoFile(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// repoFileExists probes a path under the repository.
func repoFileExists(t *testing.T, dir, rel string) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
	if os.IsNotExist(err) {
		return false
	}
	require.NoError(t, err)
	return true
}

// removeRepoFile deletes a file under the repository.
func removeRepoFile(dir, rel string) error {
	return os.Remove(filepath.Join(dir, filepath.FromSlash(rel)))
}
