package fsx

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndReleaseLock(t *testing.T) {
	r := mustRoot(t)

	l, err := r.AcquireLock(Normalize("target.txt"), time.Second)
	require.NoError(t, err)

	lockPath := filepath.Join(r.Dir(), ".target.txt.lock")
	assert.FileExists(t, lockPath)

	require.NoError(t, l.Release())
	assert.NoFileExists(t, lockPath, "release removes the lock file")
}

func TestSecondAcquireTimesOut(t *testing.T) {
	// flock treats separately opened descriptors independently, so a
	// second acquisition in the same process contends like another
	// process would.
	r := mustRoot(t)
	p := Normalize("shared.txt")

	l1, err := r.AcquireLock(p, time.Second)
	require.NoError(t, err)
	defer l1.Release()

	start := time.Now()
	_, err = r.AcquireLock(p, 80*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLockTimeout), "want ErrLockTimeout, got %v", err)
	assert.Less(t, time.Since(start), time.Second, "bounded wait must not block indefinitely")
}

func TestLockReacquireAfterRelease(t *testing.T) {
	r := mustRoot(t)
	p := Normalize("cycle.txt")

	l1, err := r.AcquireLock(p, time.Second)
	require.NoError(t, err)
	require.NoError(t, l1.Release())

	l2, err := r.AcquireLock(p, time.Second)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestReleaseIsIdempotent(t *testing.T) {
	r := mustRoot(t)

	l, err := r.AcquireLock(Normalize("f"), time.Second)
	require.NoError(t, err)
	require.NoError(t, l.Release())
	require.NoError(t, l.Release())

	var nilLock *Lock
	assert.NoError(t, nilLock.Release())
}

func TestLockForMissingTarget(t *testing.T) {
	// Locks guard files that may not exist yet; the lock file lives in
	// the (created) parent directory.
	r := mustRoot(t)

	l, err := r.AcquireLock(Normalize("new/dir/file.json"), time.Second)
	require.NoError(t, err)
	defer l.Release()

	_, err = os.Stat(filepath.Join(r.Dir(), "new", "dir"))
	assert.NoError(t, err)
}

func TestLockRefusesEscapedPath(t *testing.T) {
	outside := t.TempDir()
	rootDir := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(rootDir, "out")))

	r, err := NewRoot(rootDir)
	require.NoError(t, err)

	_, err = r.AcquireLock(Normalize("out/file"), time.Second)
	var escape *PathEscapeError
	assert.True(t, errors.As(err, &escape))
}
