package fsx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLockTimeout is returned when a lock cannot be acquired within the
// bounded wait. It marks a transient condition: callers may retry.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// lockPollInterval is how often a blocked acquisition re-attempts the
// underlying non-blocking lock.
const lockPollInterval = 25 * time.Millisecond

// Lock is a held advisory exclusive lock. It guards the read-modify-write
// cycle on one target file against other reposync processes; it does not
// stop unrelated programs from touching the file (drift detection exists
// for that).
type Lock struct {
	path string
	f    *os.File
}

// AcquireLock takes the advisory lock guarding the file at p, waiting up
// to timeout. The lock lives on a hidden sibling file (".{name}.lock") so
// it works for targets that do not exist yet. On timeout the returned
// error wraps ErrLockTimeout.
func (r *Root) AcquireLock(p NormalizedPath, timeout time.Duration) (*Lock, error) {
	abs, err := r.Resolve(p)
	if err != nil {
		return nil, err
	}
	lockPath := filepath.Join(filepath.Dir(abs), "."+filepath.Base(abs)+".lock")

	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("lock %s: create parent: %w", p, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return nil, fmt.Errorf("lock %s: open: %w", p, err)
		}

		err = tryLockFile(f)
		if err == nil {
			return &Lock{path: lockPath, f: f}, nil
		}
		f.Close()
		if !errors.Is(err, errLockHeld) {
			return nil, fmt.Errorf("lock %s: %w", p, err)
		}

		if !time.Now().Add(lockPollInterval).Before(deadline) {
			return nil, fmt.Errorf("lock %s: %w", p, ErrLockTimeout)
		}
		time.Sleep(lockPollInterval)
	}
}

// Release drops the lock and removes the lock file. Safe to call on a
// nil or already-released lock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlockErr := unlockFile(l.f)
	closeErr := l.f.Close()
	l.f = nil
	_ = os.Remove(l.path)
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}

// errLockHeld is the platform-neutral "someone else holds it" signal from
// tryLockFile.
var errLockHeld = errors.New("lock held by another process")
