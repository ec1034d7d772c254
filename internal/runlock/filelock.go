package runlock

import (
	"fmt"

	"github.com/gofrs/flock"
)

// FileLock is a single-host lock backed by an advisory file lock. It covers
// deployments where the coordinator and workers share one machine and no
// database-level lock is wanted. Unlike DBLock, the OS releases the lock
// when the holding process dies.
type FileLock struct {
	fl *flock.Flock
}

// NewFileLock creates a file-backed run lock at the given path
func NewFileLock(path string) *FileLock {
	return &FileLock{fl: flock.New(path)}
}

// Acquire attempts to take the file lock without blocking
func (l *FileLock) Acquire() error {
	locked, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("runlock: failed to acquire %s: %w", l.fl.Path(), err)
	}

	if !locked {
		return ErrOverlap
	}

	return nil
}

// Release drops the file lock. Releasing an unheld lock is a no-op.
func (l *FileLock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("runlock: failed to release %s: %w", l.fl.Path(), err)
	}

	return nil
}

// IsHeld reports whether this process holds the lock
func (l *FileLock) IsHeld() (bool, error) {
	return l.fl.Locked(), nil
}
