// Package runlock provides the process-wide mutual exclusion lock that
// guarantees at most one data processing run is active across the fleet.
package runlock

import "errors"

// ErrOverlap is returned by Acquire when another run already holds the lock.
// A concurrent run is an operator-visible condition; callers must treat it
// as fatal for the current run rather than queue or retry.
var ErrOverlap = errors.New("runlock: processing overlapped with a previous run")

// Lock is the narrow interface the orchestrator depends on. Acquire fails
// immediately with ErrOverlap when the lock is held; it never blocks.
// Release is idempotent and must be called on every exit path of a run.
type Lock interface {
	Acquire() error
	Release() error
	IsHeld() (bool, error)
}

// IsOverlap checks if error indicates an overlapping run
func IsOverlap(err error) bool {
	return errors.Is(err, ErrOverlap)
}
