package dispatch

import (
	"errors"
	"sync"
	"time"
)

// ErrExpired marks a unit whose deadline had already passed when a worker
// picked it up. The work function is never invoked for an expired unit.
var ErrExpired = errors.New("dispatch: unit deadline expired before execution")

// UnitState is the closed set of observable work unit states. Every
// consumer must switch over all four values; there is no catch-all state
// for an observation to fall through silently.
type UnitState int

const (
	UnitPending UnitState = iota // queued, not yet picked up by a worker
	UnitRunning                  // executing on a worker
	UnitSucceeded
	UnitFailed
)

// String returns a human-readable representation of the unit state
func (s UnitState) String() string {
	switch s {
	case UnitPending:
		return "pending"
	case UnitRunning:
		return "running"
	case UnitSucceeded:
		return "succeeded"
	case UnitFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is one a unit never leaves
func (s UnitState) Terminal() bool {
	return s == UnitSucceeded || s == UnitFailed
}

// Work is the function a work unit executes on a worker
type Work func() error

// Handle is the future returned by Submit. State inspection is
// non-blocking; the coordinator polls handles until every one is terminal.
type Handle struct {
	unitID   string
	userID   string
	deadline time.Time

	mu    sync.Mutex
	state UnitState
	err   error
}

// UnitID returns the unique identifier of the dispatched unit
func (h *Handle) UnitID() string {
	return h.unitID
}

// UserID returns the user this unit processes
func (h *Handle) UserID() string {
	return h.userID
}

// Deadline returns the expiry attached at dispatch time
func (h *Handle) Deadline() time.Time {
	return h.deadline
}

// State returns the current unit state without blocking
func (h *Handle) State() UnitState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err returns the terminal error for a failed unit, nil otherwise
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// transitions below enforce Pending → Running → {Succeeded, Failed};
// a terminal state is never overwritten

func (h *Handle) markRunning() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == UnitPending {
		h.state = UnitRunning
	}
}

func (h *Handle) succeed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.state.Terminal() {
		h.state = UnitSucceeded
	}
}

func (h *Handle) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.state.Terminal() {
		h.state = UnitFailed
		h.err = err
	}
}
