// Package orchestrator drives one full processing run: acquire the run
// lock, enumerate users with pending files, dispatch one work unit per
// user, poll the unit handles to terminal states, release the lock.
package orchestrator

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tkellman/chunkline/internal/dispatch"
	"github.com/tkellman/chunkline/internal/runlock"
	"github.com/tkellman/chunkline/internal/schedule"
)

// WorkEnumerator returns the distinct set of user IDs that currently have
// unprocessed files
type WorkEnumerator interface {
	DistinctPendingUsers() ([]string, error)
}

// Dispatcher submits one unit of asynchronous work per user with zero
// automatic retries
type Dispatcher interface {
	Submit(userID string, deadline time.Time, work dispatch.Work) *dispatch.Handle
}

// Converger runs the per-user convergence loop and returns the bad file
// count
type Converger interface {
	Converge(userID string) (int, error)
}

// Recorder persists the run audit trail. A nil recorder disables auditing.
type Recorder interface {
	RecordRunStarted(runID string, startedAt, deadline time.Time, userCount int) error
	RecordUnitDispatched(unitID, runID, userID string, deadline time.Time) error
	RecordUnitTerminal(unitID string, state dispatch.UnitState, badFiles int, unitErr error) error
	RecordRunCompleted(runID string, succeeded, failed int) error
}

// Orchestrator coordinates a processing run across all users
type Orchestrator struct {
	lock     runlock.Lock
	work     WorkEnumerator
	pool     Dispatcher
	loop     Converger
	recorder Recorder
	logger   *slog.Logger

	pollInterval time.Duration

	// clock and sleep are injectable for deterministic tests
	now   func() time.Time
	sleep func(time.Duration)
}

// New creates an orchestrator. pollInterval is the fixed backoff between
// polling passes over outstanding unit handles.
func New(lock runlock.Lock, work WorkEnumerator, pool Dispatcher, loop Converger, recorder Recorder, pollInterval time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		lock:         lock,
		work:         work,
		pool:         pool,
		loop:         loop,
		recorder:     recorder,
		logger:       logger,
		pollInterval: pollInterval,
		now:          time.Now,
		sleep:        time.Sleep,
	}
}

// SetClock overrides the wall clock and sleep function, for tests
func (o *Orchestrator) SetClock(now func() time.Time, sleep func(time.Duration)) {
	o.now = now
	o.sleep = sleep
}

// unitResult tracks a dispatched unit through the polling loop
type unitResult struct {
	handle   *dispatch.Handle
	badFiles int
}

// Run executes one full processing run. Lock acquisition failure is
// returned verbatim and is fatal for this run; a concurrent run is an
// operator-visible condition, not something to wait out. Per-user failures
// never surface as an error from Run; they are observable only through the
// failed unit states. The lock is released on every exit path.
func (o *Orchestrator) Run() error {
	if err := o.lock.Acquire(); err != nil {
		return err
	}

	defer func() {
		if err := o.lock.Release(); err != nil {
			o.logger.Error("failed to release run lock", "error", err)
		}
	}()

	runID := uuid.NewString()
	startedAt := o.now()
	deadline := schedule.NextHourBoundary(startedAt)

	users, err := o.work.DistinctPendingUsers()
	if err != nil {
		return fmt.Errorf("failed to enumerate users with pending files: %w", err)
	}

	o.logger.Info("starting processing run",
		"run_id", runID,
		"user_count", len(users),
		"deadline", deadline)

	if o.recorder != nil {
		if err := o.recorder.RecordRunStarted(runID, startedAt, deadline, len(users)); err != nil {
			o.logger.Error("failed to record run start", "run_id", runID, "error", err)
		}
	}

	units := o.dispatchAll(runID, users, deadline)
	succeeded, failed := o.pollUntilTerminal(runID, units)

	if o.recorder != nil {
		if err := o.recorder.RecordRunCompleted(runID, succeeded, failed); err != nil {
			o.logger.Error("failed to record run completion", "run_id", runID, "error", err)
		}
	}

	o.logger.Info("processing run complete",
		"run_id", runID,
		"succeeded", succeeded,
		"failed", failed,
		"duration", o.now().Sub(startedAt))

	return nil
}

// dispatchAll submits one work unit per user and returns the handles
func (o *Orchestrator) dispatchAll(runID string, users []string, deadline time.Time) []*unitResult {
	units := make([]*unitResult, 0, len(users))

	for _, userID := range users {
		result := &unitResult{}

		handle := o.pool.Submit(userID, deadline, func() error {
			badFiles, err := o.loop.Converge(userID)
			result.badFiles = badFiles
			return err
		})
		result.handle = handle

		units = append(units, result)

		o.logger.Debug("dispatched work unit",
			"run_id", runID,
			"unit_id", handle.UnitID(),
			"user_id", userID)

		if o.recorder != nil {
			if err := o.recorder.RecordUnitDispatched(handle.UnitID(), runID, userID, deadline); err != nil {
				o.logger.Error("failed to record unit dispatch",
					"unit_id", handle.UnitID(),
					"error", err)
			}
		}
	}

	return units
}

// pollUntilTerminal polls every outstanding handle, partitioning into
// succeeded, failed, and still-outstanding, until no handle remains. The
// fixed sleep between passes is the only backoff.
func (o *Orchestrator) pollUntilTerminal(runID string, units []*unitResult) (succeeded, failed int) {
	outstanding := units

	for len(outstanding) > 0 {
		var still []*unitResult

		for _, unit := range outstanding {
			switch unit.handle.State() {
			case dispatch.UnitSucceeded:
				succeeded++
				o.recordTerminal(unit)
			case dispatch.UnitFailed:
				failed++
				o.recordTerminal(unit)
			case dispatch.UnitPending, dispatch.UnitRunning:
				still = append(still, unit)
			}
		}

		outstanding = still

		if len(outstanding) > 0 {
			o.logger.Debug("polling outstanding units",
				"run_id", runID,
				"outstanding", len(outstanding),
				"succeeded", succeeded,
				"failed", failed)
			o.sleep(o.pollInterval)
		}
	}

	return succeeded, failed
}

// recordTerminal persists a unit's terminal state
func (o *Orchestrator) recordTerminal(unit *unitResult) {
	if o.recorder == nil {
		return
	}

	handle := unit.handle
	if err := o.recorder.RecordUnitTerminal(handle.UnitID(), handle.State(), unit.badFiles, handle.Err()); err != nil {
		o.logger.Error("failed to record unit terminal state",
			"unit_id", handle.UnitID(),
			"state", handle.State().String(),
			"error", err)
	}
}
