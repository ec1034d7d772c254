package orchestrator

import (
	"time"

	"github.com/tkellman/chunkline/internal/db"
	"github.com/tkellman/chunkline/internal/dispatch"
)

// DBRecorder persists the run audit trail to the database
type DBRecorder struct {
	db *db.DB

	// now stamps unit rows; injectable for tests
	now func() time.Time
}

// NewDBRecorder creates a database-backed run recorder
func NewDBRecorder(database *db.DB) *DBRecorder {
	return &DBRecorder{db: database, now: time.Now}
}

// SetClock overrides the wall clock, for tests
func (r *DBRecorder) SetClock(now func() time.Time) {
	r.now = now
}

// RecordRunStarted creates the process run record
func (r *DBRecorder) RecordRunStarted(runID string, startedAt, deadline time.Time, userCount int) error {
	return r.db.CreateProcessRun(&db.ProcessRun{
		RunID:     runID,
		StartedAt: startedAt,
		Deadline:  deadline,
		UserCount: userCount,
		Status:    "running",
	})
}

// RecordUnitDispatched creates the audit record for a dispatched unit
func (r *DBRecorder) RecordUnitDispatched(unitID, runID, userID string, deadline time.Time) error {
	return r.db.CreateUnit(&db.UnitRecord{
		UnitID:    unitID,
		RunID:     runID,
		UserID:    userID,
		Deadline:  deadline,
		State:     dispatch.UnitPending.String(),
		UpdatedAt: r.now(),
	})
}

// RecordUnitTerminal records a unit's terminal state and bad file count
func (r *DBRecorder) RecordUnitTerminal(unitID string, state dispatch.UnitState, badFiles int, unitErr error) error {
	var errMsg *string
	if unitErr != nil {
		msg := unitErr.Error()
		errMsg = &msg
	}

	return r.db.UpdateUnitState(unitID, state.String(), badFiles, errMsg)
}

// RecordRunCompleted records the terminal outcome of a run
func (r *DBRecorder) RecordRunCompleted(runID string, succeeded, failed int) error {
	return r.db.CompleteProcessRun(runID, succeeded, failed)
}
