package runlock

import (
	"fmt"
	"time"

	"github.com/tkellman/chunkline/internal/db"
)

// DBLock is a fleet-wide lock persisted as a single row in the database.
// The compare-and-set UPDATE makes acquisition atomic across coordinator
// processes sharing the same database.
//
// There is no lease or heartbeat: if the coordinator dies between Acquire
// and Release the row stays locked until an operator clears it.
type DBLock struct {
	db *db.DB

	// now stamps locked_at; injectable for tests
	now func() time.Time
}

// NewDBLock creates a database-backed run lock. The process_lock row is
// seeded by migrations.
func NewDBLock(database *db.DB) *DBLock {
	return &DBLock{db: database, now: time.Now}
}

// SetClock overrides the wall clock, for tests
func (l *DBLock) SetClock(now func() time.Time) {
	l.now = now
}

// Acquire marks the lock held, failing with ErrOverlap if it already is
func (l *DBLock) Acquire() error {
	query := `
		UPDATE process_lock
		SET locked = 1, locked_at = ?
		WHERE id = 1 AND locked = 0
	`

	result, err := l.db.Exec(query, l.now())
	if err != nil {
		return fmt.Errorf("runlock: failed to acquire: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("runlock: failed to acquire: %w", err)
	}

	if rows == 0 {
		return ErrOverlap
	}

	return nil
}

// Release unconditionally marks the lock free, even if it was already free
func (l *DBLock) Release() error {
	query := `
		UPDATE process_lock
		SET locked = 0, locked_at = NULL
		WHERE id = 1
	`

	if _, err := l.db.Exec(query); err != nil {
		return fmt.Errorf("runlock: failed to release: %w", err)
	}

	return nil
}

// IsHeld reports whether the lock is currently held
func (l *DBLock) IsHeld() (bool, error) {
	var locked bool

	query := `
		SELECT locked
		FROM process_lock
		WHERE id = 1
	`

	if err := l.db.QueryRow(query).Scan(&locked); err != nil {
		return false, fmt.Errorf("runlock: failed to read lock state: %w", err)
	}

	return locked, nil
}
