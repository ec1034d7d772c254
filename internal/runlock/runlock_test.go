package runlock

import (
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkellman/chunkline/internal/db"
	"github.com/tkellman/chunkline/internal/testutil"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, database.Migrate())
	return database
}

// =============================================================================
// DBLock Tests
// =============================================================================

func TestDBLock_AcquireRelease(t *testing.T) {
	lock := NewDBLock(openTestDB(t))

	require.NoError(t, lock.Acquire())

	held, err := lock.IsHeld()
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, lock.Release())

	held, err = lock.IsHeld()
	require.NoError(t, err)
	assert.False(t, held)
}

// TestDBLock_SecondAcquireFails verifies the core mutual exclusion
// invariant: acquire on a held lock fails immediately with ErrOverlap.
func TestDBLock_SecondAcquireFails(t *testing.T) {
	database := openTestDB(t)
	lock := NewDBLock(database)

	require.NoError(t, lock.Acquire())

	err := lock.Acquire()
	assert.ErrorIs(t, err, ErrOverlap)
	assert.True(t, IsOverlap(err))

	// A second coordinator sharing the database sees the same lock
	other := NewDBLock(database)
	assert.ErrorIs(t, other.Acquire(), ErrOverlap)
}

// TestDBLock_StampsAcquireTimeFromInjectedClock verifies locked_at comes
// from the injected clock
func TestDBLock_StampsAcquireTimeFromInjectedClock(t *testing.T) {
	database := openTestDB(t)
	lock := NewDBLock(database)

	frozen := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	lock.SetClock(testutil.NewMockClock(frozen).Now)

	require.NoError(t, lock.Acquire())

	var lockedAt time.Time
	err := database.QueryRow("SELECT locked_at FROM process_lock WHERE id = 1").Scan(&lockedAt)
	require.NoError(t, err)
	assert.True(t, lockedAt.Equal(frozen), "locked_at %v, want %v", lockedAt, frozen)
}

func TestDBLock_ReleaseIsIdempotent(t *testing.T) {
	lock := NewDBLock(openTestDB(t))

	require.NoError(t, lock.Release())

	require.NoError(t, lock.Acquire())
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())

	// Lock is free again after release
	require.NoError(t, lock.Acquire())
}

// =============================================================================
// FileLock Tests
// =============================================================================

func TestFileLock_AcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	lock := NewFileLock(path)

	require.NoError(t, lock.Acquire())

	held, err := lock.IsHeld()
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, lock.Release())

	held, err = lock.IsHeld()
	require.NoError(t, err)
	assert.False(t, held)
}

func TestFileLock_SecondAcquireFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	lock := NewFileLock(path)
	require.NoError(t, lock.Acquire())

	// A second coordinator on the same host opens its own descriptor
	other := NewFileLock(path)
	assert.ErrorIs(t, other.Acquire(), ErrOverlap)

	require.NoError(t, lock.Release())
	assert.NoError(t, other.Acquire())
}

func TestFileLock_ReleaseIsIdempotent(t *testing.T) {
	lock := NewFileLock(filepath.Join(t.TempDir(), "run.lock"))

	require.NoError(t, lock.Acquire())
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
}
