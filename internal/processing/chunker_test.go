package processing

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tkellman/chunkline/internal/db"
	"github.com/tkellman/chunkline/internal/testutil"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return database
}

func insertUpload(t *testing.T, database *db.DB, id, userID, dataType string, payload string, uploadedAt time.Time) {
	t.Helper()

	err := database.InsertFile(&db.FileToProcess{
		ID:         id,
		UserID:     userID,
		Path:       fmt.Sprintf("%s/%s/%s.csv", userID, dataType, id),
		Payload:    []byte(payload),
		UploadedAt: uploadedAt,
	})
	if err != nil {
		t.Fatalf("failed to insert upload: %v", err)
	}
}

// csvAt builds a payload with one header and rows at the given unix
// millisecond timestamps
func csvAt(timestamps ...int64) string {
	payload := "timestamp,value\n"
	for i, ts := range timestamps {
		payload += fmt.Sprintf("%d,%d\n", ts, i)
	}
	return payload
}

// =============================================================================
// Chunker Tests
// =============================================================================

func TestProcess_BinsRowsByHour(t *testing.T) {
	database := openTestDB(t)
	uploaded := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// 14:10 and 14:50 land in the 14:00 bin, 15:05 in the 15:00 bin
	hour14 := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	hour15 := hour14.Add(time.Hour)
	payload := csvAt(
		hour14.Add(10*time.Minute).UnixMilli(),
		hour14.Add(50*time.Minute).UnixMilli(),
		hour15.Add(5*time.Minute).UnixMilli(),
	)
	insertUpload(t, database, "f1", "alice", "gps", payload, uploaded)

	chunker := NewChunker(database, testutil.NewTestLogger().Logger())
	errs := NewErrorCollector()

	newBad := chunker.Process("alice", 10, 0, errs)

	if newBad != 0 {
		t.Errorf("expected 0 bad files, got %d", newBad)
	}
	if errs.Len() != 0 {
		t.Fatalf("unexpected errors: %v", errs.Errors())
	}

	first, err := database.GetChunk("alice", "gps", hour14)
	if err != nil {
		t.Fatalf("expected chunk for 14:00 bin: %v", err)
	}
	if first.RowCount != 2 {
		t.Errorf("expected 2 rows in 14:00 bin, got %d", first.RowCount)
	}

	second, err := database.GetChunk("alice", "gps", hour15)
	if err != nil {
		t.Fatalf("expected chunk for 15:00 bin: %v", err)
	}
	if second.RowCount != 1 {
		t.Errorf("expected 1 row in 15:00 bin, got %d", second.RowCount)
	}

	// Consumed file leaves the pending set
	count, err := database.CountPending("alice")
	if err != nil {
		t.Fatalf("failed to count pending: %v", err)
	}
	if count != 0 {
		t.Errorf("expected file retired, %d still pending", count)
	}
}

func TestProcess_MarksUnparseableFilesBad(t *testing.T) {
	database := openTestDB(t)
	uploaded := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	insertUpload(t, database, "good", "alice", "gps", csvAt(1700000000000), uploaded)
	insertUpload(t, database, "corrupt", "alice", "gps", "timestamp,value\nnot-a-timestamp,1\n", uploaded.Add(time.Minute))

	chunker := NewChunker(database, testutil.NewTestLogger().Logger())
	errs := NewErrorCollector()

	newBad := chunker.Process("alice", 10, 0, errs)

	if newBad != 1 {
		t.Errorf("expected 1 new bad file, got %d", newBad)
	}
	if errs.Len() != 1 {
		t.Errorf("expected 1 accumulated error, got %d", errs.Len())
	}

	// Bad file stays pending, flagged; good file retired
	count, err := database.CountPending("alice")
	if err != nil {
		t.Fatalf("failed to count pending: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 pending file, got %d", count)
	}

	page, err := database.PendingPage("alice", 10, 0)
	if err != nil {
		t.Fatalf("failed to fetch page: %v", err)
	}
	if len(page) != 1 || !page[0].Bad || page[0].ID != "corrupt" {
		t.Errorf("expected the corrupt file to remain flagged bad, got %+v", page)
	}
}

// TestProcess_SkipCountAvoidsKnownBadFiles drives two passes the way the
// convergence loop does: the second pass skips the bad files found by the
// first and makes no further progress.
func TestProcess_SkipCountAvoidsKnownBadFiles(t *testing.T) {
	database := openTestDB(t)
	uploaded := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	insertUpload(t, database, "bad1", "alice", "gps", "garbage\nx,y\n", uploaded)
	insertUpload(t, database, "bad2", "alice", "gps", "garbage\nx,y\n", uploaded.Add(time.Second))

	chunker := NewChunker(database, testutil.NewTestLogger().Logger())
	errs := NewErrorCollector()

	first := chunker.Process("alice", 10, 0, errs)
	if first != 2 {
		t.Fatalf("expected 2 bad files in first pass, got %d", first)
	}

	second := chunker.Process("alice", 10, first, errs)
	if second != 0 {
		t.Errorf("expected 0 new bad files when skipping known-bad, got %d", second)
	}
}

func TestProcess_CountsFilesFlaggedInEarlierRuns(t *testing.T) {
	database := openTestDB(t)
	uploaded := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	insertUpload(t, database, "stale", "alice", "gps", "garbage\nx,y\n", uploaded)
	if err := database.MarkFileBad("stale"); err != nil {
		t.Fatalf("failed to flag file: %v", err)
	}

	chunker := NewChunker(database, testutil.NewTestLogger().Logger())
	errs := NewErrorCollector()

	newBad := chunker.Process("alice", 10, 0, errs)

	// The flag is from a previous run, but it still counts toward this
	// invocation so the skip offset can grow past it
	if newBad != 1 {
		t.Errorf("expected previously-flagged file counted bad, got %d", newBad)
	}
	if errs.Len() != 0 {
		t.Errorf("flagged files are not re-parsed, unexpected errors: %v", errs.Errors())
	}
}

// TestConverge_DrainsQueueBehindStaleBadFiles covers the run-after-run case:
// a file flagged bad by a previous run sorts to the head of the queue, and
// the loop must still reach the good files queued behind it.
func TestConverge_DrainsQueueBehindStaleBadFiles(t *testing.T) {
	database := openTestDB(t)
	uploaded := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	logger := testutil.NewTestLogger().Logger()

	insertUpload(t, database, "stale", "alice", "gps", "garbage\nx,y\n", uploaded)
	if err := database.MarkFileBad("stale"); err != nil {
		t.Fatalf("failed to flag file: %v", err)
	}

	hour := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	insertUpload(t, database, "fresh", "alice", "gps",
		csvAt(hour.Add(time.Minute).UnixMilli()), uploaded.Add(time.Minute))

	chunker := NewChunker(database, logger)
	loop := NewLoop(database, chunker, NewLogReporter(logger), 1, logger)

	badCount, err := loop.Converge("alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if badCount != 1 {
		t.Errorf("expected 1 bad file, got %d", badCount)
	}

	// The good file was processed and retired; only the flagged file remains
	count, countErr := database.CountPending("alice")
	if countErr != nil {
		t.Fatalf("failed to count pending: %v", countErr)
	}
	if count != 1 {
		t.Errorf("expected only the flagged file pending, got %d", count)
	}

	if _, chunkErr := database.GetChunk("alice", "gps", hour); chunkErr != nil {
		t.Errorf("expected chunk from the file behind the flagged one: %v", chunkErr)
	}
}

func TestProcess_EmptyFileRetiredWithoutChunk(t *testing.T) {
	database := openTestDB(t)

	insertUpload(t, database, "empty", "alice", "gps", "", time.Now())

	chunker := NewChunker(database, testutil.NewTestLogger().Logger())
	errs := NewErrorCollector()

	newBad := chunker.Process("alice", 10, 0, errs)

	if newBad != 0 {
		t.Errorf("expected empty file not to count as bad, got %d", newBad)
	}
	if errs.Len() != 0 {
		t.Errorf("unexpected errors: %v", errs.Errors())
	}

	count, err := database.CountPending("alice")
	if err != nil {
		t.Fatalf("failed to count pending: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty file retired, %d still pending", count)
	}
}

func TestProcess_RespectsPageSize(t *testing.T) {
	database := openTestDB(t)
	uploaded := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 7; i++ {
		insertUpload(t, database, fmt.Sprintf("f%d", i), "alice", "gps",
			csvAt(1700000000000), uploaded.Add(time.Duration(i)*time.Second))
	}

	chunker := NewChunker(database, testutil.NewTestLogger().Logger())
	errs := NewErrorCollector()

	chunker.Process("alice", 5, 0, errs)

	count, err := database.CountPending("alice")
	if err != nil {
		t.Fatalf("failed to count pending: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 files left after one page of 5, got %d", count)
	}
}

func TestProcess_AccumulatesAcrossFilesIntoOneBin(t *testing.T) {
	database := openTestDB(t)
	uploaded := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	hour := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	insertUpload(t, database, "f1", "alice", "accel", csvAt(hour.Add(time.Minute).UnixMilli()), uploaded)
	insertUpload(t, database, "f2", "alice", "accel", csvAt(hour.Add(2*time.Minute).UnixMilli()), uploaded.Add(time.Second))

	chunker := NewChunker(database, testutil.NewTestLogger().Logger())
	errs := NewErrorCollector()
	chunker.Process("alice", 10, 0, errs)

	chunk, err := database.GetChunk("alice", "accel", hour)
	if err != nil {
		t.Fatalf("expected accumulated chunk: %v", err)
	}
	if chunk.RowCount != 2 {
		t.Errorf("expected 2 rows accumulated across files, got %d", chunk.RowCount)
	}
}

// =============================================================================
// Payload Parsing Tests
// =============================================================================

func TestBinFile_InvalidTimestamp(t *testing.T) {
	file := &db.FileToProcess{Payload: []byte("timestamp,value\nabc,1\n")}

	if _, err := binFile(file); err == nil {
		t.Error("expected error for invalid timestamp")
	}
}

func TestBinFile_SkipsBlankRows(t *testing.T) {
	file := &db.FileToProcess{Payload: []byte("timestamp,value\n1700000000000,1\n\n1700000000001,2\n")}

	bins, err := binFile(file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	total := 0
	for _, count := range bins {
		total += count
	}
	if total != 2 {
		t.Errorf("expected 2 rows counted, got %d", total)
	}
}

func TestDataTypeFromPath(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"alice/gps/1700000000000.csv", "gps", false},
		{"study1/alice/accel/1700000000000.csv", "accel", false},
		{"/alice/wifiLog/1.csv", "wifiLog", false},
		{"orphan.csv", "", true},
	}

	for _, tt := range tests {
		got, err := dataTypeFromPath(tt.path)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error", tt.path)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.path, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.path, tt.want, got)
		}
	}
}
