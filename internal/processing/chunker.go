package processing

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tkellman/chunkline/internal/db"
)

// Chunker is the database-backed chunk processor. Each call consumes one
// page of a user's pending files: parseable files are binned into hourly
// chunk records and retired from the queue, unparseable files are flagged
// bad and left pending so later passes can skip over them.
type Chunker struct {
	db     *db.DB
	logger *slog.Logger

	// now stamps new chunk records; injectable for tests
	now func() time.Time
}

// NewChunker creates a chunk processor over the given database
func NewChunker(database *db.DB, logger *slog.Logger) *Chunker {
	return &Chunker{
		db:     database,
		logger: logger,
		now:    time.Now,
	}
}

// Process implements ChunkProcessor. Returns the number of bad files in
// this page: newly-discovered ones plus files already flagged in an earlier
// run, which the skip offset has not yet stepped over in this invocation.
// Storage and parse failures go into the collector; Process itself never
// fails the pass.
func (c *Chunker) Process(userID string, pageSize, skipCount int, errs *ErrorCollector) int {
	files, err := c.db.PendingPage(userID, pageSize, skipCount)
	if err != nil {
		errs.Add(fmt.Errorf("failed to fetch pending page for %s: %w", userID, err))
		return 0
	}

	newBadFiles := 0
	var retire []string

	for _, file := range files {
		if file.Bad {
			// Flagged in an earlier pass or an earlier run. It still counts
			// toward this invocation's bad total: the caller's skip offset
			// must grow past every flagged file at the head of the queue, or
			// a fresh run would stall on the first page with good files
			// still queued behind it.
			newBadFiles++
			continue
		}

		bins, err := binFile(&file)
		if err != nil {
			errs.Add(fmt.Errorf("bad file %s (user %s): %w", file.Path, file.UserID, err))

			if markErr := c.db.MarkFileBad(file.ID); markErr != nil {
				errs.Add(fmt.Errorf("failed to mark file %s bad: %w", file.ID, markErr))
				continue
			}

			newBadFiles++
			continue
		}

		if len(bins) == 0 {
			// Empty files carry no data; retire them without a chunk record
			retire = append(retire, file.ID)
			continue
		}

		if err := c.writeChunks(&file, bins); err != nil {
			errs.Add(err)
			continue
		}

		retire = append(retire, file.ID)
	}

	if err := c.db.RetireFiles(retire); err != nil {
		errs.Add(fmt.Errorf("failed to retire %d files for %s: %w", len(retire), userID, err))
	}

	c.logger.Debug("processed page",
		"user_id", userID,
		"page_files", len(files),
		"retired", len(retire),
		"new_bad_files", newBadFiles)

	return newBadFiles
}

// writeChunks upserts one chunk record per hour bin of a file
func (c *Chunker) writeChunks(file *db.FileToProcess, bins map[time.Time]int) error {
	dataType, err := dataTypeFromPath(file.Path)
	if err != nil {
		return fmt.Errorf("file %s: %w", file.Path, err)
	}

	for timeBin, rowCount := range bins {
		chunk := &db.ChunkRecord{
			ID:        uuid.NewString(),
			UserID:    file.UserID,
			DataType:  dataType,
			TimeBin:   timeBin,
			RowCount:  rowCount,
			CreatedAt: c.now(),
		}

		if err := c.db.UpsertChunk(chunk); err != nil {
			return fmt.Errorf("failed to write chunk %s/%s/%s: %w",
				file.UserID, dataType, timeBin.Format(time.RFC3339), err)
		}
	}

	return nil
}

// binFile parses a file's CSV payload and counts data rows per hour bin.
// The first column of every row must be a unix millisecond timestamp.
// Returns an empty map for files with a header but no rows.
func binFile(file *db.FileToProcess) (map[time.Time]int, error) {
	payload := strings.TrimSpace(string(file.Payload))
	if payload == "" {
		return map[time.Time]int{}, nil
	}

	lines := strings.Split(payload, "\n")
	if len(lines) < 1 || strings.TrimSpace(lines[0]) == "" {
		return nil, fmt.Errorf("missing header")
	}

	bins := make(map[time.Time]int)
	for i, line := range lines[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		first, _, _ := strings.Cut(line, ",")
		millis, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid timestamp %q", i+1, first)
		}

		bin := time.UnixMilli(millis).UTC().Truncate(time.Hour)
		bins[bin]++
	}

	return bins, nil
}

// dataTypeFromPath derives the data stream name from an upload path of the
// form <user>/<data_type>/<timestamp>.csv
func dataTypeFromPath(path string) (string, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return "", fmt.Errorf("data type unknown for path %q", path)
	}

	return parts[len(parts)-2], nil
}
