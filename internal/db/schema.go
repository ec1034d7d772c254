package db

import "time"

// FileToProcess is one raw uploaded file waiting to be chunked.
// Files stay in the pending set until they are consumed by processing;
// files that cannot be parsed are flagged bad and remain pending, and every
// later pass and later run steps over them via the skip offset.
type FileToProcess struct {
	ID         string
	UserID     string
	Path       string
	Payload    []byte
	Bad        bool
	UploadedAt time.Time
}

// ChunkRecord is one hour-binned bucket of processed rows for a user and
// data stream. Repeated processing passes accumulate into the same bucket.
type ChunkRecord struct {
	ID        string
	UserID    string
	DataType  string
	TimeBin   time.Time
	RowCount  int
	CreatedAt time.Time
}

// ProcessRun is the audit record for one orchestration run across all users.
type ProcessRun struct {
	RunID       string
	StartedAt   time.Time
	CompletedAt *time.Time
	Deadline    time.Time
	UserCount   int
	Succeeded   int
	Failed      int
	Status      string
}

// UnitRecord is the audit record for one dispatched per-user work unit.
type UnitRecord struct {
	UnitID    string
	RunID     string
	UserID    string
	Deadline  time.Time
	State     string
	BadFiles  int
	Error     *string
	UpdatedAt time.Time
}
