package processing

import (
	"fmt"
	"log/slog"
)

// FileCounter reports the current persisted queue depth for a user
type FileCounter interface {
	CountPending(userID string) (int, error)
}

// ChunkProcessor turns one page of raw files into chunk records. It
// consumes up to pageSize files, skipping the first skipCount known-bad
// entries, and returns the count of newly-discovered bad files. Individual
// file failures go into the collector; they never abort the call.
type ChunkProcessor interface {
	Process(userID string, pageSize, skipCount int, errs *ErrorCollector) int
}

// Reporter is the external notification channel for bundled error reports
type Reporter interface {
	Report(subject string, err error) error
}

// Loop drives the chunk processor for one user until no further progress
// is possible or the queue is empty.
type Loop struct {
	counter   FileCounter
	processor ChunkProcessor
	reporter  Reporter
	pageSize  int
	logger    *slog.Logger
}

// NewLoop creates a convergence loop over the given collaborators
func NewLoop(counter FileCounter, processor ChunkProcessor, reporter Reporter, pageSize int, logger *slog.Logger) *Loop {
	return &Loop{
		counter:   counter,
		processor: processor,
		reporter:  reporter,
		pageSize:  pageSize,
		logger:    logger,
	}
}

// Converge runs processing passes for one user to a fixed point and
// returns the number of bad files found. Termination is guaranteed: the
// bad file count is non-decreasing and bounded by the queue depth, the
// pending count is non-increasing, and the loop only breaks when both are
// simultaneously stalled.
//
// The returned error covers storage failures only. Per-file processing
// errors accumulate in the collector and are bundled into one report at
// exit; a failure in the reporting path is logged and swallowed.
func (l *Loop) Converge(userID string) (int, error) {
	collector := NewErrorCollector()
	badFileCount := 0

	remaining, err := l.counter.CountPending(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending files for %s: %w", userID, err)
	}

	for remaining > 0 {
		previousBad := badFileCount

		l.logger.Info("processing user files",
			"user_id", userID,
			"remaining", remaining,
			"bad_files", badFileCount)

		badFileCount += l.processor.Process(userID, l.pageSize, badFileCount, collector)

		after, err := l.counter.CountPending(userID)
		if err != nil {
			l.report(userID, collector)
			return badFileCount, fmt.Errorf("failed to count pending files for %s: %w", userID, err)
		}

		if remaining == after {
			// No files were consumed this pass. Either the queue is
			// exhausted apart from known-bad files (a true fixed point), or
			// new bad files were found and the next pass skips them.
			if previousBad == badFileCount {
				break
			}
		}

		remaining = after
	}

	l.report(userID, collector)

	return badFileCount, nil
}

// report bundles accumulated errors and hands them to the reporter.
// Reporting failures must not crash the worker.
func (l *Loop) report(userID string, collector *ErrorCollector) {
	if collector.Len() == 0 {
		return
	}

	bundled := collector.Bundle()
	subject := fmt.Sprintf("data processing errors for user %s", userID)

	if err := l.reporter.Report(subject, bundled); err != nil {
		l.logger.Error("failed to deliver error report",
			"user_id", userID,
			"report_errors", collector.Len(),
			"error", err)
	}
}
