package processing

import "log/slog"

// LogReporter delivers bundled error reports to the log. It stands in for
// the operator notification channel (email, pager) at this boundary.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a reporter that writes to the given logger
func NewLogReporter(logger *slog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report logs the bundled error report
func (r *LogReporter) Report(subject string, err error) error {
	r.logger.Error("bundled processing error report",
		"subject", subject,
		"error", err)
	return nil
}
