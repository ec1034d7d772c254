package processing

import (
	"errors"
	"sync"
)

// ErrorCollector accumulates errors raised while processing one user's
// queue. Errors are bundled into a single report at loop exit, never
// surfaced incrementally.
type ErrorCollector struct {
	mu   sync.Mutex
	errs []error
}

// NewErrorCollector creates an empty collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{}
}

// Add records one error. Nil errors are ignored.
func (c *ErrorCollector) Add(err error) {
	if err == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

// Len returns the number of accumulated errors
func (c *ErrorCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

// Errors returns a copy of the accumulated errors
func (c *ErrorCollector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]error, len(c.errs))
	copy(result, c.errs)
	return result
}

// Bundle joins all accumulated errors into one. Returns nil when the
// collector is empty.
func (c *ErrorCollector) Bundle() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return errors.Join(c.errs...)
}
