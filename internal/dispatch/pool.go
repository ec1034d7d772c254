package dispatch

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Pool executes work units on a fixed set of workers. Units carry a
// deadline and a retry budget of zero: a unit that fails or expires is
// never resubmitted by the pool.
type Pool struct {
	queue  chan *workUnit
	logger *slog.Logger

	// now is injectable for deterministic expiry tests
	now func() time.Time

	waitGroup sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

type workUnit struct {
	handle *Handle
	work   Work
}

// NewPool creates a pool with the given worker and queue capacity
func NewPool(workers, queueDepth int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}

	p := &Pool{
		queue:  make(chan *workUnit, queueDepth),
		logger: logger,
		now:    time.Now,
	}

	for i := 0; i < workers; i++ {
		p.waitGroup.Add(1)
		go p.worker()
	}

	return p
}

// SetClock overrides the pool's wall clock, for tests
func (p *Pool) SetClock(now func() time.Time) {
	p.now = now
}

// Submit enqueues one unit of work bound to (userID, deadline) and returns
// a handle for non-blocking state inspection. If the queue is full the unit
// terminates Failed immediately rather than blocking dispatch.
func (p *Pool) Submit(userID string, deadline time.Time, work Work) *Handle {
	handle := &Handle{
		unitID:   uuid.NewString(),
		userID:   userID,
		deadline: deadline,
		state:    UnitPending,
	}

	unit := &workUnit{
		handle: handle,
		work:   work,
	}

	// The stopped check and the enqueue stay under one critical section:
	// StopWait closes the queue under the same mutex, so a send can never
	// race the close.
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		handle.fail(fmt.Errorf("dispatch: pool is stopped"))
		return handle
	}

	select {
	case p.queue <- unit:
		p.mu.Unlock()
	default:
		p.mu.Unlock()
		handle.fail(fmt.Errorf("dispatch: queue is full"))
		p.logger.Error("dropped work unit, queue is full",
			"unit_id", handle.unitID,
			"user_id", userID)
	}

	return handle
}

// worker consumes units until the queue closes
func (p *Pool) worker() {
	defer p.waitGroup.Done()

	for unit := range p.queue {
		p.execute(unit)
	}
}

// execute runs a single unit, enforcing the deadline at pickup time.
// Workers never process a unit past its deadline.
func (p *Pool) execute(unit *workUnit) {
	handle := unit.handle

	if p.now().After(handle.deadline) {
		handle.fail(ErrExpired)
		p.logger.Warn("unit expired before execution",
			"unit_id", handle.unitID,
			"user_id", handle.userID,
			"deadline", handle.deadline)
		return
	}

	handle.markRunning()

	err := p.runRecovered(unit)
	if err != nil {
		handle.fail(err)
		p.logger.Error("work unit failed",
			"unit_id", handle.unitID,
			"user_id", handle.userID,
			"error", err)
		return
	}

	handle.succeed()
}

// runRecovered invokes the work function, converting panics into errors so
// a bad unit cannot take down a worker
func (p *Pool) runRecovered(unit *workUnit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch: work unit panicked: %v", r)
			p.logger.Error("recovered work unit panic",
				"unit_id", unit.handle.unitID,
				"user_id", unit.handle.userID,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	return unit.work()
}

// StopWait closes the queue and waits for queued units to drain. The close
// happens under the same mutex as Submit's enqueue.
func (p *Pool) StopWait() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.waitGroup.Wait()
}
