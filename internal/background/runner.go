// Package background runs fire-and-forget tasks decoupled from the
// request/response lifecycle. Failures are logged to the runner's own sink
// and never surfaced to the submitting caller, and tasks are never retried.
package background

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type task struct {
	name string
	fn   func(context.Context) error
}

// Runner executes submitted tasks on a fixed pool of workers.
type Runner struct {
	logger  *logrus.Logger
	tasks   chan task
	wg      sync.WaitGroup
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewRunner starts workers goroutines draining the task queue.
func NewRunner(logger *logrus.Logger, workers int) *Runner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if workers <= 0 {
		workers = 2
	}
	r := &Runner{
		logger:  logger,
		tasks:   make(chan task, 64),
		timeout: 2 * time.Minute,
	}
	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.worker()
	}
	return r
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for t := range r.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := t.fn(ctx); err != nil {
			r.logger.WithField("task", t.name).WithError(err).Error("background task failed")
		}
		cancel()
	}
}

// Submit enqueues a task. When the queue is full the task is dropped with a
// log entry rather than blocking the caller; every submitted task is
// best-effort by contract.
func (r *Runner) Submit(name string, fn func(context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.WithField("task", name).Warn("runner closed, dropping task")
		return
	}
	select {
	case r.tasks <- task{name: name, fn: fn}:
	default:
		r.logger.WithField("task", name).Warn("task queue full, dropping task")
	}
}

// Close stops accepting tasks and waits for in-flight ones to finish.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.tasks)
	r.mu.Unlock()
	r.wg.Wait()
}
