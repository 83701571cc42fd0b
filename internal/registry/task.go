package registry

import (
	"context"
	"sync"
)

// Task is the handle of one background pipeline execution. It is stored
// alongside the job record so cancellation can reach the running executor.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewTask wraps the cancel function of the job's context.
func NewTask(cancel context.CancelFunc) *Task {
	return &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Cancel requests the executor to stop. Safe to call more than once.
func (t *Task) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}

// Close marks the execution finished. Called by the goroutine running the
// executor once its cleanup has completed.
func (t *Task) Close() {
	t.once.Do(func() { close(t.done) })
}

// Done is closed once the execution has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the execution finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
