// Package tasks runs detached post-save work (rough-patch notices, scheduling
// post-meal checks) on a bounded goroutine pool. A task's failure or panic is
// logged and never reaches the turn that submitted it.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"gutcheck/internal/logging"

	"github.com/panjf2000/ants/v2"
)

// DefaultSize is the pool size used when none is given.
const DefaultSize = 8

// DefaultTaskTimeout bounds a single task.
const DefaultTaskTimeout = 30 * time.Second

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("task pool closed")

// ErrAbandoned is returned by Close when tasks ignore cancellation. They are
// left running.
var ErrAbandoned = errors.New("tasks ignored cancellation")

// Func is one unit of background work.
type Func func(ctx context.Context) error

// Pool is a bounded pool of detached tasks.
type Pool struct {
	pool    *ants.Pool
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a pool running at most size tasks at once. Further submissions
// queue until a worker frees up.
func New(size int, timeout time.Duration) (*Pool, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	p, err := ants.NewPool(size, ants.WithPanicHandler(func(r interface{}) {
		logging.TasksError("task pool worker panicked: %v", r)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create task pool: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	logging.Tasks("task pool started (size=%d, timeout=%v)", size, timeout)
	return &Pool{pool: p, timeout: timeout, ctx: ctx, cancel: cancel}, nil
}

// Submit schedules fn under name. The task gets its own context, detached from
// the caller's, cancelled on Close or after the task timeout.
func (p *Pool) Submit(name string, fn Func) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	err := p.pool.Submit(func() {
		defer p.wg.Done()
		p.run(name, fn)
	})
	if err != nil {
		p.wg.Done()
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrClosed
		}
		return fmt.Errorf("failed to submit task %s: %w", name, err)
	}
	return nil
}

func (p *Pool) run(name string, fn Func) {
	defer func() {
		if r := recover(); r != nil {
			logging.TasksError("PANIC RECOVERED in task %s: %v\n%s", name, r, debug.Stack())
		}
	}()

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	timer := logging.StartTimer(logging.CategoryTasks, name)
	err := fn(ctx)
	timer.Stop()
	if err != nil {
		logging.TasksError("task %s failed: %v", name, err)
	}
}

// Running returns the number of busy workers.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close stops accepting tasks, waits up to timeout for running ones, cancels
// what is left and releases the workers. It returns after at most twice
// timeout.
func (p *Pool) Close(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logging.Get(logging.CategoryTasks).Warn("tasks still running after %v, cancelling", timeout)
		p.cancel()
		select {
		case <-done:
		case <-time.After(timeout):
			p.pool.Release()
			logging.TasksError("tasks still running %v after cancel, abandoning them", timeout)
			return ErrAbandoned
		}
	}
	p.cancel()

	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("failed to release task pool: %w", err)
	}
	logging.Tasks("task pool stopped")
	return nil
}
