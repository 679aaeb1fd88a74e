// Package async provides a bounded worker pool for background I/O work
// that must not block the hot path.
package async

import (
	"context"
	"fmt"
	"sync"

	"github.com/praveen686/omlaxmiquant/internal/errs"
)

// Task is a unit of work executed by a pool worker.
type Task func(context.Context) error

// Pool runs tasks on a fixed set of workers. Submit never blocks: when the
// queue is full the task is refused, so callers get backpressure instead of
// a stalled goroutine.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan job
	wg     sync.WaitGroup
	once   sync.Once
}

type job struct {
	ctx context.Context
	fn  Task
}

// NewPool creates a pool with the given worker count and queue depth.
func NewPool(workers, queue int) (*Pool, error) {
	if workers <= 0 {
		return nil, errs.New("async/pool", errs.CodeInvalid,
			errs.WithMessage("workers must be positive"))
	}
	if queue < 0 {
		queue = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan job, queue),
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p, nil
}

// Submit schedules fn for execution. A saturated or closed pool refuses the
// task with CodeBusy.
func (p *Pool) Submit(ctx context.Context, fn Task) error {
	if fn == nil {
		return errs.New("async/pool", errs.CodeInvalid,
			errs.WithMessage("task must not be nil"))
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.wg.Add(1)
	select {
	case <-p.ctx.Done():
		p.wg.Done()
		return errs.New("async/pool", errs.CodeBusy, errs.WithMessage("pool closed"))
	case <-ctx.Done():
		p.wg.Done()
		return fmt.Errorf("submit context: %w", ctx.Err())
	case p.jobs <- job{ctx: ctx, fn: fn}:
		return nil
	default:
		p.wg.Done()
		return errs.New("async/pool", errs.CodeBusy, errs.WithMessage("pool at capacity"))
	}
}

// Close stops accepting new tasks and cancels the workers.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.cancel()
		close(p.jobs)
	})
}

// Shutdown closes the pool and waits for in-flight tasks until the context
// expires. Tasks still queued when the pool closes are discarded.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.Close()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown context: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (p *Pool) worker() {
	for {
		select {
		case <-p.ctx.Done():
			// Close cancels first and then closes the queue, so this range
			// terminates. Queued tasks are discarded, not run, but their
			// waitgroup slots must still be released or Shutdown stalls.
			for range p.jobs {
				p.wg.Done()
			}
			return
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			ctx := j.ctx
			if ctx == nil {
				ctx = p.ctx
			}
			// A panicking task must not take the worker down with it.
			func() {
				defer func() {
					if r := recover(); r != nil {
						_ = r
					}
				}()
				_ = j.fn(ctx)
			}()
			p.wg.Done()
		}
	}
}
