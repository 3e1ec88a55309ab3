package jobs

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueFull is returned when every worker is busy and the backlog is at capacity.
var ErrQueueFull = errors.New("crawl queue is full")

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("worker pool closed")

type task func(ctx context.Context)

// WorkerPool runs crawl jobs on a fixed number of goroutines with a bounded backlog.
type WorkerPool struct {
	ctx    context.Context
	cancel context.CancelFunc
	tasks  chan task
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool creates a pool with the given concurrency and queue size.
func NewWorkerPool(parent context.Context, concurrency, queueSize int) (*WorkerPool, error) {
	if concurrency <= 0 || queueSize <= 0 {
		return nil, errors.New("worker pool requires positive concurrency and queue size")
	}
	ctx, cancel := context.WithCancel(parent)
	pool := &WorkerPool{
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(chan task, queueSize),
	}
	pool.start(concurrency)
	return pool, nil
}

func (p *WorkerPool) start(concurrency int) {
	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-p.ctx.Done():
					return
				case fn, ok := <-p.tasks:
					if !ok {
						return
					}
					fn(p.ctx)
				}
			}
		}()
	}
}

// TrySubmit queues fn without blocking; a full backlog yields ErrQueueFull.
func (p *WorkerPool) TrySubmit(fn func(ctx context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.tasks <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close cancels running jobs and stops all workers. Queued jobs are dropped.
func (p *WorkerPool) Close() {
	p.cancel()
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
