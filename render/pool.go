package render

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	mandel "github.com/marben/ingemi"
	"github.com/marben/ingemi/frame"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("render pool closed")

// Pool runs a fixed number of workers that take tasks from a shared queue,
// render them and deliver the results on a channel.
//
// Each task's buffer is owned by exactly one worker while it renders, and is
// passed on with the result. Tasks whose generation has been superseded by
// the time a worker picks them up are not rendered; their buffers go back to
// the buffer pool.
//
// Thread safety: Pool is safe for concurrent use.
type Pool struct {
	renderer mandel.Renderer
	workers  int
	tasks    chan mandel.Task
	results  chan<- mandel.Result
	stale    func(generation uint64) bool
	buffers  *frame.BufferPool

	active  atomic.Int32
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithStale sets the predicate used to skip superseded tasks.
func WithStale(stale func(generation uint64) bool) PoolOption {
	return func(p *Pool) { p.stale = stale }
}

// WithBufferPool sets where the buffers of skipped or failed tasks go.
func WithBufferPool(bp *frame.BufferPool) PoolOption {
	return func(p *Pool) { p.buffers = bp }
}

// NewPool starts workers goroutines rendering with r and delivering to
// results.
func NewPool(r mandel.Renderer, workers int, results chan<- mandel.Result, opts ...PoolOption) (*Pool, error) {
	if workers < 1 {
		return nil, mandel.NewConfigError("workers", "must be at least 1, got %d", workers)
	}
	p := &Pool{
		renderer: r,
		workers:  workers,
		tasks:    make(chan mandel.Task, workers*4),
		results:  results,
		stale:    func(uint64) bool { return false },
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p, nil
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.done:
			return
		case t := <-p.tasks:
			p.run(t)
		}
	}
}

func (p *Pool) run(t mandel.Task) {
	logger := mandel.Logger()
	if p.stale(t.Generation) {
		logger.Debug("skipping superseded tile", "generation", t.Generation, "start", t.Start, "end", t.End)
		p.release(t.Buffer)
		return
	}

	p.active.Add(1)
	res, err := p.renderer.RenderTile(context.Background(), t)
	p.active.Add(-1)
	if err != nil {
		logger.Warn("render of tile failed", "generation", t.Generation, "start", t.Start, "end", t.End, "err", err)
		p.release(t.Buffer)
		return
	}

	select {
	case p.results <- res:
	case <-p.done:
		p.release(res.Buffer)
	}
}

func (p *Pool) release(buf []byte) {
	if p.buffers != nil {
		p.buffers.Put(buf)
	}
}

// Submit queues tasks in order. It blocks while the queue is full, and
// returns early if ctx is done or the pool is closed.
func (p *Pool) Submit(ctx context.Context, tasks ...mandel.Task) error {
	for _, t := range tasks {
		if !p.running.Load() {
			return ErrPoolClosed
		}
		select {
		case p.tasks <- t:
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return ErrPoolClosed
		}
	}
	return nil
}

// Close stops the workers after their current tile and waits for them.
// Queued tasks are discarded. Close is safe to call more than once.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Active returns the number of workers currently rendering a tile.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int {
	return len(p.tasks)
}
