// Package fgpool implements Pool, the shared worker pool every node
// Compute call and every edge propagation step runs on (spec §4.7). All
// scheduling here is task submission onto a fixed number of goroutines
// draining a shared channel — no dependency graph, unlike the teacher's
// internal/dag.Executor, since fgpool itself knows nothing about node
// dependencies; graph.Graph is the caller that decides what to submit and
// when.
package fgpool

import (
	"context"
	"log/slog"
	"sync"

	"go.uber.org/multierr"

	"github.com/flowrt/flowrt/internal/ctxlog"
)

// Task is a unit of work submitted to the pool. A panicking Task is
// recovered and turned into an error rather than taking down a worker
// goroutine, mirroring the node package's own InvokeCompute discipline.
type Task func(ctx context.Context) error

// Pool is a fixed-size goroutine pool draining a shared task channel, sized
// at construction the way the original's BS::thread_pool is (spec §4.7,
// "default 10 threads"). The zero Pool is not usable; construct with New.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup
	size  int

	mu   sync.Mutex
	errs error

	log *slog.Logger
}

// New starts a Pool with size worker goroutines. size <= 0 is treated as 1.
func New(ctx context.Context, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{
		tasks: make(chan func()),
		size:  size,
		log:   ctxlog.FromContext(ctx),
	}
	for i := 0; i < size; i++ {
		go p.worker(ctx, i)
	}
	return p
}

func (p *Pool) worker(ctx context.Context, workerID int) {
	workerLog := p.log.With("workerID", workerID)
	workerLog.Debug("fgpool worker started")
	for fn := range p.tasks {
		fn()
	}
	workerLog.Debug("fgpool worker stopped")
}

func (p *Pool) submit(ctx context.Context, t Task) {
	p.wg.Add(1)
	p.tasks <- func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.recordError(fmtPanic(r))
			}
		}()
		if err := t(ctx); err != nil {
			p.recordError(err)
		}
	}
}

func (p *Pool) recordError(err error) {
	p.mu.Lock()
	p.errs = multierr.Append(p.errs, err)
	p.mu.Unlock()
}

// AddTask enqueues a single unit of work.
func (p *Pool) AddTask(ctx context.Context, t Task) {
	p.submit(ctx, t)
}

// AddSequenceTask enqueues one task per index in [lo, hi), each a call to fn
// with that index.
func (p *Pool) AddSequenceTask(ctx context.Context, lo, hi int, fn func(ctx context.Context, i int) error) {
	for i := lo; i < hi; i++ {
		idx := i
		p.submit(ctx, func(ctx context.Context) error { return fn(ctx, idx) })
	}
}

// AddLoopTask partitions [lo, hi) into blocks worth of contiguous indices —
// 0 blocks means "use the pool's worker count" — and enqueues one task per
// block, calling fn once per index within its block.
func (p *Pool) AddLoopTask(ctx context.Context, lo, hi, blocks int, fn func(ctx context.Context, i int) error) {
	p.AddBlocksTask(ctx, lo, hi, blocks, func(ctx context.Context, blockLo, blockHi int) error {
		for i := blockLo; i < blockHi; i++ {
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddBlocksTask partitions [lo, hi) into blocks contiguous sub-ranges and
// enqueues one task per block, handing each task its [blockLo, blockHi)
// half-open sub-range. blocks <= 0 defaults to the pool's worker count.
func (p *Pool) AddBlocksTask(ctx context.Context, lo, hi, blocks int, fn func(ctx context.Context, blockLo, blockHi int) error) {
	total := hi - lo
	if total <= 0 {
		return
	}
	if blocks <= 0 {
		blocks = p.workerHint()
	}
	if blocks > total {
		blocks = total
	}
	size := total / blocks
	rem := total % blocks

	start := lo
	for b := 0; b < blocks; b++ {
		blockSize := size
		if b < rem {
			blockSize++
		}
		blockLo, blockHi := start, start+blockSize
		start = blockHi
		p.submit(ctx, func(ctx context.Context) error { return fn(ctx, blockLo, blockHi) })
	}
}

func (p *Pool) workerHint() int {
	return p.size
}

// Wait blocks until every submitted task has completed, then returns the
// aggregated error from every task that failed (nil if none did). Wait may
// be called multiple times; each call only waits for tasks submitted
// before it returns and resets the aggregated error for the next round.
func (p *Pool) Wait() error {
	p.wg.Wait()
	p.mu.Lock()
	err := p.errs
	p.errs = nil
	p.mu.Unlock()
	return err
}

// Close stops accepting new tasks and waits for the workers to drain,
// closing the pool permanently.
func (p *Pool) Close() error {
	err := p.Wait()
	close(p.tasks)
	return err
}

func fmtPanic(r any) error {
	return &panicError{r: r}
}

type panicError struct{ r any }

func (e *panicError) Error() string { return "fgpool: task panicked: " + toString(e.r) }

func toString(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown panic"
}
