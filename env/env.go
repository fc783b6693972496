// Package env implements Env, the shared environment every node and graph
// in a flowrt process is constructed against (spec §4.7): it owns the node
// factory and the worker pool, and exposes process environment variables to
// node authors. Grounded on include/flow/core/Env.hpp/.cpp in the original
// source for the ownership shape (Env owns the factory and the pool; the
// factory's default conversions are registered inside the Env
// constructor, not the factory's own).
package env

import (
	"context"
	"os"

	"github.com/flowrt/flowrt/convert"
	"github.com/flowrt/flowrt/factory"
	"github.com/flowrt/flowrt/fgpool"
	"github.com/flowrt/flowrt/typename"
	"github.com/flowrt/flowrt/value"
)

// Config configures a new Env. The zero Config is valid and resolves to
// the original's documented defaults.
type Config struct {
	// PoolSize is the number of fgpool worker goroutines. 0 defaults to 10,
	// matching the original's BS::thread_pool<> default construction.
	PoolSize int
	// MaxPropagationDepth caps how many hops an edge-propagation chain may
	// recurse before a node's OnError fires instead of scheduling another
	// hop (spec §9, "Cycles in the topology"). 0 means unlimited.
	MaxPropagationDepth int
}

// DefaultPoolSize is the worker count a zero-value Config.PoolSize resolves
// to.
const DefaultPoolSize = 10

// Env is the shared environment a graph's nodes are constructed against. It
// satisfies node.Env structurally (Convert, GetVar) without importing the
// node package, breaking what would otherwise be a node -> env -> factory
// -> node import cycle.
type Env struct {
	factory *factory.Factory
	pool    *fgpool.Pool
	config  Config
}

// New constructs an Env with its own Factory (pre-loaded with the default
// numeric/chrono conversion families, per spec §4.6's "Default conversions
// registered by the Env constructor") and its own Pool sized per cfg.
func New(ctx context.Context, cfg Config) *Env {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	return &Env{
		factory: factory.New(convert.DefaultRegistry()),
		pool:    fgpool.New(ctx, cfg.PoolSize),
		config:  cfg,
	}
}

// Factory returns the node-class and conversion registry this Env was
// constructed with.
func (e *Env) Factory() *factory.Factory { return e.factory }

// Pool returns the worker pool this Env was constructed with.
func (e *Env) Pool() *fgpool.Pool { return e.pool }

// Config returns the configuration this Env was constructed with.
func (e *Env) Config() Config { return e.config }

// Convert delegates to the Factory's conversion-registry facade — the
// method the node package's Env interface requires.
func (e *Env) Convert(v value.Value, to typename.TypeName) (value.Value, error) {
	return e.factory.Convert(v, to)
}

// GetVar reads a process environment variable, returning "" if unset —
// the original's Env::GetVar wraps std::getenv the same way.
func (e *Env) GetVar(name string) string {
	return os.Getenv(name)
}

// AddTask delegates to the Pool.
func (e *Env) AddTask(ctx context.Context, t fgpool.Task) {
	e.pool.AddTask(ctx, t)
}

// AddSequenceTask delegates to the Pool.
func (e *Env) AddSequenceTask(ctx context.Context, lo, hi int, fn func(ctx context.Context, i int) error) {
	e.pool.AddSequenceTask(ctx, lo, hi, fn)
}

// AddLoopTask delegates to the Pool.
func (e *Env) AddLoopTask(ctx context.Context, lo, hi, blocks int, fn func(ctx context.Context, i int) error) {
	e.pool.AddLoopTask(ctx, lo, hi, blocks, fn)
}

// AddBlocksTask delegates to the Pool.
func (e *Env) AddBlocksTask(ctx context.Context, lo, hi, blocks int, fn func(ctx context.Context, blockLo, blockHi int) error) {
	e.pool.AddBlocksTask(ctx, lo, hi, blocks, fn)
}

// Wait blocks until the pool is idle, per spec §4.7's "Wait(): block until
// the pool is idle".
func (e *Env) Wait() error {
	return e.pool.Wait()
}

// Close waits for the pool to drain and releases it permanently — the
// original's "Shutdown of Env implicitly waits for the pool" (spec §4.7).
func (e *Env) Close() error {
	return e.pool.Close()
}
