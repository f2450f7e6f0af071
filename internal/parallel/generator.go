// Package parallel lowers a sequential loop into a work-sharing loop run by
// the GNU OpenMP runtime.
//
// For a loop over [lb, ub] the generator emits, at the caller:
//
//	GOMP_parallel_loop_runtime_start(@<fn>_parloop_subfn, ctx, threads, lb, ub+1, stride)
//	call @<fn>_parloop_subfn(ctx)
//	GOMP_parallel_end()
//
// and a worker that repeatedly fetches half-open chunks [LB, UB) from the
// runtime and runs the sequential loop over [LB, UB-1]:
//
//	par.setup         allocate the chunk slots, unpack the context
//	par.checkNext     fetch the next chunk; none left -> par.exit
//	par.loadIVBounds  load the chunk bounds, run the loop, back to par.checkNext
//	par.exit          GOMP_loop_end_nowait(); ret void
//
// Every worker block is registered with its immediate dominator and loop as
// it is created; FinishWorker freezes the registrations into a cfg.Analysis.
//
// A Generator belongs to one module and one goroutine.
package parallel

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/parloop/internal/cfg"
	"github.com/roach88/parloop/internal/config"
	"github.com/roach88/parloop/internal/diag"
	"github.com/roach88/parloop/internal/gomp"
	"github.com/roach88/parloop/internal/ir"
)

// Generator creates parallel loops in one module.
type Generator struct {
	mod     *ir.Module
	emitter *gomp.Emitter
	opts    config.Options
	sink    diag.Sink
	logger  *slog.Logger

	pending  map[*ir.Function]*cfg.Builder
	analyses map[*ir.Function]*cfg.Analysis
}

// Option configures a Generator.
type Option func(*Generator)

// WithOptions sets the generation options. Defaults to config.Default().
func WithOptions(opts config.Options) Option {
	return func(g *Generator) { g.opts = opts }
}

// WithDiagnostics sets the sink receiving unsupported-configuration warnings.
func WithDiagnostics(sink diag.Sink) Option {
	return func(g *Generator) { g.sink = sink }
}

// WithLogger sets the logger. Defaults to a logger discarding everything.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

// WithRegistry shares an extern registry, for callers that emit other
// runtime calls into the same module.
func WithRegistry(reg *gomp.Registry) Option {
	return func(g *Generator) { g.emitter = gomp.NewEmitter(reg) }
}

// NewGenerator returns a generator for mod.
func NewGenerator(mod *ir.Module, opts ...Option) *Generator {
	g := &Generator{
		mod:      mod,
		opts:     config.Default(),
		sink:     diag.Discard,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		pending:  make(map[*ir.Function]*cfg.Builder),
		analyses: make(map[*ir.Function]*cfg.Analysis),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.emitter == nil {
		g.emitter = gomp.NewEmitter(gomp.NewRegistry(mod))
	}
	return g
}

// Module returns the module the generator writes to.
func (g *Generator) Module() *ir.Module { return g.mod }

// Options returns the generation options as configured.
func (g *Generator) Options() config.Options { return g.opts }

// Registry returns the generator's extern registry.
func (g *Generator) Registry() *gomp.Registry { return g.emitter.Registry() }

// Analysis returns the finalized analysis of a finished worker.
func (g *Generator) Analysis(worker *ir.Function) (*cfg.Analysis, bool) {
	a, ok := g.analyses[worker]
	return a, ok
}

// FinishWorker freezes the dominator tree and loop forest of worker once its
// body is complete. With verification on, the registrations are checked
// against the finished CFG and the function against ir.Verify.
func (g *Generator) FinishWorker(worker *ir.Function) (*cfg.Analysis, error) {
	an, ok := g.pending[worker]
	if !ok {
		if _, done := g.analyses[worker]; done {
			return nil, fmt.Errorf("finish worker @%s: %w", worker.Name(), cfg.ErrFinalized)
		}
		return nil, fmt.Errorf("finish worker @%s: not created by this generator", worker.Name())
	}
	delete(g.pending, worker)

	if g.opts.Verify {
		if err := ir.Verify(worker); err != nil {
			return nil, fmt.Errorf("finish worker @%s: %w", worker.Name(), err)
		}
	}
	a, err := an.Finalize(cfg.WithVerification(g.opts.Verify))
	if err != nil {
		return nil, fmt.Errorf("finish worker @%s: %w", worker.Name(), err)
	}
	g.analyses[worker] = a

	g.logger.Debug("worker finalized",
		"worker", worker.Name(),
		"blocks", len(a.Blocks()),
		"loops", len(a.Loops()),
		"verified", g.opts.Verify)
	return a, nil
}

// discard drops a worker that will not be finished.
func (g *Generator) discard(worker *ir.Function) {
	g.mod.RemoveFunction(worker)
	delete(g.pending, worker)
	delete(g.analyses, worker)
}
