package parallel

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/roach88/parloop/internal/capture"
	"github.com/roach88/parloop/internal/cfg"
	"github.com/roach88/parloop/internal/ir"
)

// DeployParallelExecution emits, at the builder's insertion point, the start
// of the parallel region, a direct call of worker on the calling thread and
// the joining barrier, in that order. ub is exclusive.
func (g *Generator) DeployParallelExecution(b *ir.Builder, worker *ir.Function, ctx ir.Value, lb, ub, stride ir.Value) error {
	if err := g.emitter.EmitSpawn(b, worker, ctx, g.opts.NumThreads, lb, ub, stride); err != nil {
		return fmt.Errorf("deploy @%s: %w", worker.Name(), err)
	}
	b.CreateCall(worker, []ir.Value{ctx}, "")
	if err := g.emitter.EmitJoin(b); err != nil {
		return fmt.Errorf("deploy @%s: %w", worker.Name(), err)
	}
	return nil
}

// ErrBoundOverflow is returned when the inclusive upper bound is the largest
// value of its type, so the runtime's exclusive bound cannot be formed.
var ErrBoundOverflow = errors.New("upper bound has no exclusive successor")

// Region is a parallel loop whose body is being generated.
type Region struct {
	// Worker is the generated worker function.
	Worker *ir.Function
	// IV is the induction variable inside the worker.
	IV ir.Value
	// ValueMap translates captured outer values to their worker copies.
	ValueMap ir.ValueMap

	gen   *Generator
	b     *ir.Builder
	after ir.InsertPoint
}

// Finish ends body generation: the builder returns to the caller just after
// the join, and the worker's analysis is finalized.
func (r *Region) Finish() (*cfg.Analysis, error) {
	r.b.RestoreInsertPoint(r.after)
	return r.gen.FinishWorker(r.Worker)
}

// Discard removes the worker from the module and forgets its analysis. The
// caller owns the host and must drop it too, since it calls the worker.
func (r *Region) Discard() {
	r.b.RestoreInsertPoint(r.after)
	r.gen.discard(r.Worker)
}

// CreateParallelLoop parallelizes a loop over the inclusive range
// [lb, ubInclusive] by stride at the builder's insertion point.
//
// The captured values are packed into a context struct on the caller's
// stack; a non-constant stride is captured automatically. On return the
// builder sits in the worker's loop body: generate the body there using the
// returned induction variable and Region.ValueMap, then call Region.Finish.
func (g *Generator) CreateParallelLoop(b *ir.Builder, lb, ubInclusive, stride ir.Value, captured *capture.Set) (ir.Value, *Region, error) {
	host := b.Function()
	if host == nil {
		return nil, nil, fmt.Errorf("create parallel loop: builder has no insertion point")
	}
	if c, ok := ubInclusive.(*ir.Const); ok && c.Val == maxSigned(c.Type().Bits) {
		return nil, nil, fmt.Errorf("create parallel loop in @%s: %w: %d", host.Name(), ErrBoundOverflow, c.Val)
	}

	if captured == nil {
		captured = capture.NewSet()
	}
	captured.Add(stride)

	caller := b.InsertPoint()

	vmap := ir.ValueMap{}
	iv, worker, err := g.CreateWorker(b, host, stride, captured, captured.StructType(), vmap)
	if err != nil {
		b.RestoreInsertPoint(caller)
		return nil, nil, err
	}
	body := b.InsertPoint()

	b.RestoreInsertPoint(caller)
	original := hostInstrs(host)
	ctx, _ := capture.Pack(b, captured)
	// The runtime takes an exclusive upper bound.
	ub := exclusiveBound(b, ubInclusive)
	if err := g.DeployParallelExecution(b, worker, ctx, lb, ub, stride); err != nil {
		g.discard(worker)
		rollback(host, original)
		b.RestoreInsertPoint(caller)
		return nil, nil, err
	}
	after := b.InsertPoint()
	b.RestoreInsertPoint(body)

	g.logger.Info("parallel loop created",
		"host", host.Name(),
		"worker", worker.Name(),
		"threads", g.opts.NumThreads)

	return iv, &Region{
		Worker:   worker,
		IV:       iv,
		ValueMap: vmap,
		gen:      g,
		b:        b,
		after:    after,
	}, nil
}

func exclusiveBound(b *ir.Builder, ub ir.Value) ir.Value {
	if c, ok := ub.(*ir.Const); ok {
		return ir.ConstInt(c.Type(), c.Val+1)
	}
	return b.CreateAdd(ub, ir.ConstInt(ub.Type(), 1), "par.UBExclusive")
}

// maxSigned is the largest value of a signed integer of the given width.
func maxSigned(bits int) int64 {
	if bits <= 0 || bits >= 64 {
		return math.MaxInt64
	}
	return 1<<(bits-1) - 1
}

// hostInstrs records the instructions currently in f.
func hostInstrs(f *ir.Function) map[*ir.Instr]bool {
	seen := make(map[*ir.Instr]bool)
	f.Instructions(func(in *ir.Instr) { seen[in] = true })
	return seen
}

// rollback erases every instruction of f that is not in original.
func rollback(f *ir.Function, original map[*ir.Instr]bool) {
	for _, blk := range f.Blocks {
		blk.Instrs = slices.DeleteFunc(blk.Instrs, func(in *ir.Instr) bool { return !original[in] })
	}
}
