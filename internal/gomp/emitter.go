// Package gomp emits calls into the GNU OpenMP runtime (libgomp) for
// work-sharing loops with the runtime scheduling policy.
//
// The four entry points and their exact signatures:
//
//	void GOMP_parallel_loop_runtime_start(ptr fn, ptr data, i32 num_threads, i64 lb, i64 ub, i64 stride)
//	i8   GOMP_loop_runtime_next(ptr lb, ptr ub)
//	void GOMP_parallel_end()
//	void GOMP_loop_end_nowait()
//
// Chunks reported by GOMP_loop_runtime_next are half-open: [lb, ub).
package gomp

import (
	"fmt"

	"github.com/roach88/parloop/internal/ir"
)

// Runtime entry point names.
const (
	SpawnName  = "GOMP_parallel_loop_runtime_start"
	NextName   = "GOMP_loop_runtime_next"
	JoinName   = "GOMP_parallel_end"
	NoWaitName = "GOMP_loop_end_nowait"
)

// Runtime entry point signatures.
var (
	SpawnSig  = ir.FuncType(ir.Void, ir.Ptr, ir.Ptr, ir.I32, ir.AddrType, ir.AddrType, ir.AddrType)
	NextSig   = ir.FuncType(ir.I8, ir.Ptr, ir.Ptr)
	JoinSig   = ir.FuncType(ir.Void)
	NoWaitSig = ir.FuncType(ir.Void)
)

// Emitter emits runtime calls at a builder's insertion point, declaring each
// entry point through its registry.
type Emitter struct {
	reg *Registry
}

// NewEmitter returns an emitter declaring through reg.
func NewEmitter(reg *Registry) *Emitter {
	return &Emitter{reg: reg}
}

// Registry returns the emitter's extern registry.
func (e *Emitter) Registry() *Registry { return e.reg }

// EmitSpawn emits the start of a parallel region running worker(ctx) on
// numThreads threads over [lb, ub) by stride.
func (e *Emitter) EmitSpawn(b *ir.Builder, worker *ir.Function, ctx ir.Value, numThreads int32, lb, ub, stride ir.Value) error {
	fn, err := e.reg.Declare(SpawnName, SpawnSig)
	if err != nil {
		return err
	}
	for _, v := range []ir.Value{lb, ub, stride} {
		if !v.Type().Equal(ir.AddrType) {
			return fmt.Errorf("spawn: bound %s has type %s, want %s", v.Ident(), v.Type(), ir.AddrType)
		}
	}
	b.CreateCall(fn, []ir.Value{worker, ctx, ir.ConstInt(ir.I32, int64(numThreads)), lb, ub, stride}, "")
	return nil
}

// EmitGetNextWorkItem emits the fetch of the next chunk into the slots lbPtr
// and ubPtr and returns an i1 that holds while work remains.
func (e *Emitter) EmitGetNextWorkItem(b *ir.Builder, lbPtr, ubPtr ir.Value) (ir.Value, error) {
	fn, err := e.reg.Declare(NextName, NextSig)
	if err != nil {
		return nil, err
	}
	next := b.CreateCall(fn, []ir.Value{lbPtr, ubPtr}, "par.next")
	return b.CreateICmp(ir.PredNE, next, ir.ConstInt(ir.I8, 0), "par.hasNextChunk"), nil
}

// EmitJoin emits the barrier ending a parallel region.
func (e *Emitter) EmitJoin(b *ir.Builder) error {
	fn, err := e.reg.Declare(JoinName, JoinSig)
	if err != nil {
		return err
	}
	b.CreateCall(fn, nil, "")
	return nil
}

// EmitCleanup emits the per-worker end of the work-sharing loop, without a
// barrier.
func (e *Emitter) EmitCleanup(b *ir.Builder) error {
	fn, err := e.reg.Declare(NoWaitName, NoWaitSig)
	if err != nil {
		return err
	}
	b.CreateCall(fn, nil, "")
	return nil
}
