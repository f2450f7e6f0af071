package parallel

import (
	"fmt"

	"github.com/roach88/parloop/internal/capture"
	"github.com/roach88/parloop/internal/cfg"
	"github.com/roach88/parloop/internal/gomp"
	"github.com/roach88/parloop/internal/ir"
	"github.com/roach88/parloop/internal/loopgen"
)

// Worker naming.
const (
	WorkerSuffix   = "_parloop_subfn"
	ContextParam   = "par.userContext"
	SetupBlock     = "par.setup"
	CheckNextBlock = "par.checkNext"
	PreHeaderBlock = "par.loadIVBounds"
	ExitBlock      = "par.exit"
	loopName       = "par.loop"
)

// prepareWorkerDefinition adds the worker declaration for host to the
// module: internal linkage, a single ptr parameter carrying the context, and
// a name derived from host. Later workers of the same host get a numeric
// suffix.
func (g *Generator) prepareWorkerDefinition(host *ir.Function) (*ir.Function, error) {
	base := host.Name() + WorkerSuffix
	name := base
	for n := 1; g.mod.Function(name) != nil; n++ {
		name = fmt.Sprintf("%s.%d", base, n)
	}
	worker, err := g.mod.NewFunction(name, ir.FuncType(ir.Void, ir.Ptr), ir.InternalLinkage)
	if err != nil {
		return nil, err
	}
	worker.Params[0].SetName(ContextParam)
	return worker, nil
}

// CreateWorker synthesizes the worker of a parallel loop over host's loop.
// The captured values are unpacked from the context parameter (laid out as
// ctxType) into vmap; stride must be a constant or a captured value.
//
// On return the builder is positioned in the body of the worker's
// sequential loop and the induction variable is returned. The worker is not
// finished until FinishWorker is called for it.
//
// Errors from the sequential loop materializer are returned unchanged.
func (g *Generator) CreateWorker(b *ir.Builder, host *ir.Function, stride ir.Value, captured *capture.Set, ctxType *ir.Type, vmap ir.ValueMap) (ir.Value, *ir.Function, error) {
	opts := gomp.CheckSchedule(g.opts, g.sink)
	g.logger.Debug("creating worker",
		"host", host.Name(),
		"schedule", opts.Schedule,
		"captured", captured.Len())

	worker, err := g.prepareWorkerDefinition(host)
	if err != nil {
		return nil, nil, err
	}
	iv, err := g.buildWorker(b, worker, stride, captured, ctxType, vmap)
	if err != nil {
		g.discard(worker)
		return nil, nil, err
	}
	return iv, worker, nil
}

func (g *Generator) buildWorker(b *ir.Builder, worker *ir.Function, stride ir.Value, captured *capture.Set, ctxType *ir.Type, vmap ir.ValueMap) (ir.Value, error) {
	an := cfg.NewBuilder(worker)
	g.pending[worker] = an

	header := worker.NewBlock(SetupBlock)
	exit := worker.NewBlock(ExitBlock)
	checkNext := worker.NewBlock(CheckNextBlock)
	preHeader := worker.NewBlock(PreHeaderBlock)
	if err := an.AddEntry(header); err != nil {
		return nil, err
	}
	for _, blk := range []*ir.Block{exit, checkNext, preHeader} {
		if err := an.AddBlock(blk, header); err != nil {
			return nil, err
		}
	}

	// Setup: chunk slots, context, then the first fetch.
	b.SetInsertPoint(header)
	lbPtr := b.CreateAlloca(ir.AddrType, "par.LBPtr")
	ubPtr := b.CreateAlloca(ir.AddrType, "par.UBPtr")
	if err := capture.Unpack(b, captured, ctxType, worker.Params[0], vmap); err != nil {
		return nil, err
	}
	b.CreateBr(checkNext)

	innerStride, ok := vmap.Lookup(stride)
	if !ok {
		return nil, fmt.Errorf("create worker @%s: stride %s is neither constant nor captured",
			worker.Name(), stride.Ident())
	}

	// Dispatch: more work -> pre-header, else -> exit.
	b.SetInsertPoint(checkNext)
	more, err := g.emitter.EmitGetNextWorkItem(b, lbPtr, ubPtr)
	if err != nil {
		return nil, err
	}
	b.CreateCondBr(more, preHeader, exit)
	if err := an.SetIDom(preHeader, checkNext); err != nil {
		return nil, err
	}
	if err := an.SetIDom(exit, checkNext); err != nil {
		return nil, err
	}
	dispatch, err := an.AddLoop(checkNext, cfg.NoLoop)
	if err != nil {
		return nil, err
	}
	if err := an.AddToLoop(dispatch, preHeader); err != nil {
		return nil, err
	}

	// Pre-header: the runtime reports [LB, UB); the loop runs LB..UB-1.
	b.SetInsertPoint(preHeader)
	lb := b.CreateLoad(ir.AddrType, lbPtr, "par.LB")
	ub := b.CreateLoad(ir.AddrType, ubPtr, "par.UB")
	ubAdjusted := b.CreateSub(ub, ir.ConstInt(ir.AddrType, 1), "par.UBAdjusted")
	backEdge := b.CreateBr(checkNext)
	b.SetInsertPointBefore(backEdge)
	iv, _, err := loopgen.BuildLoop(b, an, lb, ubAdjusted, innerStride, ir.PredSLE, false, loopName)
	if err != nil {
		return nil, err
	}
	body := b.InsertPoint()

	b.SetInsertPoint(exit)
	if err := g.emitter.EmitCleanup(b); err != nil {
		return nil, err
	}
	b.CreateRetVoid()

	b.RestoreInsertPoint(body)
	return iv, nil
}
