package loopgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parloop/internal/cfg"
	"github.com/roach88/parloop/internal/ir"
)

type fixture struct {
	fn    *ir.Function
	entry *ir.Block
	b     *ir.Builder
	an    *cfg.Builder
}

// newFixture returns a function whose entry ends in "ret void", with the
// builder positioned before the return.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	m := ir.NewModule("loopgen")
	fn, err := m.NewFunction("f", ir.FuncType(ir.Void, ir.I64), ir.ExternalLinkage)
	require.NoError(t, err)
	entry := fn.NewBlock("entry")
	b := ir.NewBuilder()
	b.SetInsertPoint(entry)
	ret := b.CreateRetVoid()
	b.SetInsertPointBefore(ret)

	an := cfg.NewBuilder(fn)
	require.NoError(t, an.AddEntry(entry))
	return &fixture{fn: fn, entry: entry, b: b, an: an}
}

func blockNames(fn *ir.Function) []string {
	var names []string
	for _, blk := range fn.Blocks {
		names = append(names, blk.Name())
	}
	return names
}

func i64(v int64) ir.Value { return ir.ConstInt(ir.I64, v) }

func TestBuildLoopShape(t *testing.T) {
	f := newFixture(t)

	iv, exit, err := BuildLoop(f.b, f.an, i64(0), i64(9), i64(1), ir.PredSLE, false, "loop")
	require.NoError(t, err)

	assert.Equal(t, []string{"entry", "loop.header", "loop.exit"}, blockNames(f.fn))
	assert.Equal(t, "loop.exit", exit.Name())
	assert.Equal(t, ir.OpRet, exit.Terminator().Op)

	header := f.fn.Blocks[1]
	assert.Equal(t, header, f.entry.Terminator().Targets[0])
	assert.Equal(t, "%loop.iv", iv.Ident())
	assert.Same(t, header, f.b.Block(), "builder is in the loop body")
	assert.Equal(t, "%loop.iv = phi i64 [ 0, %entry ], [ %loop.next, %loop.header ]",
		ir.FormatInstr(header.Instrs[0]))
	assert.Equal(t, "%loop.cond = icmp sle i64 %loop.next, 9", ir.FormatInstr(header.Instrs[2]))

	require.NoError(t, ir.Verify(f.fn))
	a, err := f.an.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 1, a.LoopDepth(header.ID))
	assert.Equal(t, 0, a.LoopDepth(exit.ID))
	assert.Equal(t, header.ID, a.IDom(exit.ID))
}

func TestBuildLoopBodyGoesBeforeIncrement(t *testing.T) {
	f := newFixture(t)
	iv, _, err := BuildLoop(f.b, f.an, i64(0), i64(3), i64(1), ir.PredSLE, false, "loop")
	require.NoError(t, err)

	body := f.b.CreateMul(iv, i64(2), "twice")

	header := f.fn.Blocks[1]
	assert.Same(t, body, header.Instrs[1])
	assert.Equal(t, ir.OpAdd, header.Instrs[2].Op)
}

func TestBuildLoopNested(t *testing.T) {
	f := newFixture(t)
	outerIV, outerExit, err := BuildLoop(f.b, f.an, i64(0), i64(9), i64(1), ir.PredSLE, false, "outer")
	require.NoError(t, err)
	innerIV, innerExit, err := BuildLoop(f.b, f.an, i64(0), outerIV, i64(2), ir.PredSLE, false, "inner")
	require.NoError(t, err)
	require.NotNil(t, innerIV)

	assert.Equal(t,
		[]string{"entry", "outer.header", "inner.header", "inner.exit", "outer.exit"},
		blockNames(f.fn))

	// The outer latch moved into inner.exit; the outer phi follows it.
	outerHeader := f.fn.Blocks[1]
	latchValue, ok := outerIV.(*ir.Instr).IncomingFor(innerExit)
	require.True(t, ok)
	assert.Equal(t, "%outer.next", latchValue.Ident())
	assert.Equal(t, outerHeader, innerExit.Terminator().Targets[0])

	require.NoError(t, ir.Verify(f.fn))
	a, err := f.an.Finalize()
	require.NoError(t, err)
	innerHeader := f.fn.Blocks[2]
	assert.Equal(t, 2, a.LoopDepth(innerHeader.ID))
	assert.Equal(t, 1, a.LoopDepth(innerExit.ID))
	assert.Equal(t, innerExit.ID, a.IDom(outerExit.ID))
}

func TestBuildLoopWithGuard(t *testing.T) {
	f := newFixture(t)
	n := f.fn.Params[0]

	_, exit, err := BuildLoop(f.b, f.an, i64(0), n, i64(1), ir.PredSLT, true, "loop")
	require.NoError(t, err)

	assert.Equal(t, []string{"entry", "loop.guard", "loop.header", "loop.exit"}, blockNames(f.fn))
	guard := f.fn.Blocks[1]
	assert.Equal(t, "%loop.guard.cond = icmp slt i64 0, %arg", ir.FormatInstr(guard.Instrs[0]))

	require.NoError(t, ir.Verify(f.fn))
	a, err := f.an.Finalize()
	require.NoError(t, err)
	assert.Equal(t, guard.ID, a.IDom(exit.ID))
}

func TestBuildLoopReparentsDominatedBlocks(t *testing.T) {
	m := ir.NewModule("loopgen")
	fn, err := m.NewFunction("g", ir.FuncType(ir.Void), ir.ExternalLinkage)
	require.NoError(t, err)
	entry := fn.NewBlock("entry")
	after := fn.NewBlock("after")
	b := ir.NewBuilder()
	b.SetInsertPoint(entry)
	br := b.CreateBr(after)
	b.SetInsertPoint(after)
	b.CreateRetVoid()

	an := cfg.NewBuilder(fn)
	require.NoError(t, an.AddEntry(entry))
	require.NoError(t, an.AddBlock(after, entry))

	b.SetInsertPointBefore(br)
	_, exit, err := BuildLoop(b, an, i64(1), i64(4), i64(1), ir.PredSLE, false, "loop")
	require.NoError(t, err)

	assert.Equal(t, exit.ID, an.IDom(after))
	_, err = an.Finalize()
	require.NoError(t, err)
}

func TestBuildLoopErrors(t *testing.T) {
	tests := []struct {
		name    string
		lb, ub  ir.Value
		stride  ir.Value
		pred    ir.Predicate
		guard   bool
		wantIs  error
		wantMsg string
	}{
		{name: "zero stride", lb: i64(0), ub: i64(9), stride: i64(0), pred: ir.PredSLE, wantIs: ErrNonPositiveStride},
		{name: "negative stride", lb: i64(0), ub: i64(9), stride: i64(-1), pred: ir.PredSLE, wantIs: ErrNonPositiveStride},
		{name: "empty range", lb: i64(5), ub: i64(3), stride: i64(1), pred: ir.PredSLE, wantIs: ErrDegenerateRange},
		{name: "empty half-open range", lb: i64(3), ub: i64(3), stride: i64(1), pred: ir.PredSLT, wantIs: ErrDegenerateRange},
		{name: "unsupported predicate", lb: i64(0), ub: i64(9), stride: i64(1), pred: ir.PredEQ, wantIs: ErrUnsupportedPredicate},
		{name: "mixed types", lb: ir.ConstInt(ir.I32, 0), ub: i64(9), stride: i64(1), pred: ir.PredSLE, wantMsg: "must be one integer type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, _, err := BuildLoop(f.b, f.an, tt.lb, tt.ub, tt.stride, tt.pred, tt.guard, "loop")
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
			// Nothing was emitted.
			assert.Len(t, f.fn.Blocks, 1)
		})
	}
}

func TestBuildLoopGuardAllowsEmptyRange(t *testing.T) {
	f := newFixture(t)
	_, _, err := BuildLoop(f.b, f.an, i64(5), i64(3), i64(1), ir.PredSLE, true, "loop")
	require.NoError(t, err)
}

func TestBuildLoopNeedsTerminatedBlock(t *testing.T) {
	f := newFixture(t)
	f.b.SetInsertPoint(f.entry) // after the return
	_, _, err := BuildLoop(f.b, f.an, i64(0), i64(1), i64(1), ir.PredSLE, false, "loop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must precede the terminator")

	_, _, err = BuildLoop(ir.NewBuilder(), f.an, i64(0), i64(1), i64(1), ir.PredSLE, false, "loop")
	require.Error(t, err)
}
