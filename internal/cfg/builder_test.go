package cfg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/parloop/internal/ir"
)

// loopFunction builds:
//
//	entry -> head; head -> body | exit; body -> head
type loopFunction struct {
	fn                     *ir.Function
	entry, head, body, out *ir.Block
}

func newLoopFunction(t *testing.T) loopFunction {
	t.Helper()
	m := ir.NewModule("cfg")
	fn, err := m.NewFunction("loop", ir.FuncType(ir.Void), ir.ExternalLinkage)
	require.NoError(t, err)

	lf := loopFunction{fn: fn}
	lf.entry = fn.NewBlock("entry")
	lf.head = fn.NewBlock("head")
	lf.body = fn.NewBlock("body")
	lf.out = fn.NewBlock("exit")

	b := ir.NewBuilder()
	b.SetInsertPoint(lf.entry)
	b.CreateBr(lf.head)
	b.SetInsertPoint(lf.head)
	b.CreateCondBr(ir.True, lf.body, lf.out)
	b.SetInsertPoint(lf.body)
	b.CreateBr(lf.head)
	b.SetInsertPoint(lf.out)
	b.CreateRetVoid()
	return lf
}

func (lf loopFunction) register(t *testing.T) *Builder {
	t.Helper()
	cb := NewBuilder(lf.fn)
	require.NoError(t, cb.AddEntry(lf.entry))
	require.NoError(t, cb.AddBlock(lf.head, lf.entry))
	require.NoError(t, cb.AddBlock(lf.body, lf.head))
	require.NoError(t, cb.AddBlock(lf.out, lf.head))
	loop, err := cb.AddLoop(lf.head, NoLoop)
	require.NoError(t, err)
	require.NoError(t, cb.AddToLoop(loop, lf.body))
	return cb
}

func invariantKinds(err error) []string {
	var kinds []string
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			var inv *InvariantError
			if errors.As(e, &inv) {
				kinds = append(kinds, inv.Kind)
			}
		}
	}
	return kinds
}

func TestFinalizeCorrectRegistration(t *testing.T) {
	lf := newLoopFunction(t)
	cb := lf.register(t)

	a, err := cb.Finalize()
	require.NoError(t, err)

	assert.Equal(t, "loop", a.Function())
	assert.Equal(t, lf.entry.ID, a.Entry())
	assert.Equal(t, ir.NoBlockID, a.IDom(lf.entry.ID))
	assert.Equal(t, lf.head.ID, a.IDom(lf.out.ID))
	assert.ElementsMatch(t, []ir.BlockID{lf.body.ID, lf.out.ID}, a.Children(lf.head.ID))
	assert.True(t, a.Dominates(lf.entry.ID, lf.out.ID))
	assert.True(t, a.Dominates(lf.body.ID, lf.body.ID))
	assert.False(t, a.Dominates(lf.body.ID, lf.out.ID))

	loops := a.Loops()
	require.Len(t, loops, 1)
	assert.Equal(t, lf.head.ID, loops[0].Header)
	assert.Equal(t, []ir.BlockID{lf.head.ID, lf.body.ID}, loops[0].Blocks)
	assert.Equal(t, 1, loops[0].Depth)
	assert.Equal(t, 1, a.LoopDepth(lf.body.ID))
	assert.Equal(t, 0, a.LoopDepth(lf.out.ID))
}

func TestFinalizeOnlyOnce(t *testing.T) {
	lf := newLoopFunction(t)
	cb := lf.register(t)

	_, err := cb.Finalize()
	require.NoError(t, err)

	_, err = cb.Finalize()
	assert.ErrorIs(t, err, ErrFinalized)
	assert.ErrorIs(t, cb.AddBlock(lf.out, lf.head), ErrFinalized)
	assert.ErrorIs(t, cb.SetIDom(lf.out, lf.entry), ErrFinalized)
}

func TestFinalizeDetectsWrongDominator(t *testing.T) {
	lf := newLoopFunction(t)
	cb := lf.register(t)
	require.NoError(t, cb.SetIDom(lf.out, lf.entry))

	_, err := cb.Finalize()
	require.Error(t, err)
	assert.Equal(t, []string{InvariantDominator}, invariantKinds(err))
	assert.Contains(t, err.Error(), "registered immediate dominator entry, computed head")
}

func TestFinalizeWithoutVerificationTrustsRecords(t *testing.T) {
	lf := newLoopFunction(t)
	cb := lf.register(t)
	require.NoError(t, cb.SetIDom(lf.out, lf.entry))

	a, err := cb.Finalize(WithVerification(false))
	require.NoError(t, err)
	assert.Equal(t, lf.entry.ID, a.IDom(lf.out.ID))
}

func TestFinalizeDetectsMissingLoop(t *testing.T) {
	lf := newLoopFunction(t)
	cb := NewBuilder(lf.fn)
	require.NoError(t, cb.AddEntry(lf.entry))
	require.NoError(t, cb.AddBlock(lf.head, lf.entry))
	require.NoError(t, cb.AddBlock(lf.body, lf.head))
	require.NoError(t, cb.AddBlock(lf.out, lf.head))

	_, err := cb.Finalize()
	require.Error(t, err)
	kinds := invariantKinds(err)
	assert.Contains(t, kinds, InvariantLoop)
	assert.Contains(t, err.Error(), "natural loop header is not registered")
}

func TestFinalizeDetectsUnregisteredBlock(t *testing.T) {
	lf := newLoopFunction(t)
	cb := NewBuilder(lf.fn)
	require.NoError(t, cb.AddEntry(lf.entry))
	require.NoError(t, cb.AddBlock(lf.head, lf.entry))

	_, err := cb.Finalize()
	require.Error(t, err)
	assert.Equal(t, []string{InvariantUnregistered, InvariantUnregistered}, invariantKinds(err))
}

func TestFinalizeDetectsIrreducibleCycle(t *testing.T) {
	m := ir.NewModule("cfg")
	fn, err := m.NewFunction("irreducible", ir.FuncType(ir.Void), ir.ExternalLinkage)
	require.NoError(t, err)
	entry := fn.NewBlock("entry")
	x := fn.NewBlock("x")
	y := fn.NewBlock("y")

	b := ir.NewBuilder()
	b.SetInsertPoint(entry)
	b.CreateCondBr(ir.True, x, y)
	b.SetInsertPoint(x)
	b.CreateBr(y)
	b.SetInsertPoint(y)
	b.CreateBr(x)

	cb := NewBuilder(fn)
	require.NoError(t, cb.AddEntry(entry))
	require.NoError(t, cb.AddBlock(x, entry))
	require.NoError(t, cb.AddBlock(y, entry))

	_, err = cb.Finalize()
	require.Error(t, err)
	assert.Equal(t, []string{InvariantIrreducible}, invariantKinds(err))
}

func TestBuilderRejectsBadRegistration(t *testing.T) {
	lf := newLoopFunction(t)
	cb := NewBuilder(lf.fn)

	require.Error(t, cb.AddBlock(lf.head, lf.entry), "dominator not registered yet")
	require.NoError(t, cb.AddEntry(lf.entry))
	require.Error(t, cb.AddEntry(lf.head), "second entry")
	require.NoError(t, cb.AddBlock(lf.head, lf.entry))
	require.Error(t, cb.AddBlock(lf.head, lf.entry), "duplicate")
	require.Error(t, cb.SetIDom(lf.entry, lf.head), "entry has no dominator")

	_, err := cb.AddLoop(lf.head, LoopID(7))
	require.Error(t, err, "unknown parent")
	loop, err := cb.AddLoop(lf.head, NoLoop)
	require.NoError(t, err)
	_, err = cb.AddLoop(lf.head, loop)
	require.Error(t, err, "header already heads a loop")

	other := ir.NewModule("other")
	fn, err := other.NewFunction("g", ir.FuncType(ir.Void), ir.ExternalLinkage)
	require.NoError(t, err)
	require.Error(t, cb.AddBlock(fn.NewBlock("foreign"), lf.entry))
}

func TestNestedLoopsVerify(t *testing.T) {
	m := ir.NewModule("cfg")
	fn, err := m.NewFunction("nest", ir.FuncType(ir.Void), ir.ExternalLinkage)
	require.NoError(t, err)
	entry := fn.NewBlock("entry")
	outer := fn.NewBlock("outer")
	inner := fn.NewBlock("inner")
	latch := fn.NewBlock("latch")
	exit := fn.NewBlock("exit")

	b := ir.NewBuilder()
	b.SetInsertPoint(entry)
	b.CreateBr(outer)
	b.SetInsertPoint(outer)
	b.CreateCondBr(ir.True, inner, exit)
	b.SetInsertPoint(inner)
	b.CreateCondBr(ir.True, inner, latch)
	b.SetInsertPoint(latch)
	b.CreateBr(outer)
	b.SetInsertPoint(exit)
	b.CreateRetVoid()

	cb := NewBuilder(fn)
	require.NoError(t, cb.AddEntry(entry))
	require.NoError(t, cb.AddBlock(outer, entry))
	require.NoError(t, cb.AddBlock(inner, outer))
	require.NoError(t, cb.AddBlock(latch, inner))
	require.NoError(t, cb.AddBlock(exit, outer))
	outerLoop, err := cb.AddLoop(outer, NoLoop)
	require.NoError(t, err)
	_, err = cb.AddLoop(inner, outerLoop)
	require.NoError(t, err)
	require.NoError(t, cb.AddToLoop(outerLoop, latch))

	a, err := cb.Finalize()
	require.NoError(t, err)
	l, ok := a.LoopFor(inner.ID)
	require.True(t, ok)
	assert.Equal(t, 2, l.Depth)
	assert.Equal(t, outerLoop, l.Parent)
	assert.True(t, a.Loops()[0].Contains(inner.ID))
}
