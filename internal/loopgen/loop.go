// Package loopgen materializes a sequential counted loop at a builder's
// insertion point.
//
// The loop is bottom-tested: without a guard its body runs at least once.
// For lb=L, ub=U, stride=S and predicate sle the induction variable takes
// the values L, L+S, ... while they are <= U.
//
//	pre:          ...                      ; insertion point was here
//	              br %name.header
//	name.header:  %iv = phi [L, %pre], [%next, %latch]
//	              <body>                   ; insertion point on return
//	              %next = add %iv, S
//	              %cond = icmp pred %next, U
//	              br %cond, %name.header, %name.exit
//	name.exit:    <rest of pre>
package loopgen

import (
	"errors"
	"fmt"

	"github.com/roach88/parloop/internal/cfg"
	"github.com/roach88/parloop/internal/ir"
)

var (
	// ErrNonPositiveStride is returned for a constant stride <= 0.
	ErrNonPositiveStride = errors.New("loop stride must be positive")

	// ErrDegenerateRange is returned for constant bounds that describe an
	// empty range when no guard is requested.
	ErrDegenerateRange = errors.New("degenerate loop range")

	// ErrUnsupportedPredicate is returned for predicates other than slt
	// and sle.
	ErrUnsupportedPredicate = errors.New("unsupported loop predicate")
)

// BuildLoop emits a loop from lb to ub by stride, compared with pred, at the
// builder's insertion point. The block holding the insertion point becomes
// the pre-header; everything after the insertion point moves to the new
// exit block. The builder is left at the start of the loop body.
//
// Every new block is registered in an at creation, and the loop is nested in
// the loop owning the pre-header. With guard, a guard block skips the loop
// entirely when lb pred ub does not hold.
func BuildLoop(b *ir.Builder, an *cfg.Builder, lb, ub, stride ir.Value, pred ir.Predicate, guard bool, name string) (ir.Value, *ir.Block, error) {
	if err := check(b, lb, ub, stride, pred, guard); err != nil {
		return nil, nil, fmt.Errorf("build loop %s: %w", name, err)
	}

	pre := b.Block()
	fn := pre.Parent()
	parent := an.LoopFor(pre)
	// Everything pre dominated now sits behind the exit block.
	dominated := an.Dominated(pre)

	exit := b.SplitBlock(name + ".exit")
	entry := pre

	var guardBlk *ir.Block
	if guard {
		guardBlk = fn.NewBlock(name + ".guard")
		fn.MoveBlockAfter(guardBlk, pre)
		if err := an.AddBlock(guardBlk, pre); err != nil {
			return nil, nil, err
		}
		pre.Terminator().Targets[0] = guardBlk
		entry = guardBlk
	}

	header := fn.NewBlock(name + ".header")
	fn.MoveBlockAfter(header, entry)
	if err := an.AddBlock(header, entry); err != nil {
		return nil, nil, err
	}
	if err := an.AddBlock(exit, exitDominator(guardBlk, header)); err != nil {
		return nil, nil, err
	}
	for _, blk := range dominated {
		if err := an.SetIDom(blk, exit); err != nil {
			return nil, nil, err
		}
	}

	if _, err := an.AddLoop(header, parent); err != nil {
		return nil, nil, err
	}
	if parent != cfg.NoLoop {
		if err := an.AddToLoop(parent, exit); err != nil {
			return nil, nil, err
		}
		if guardBlk != nil {
			if err := an.AddToLoop(parent, guardBlk); err != nil {
				return nil, nil, err
			}
		}
	}

	if guardBlk != nil {
		b.SetInsertPoint(guardBlk)
		cond := b.CreateICmp(pred, lb, ub, name+".guard.cond")
		b.CreateCondBr(cond, header, exit)
	} else {
		pre.Terminator().Targets[0] = header
	}

	b.SetInsertPoint(header)
	iv := b.CreatePhi(lb.Type(), name+".iv")
	iv.AddIncoming(lb, entry)
	next := b.CreateAdd(iv, stride, name+".next")
	cond := b.CreateICmp(pred, next, ub, name+".cond")
	b.CreateCondBr(cond, header, exit)
	iv.AddIncoming(next, header)

	b.SetInsertPointBefore(next)
	return iv, exit, nil
}

func exitDominator(guardBlk, header *ir.Block) *ir.Block {
	if guardBlk != nil {
		return guardBlk
	}
	return header
}

func check(b *ir.Builder, lb, ub, stride ir.Value, pred ir.Predicate, guard bool) error {
	ip := b.InsertPoint()
	if !ip.IsSet() {
		return errors.New("builder has no insertion point")
	}
	if ip.Block.Terminator() == nil || ip.Index >= len(ip.Block.Instrs) {
		return fmt.Errorf("insertion point must precede the terminator of %s", ip.Block.Name())
	}
	if pred != ir.PredSLT && pred != ir.PredSLE {
		return fmt.Errorf("%w: %s", ErrUnsupportedPredicate, pred)
	}
	t := lb.Type()
	if !t.IsInt() || !ub.Type().Equal(t) || !stride.Type().Equal(t) {
		return fmt.Errorf("operand types %s, %s, %s must be one integer type", lb.Type(), ub.Type(), stride.Type())
	}
	if s, ok := stride.(*ir.Const); ok && s.Val <= 0 {
		return fmt.Errorf("%w: %d", ErrNonPositiveStride, s.Val)
	}
	l, lok := lb.(*ir.Const)
	u, uok := ub.(*ir.Const)
	if !guard && lok && uok && !pred.Eval(l.Val, u.Val) {
		return fmt.Errorf("%w: %d %s %d never holds", ErrDegenerateRange, l.Val, pred, u.Val)
	}
	return nil
}
