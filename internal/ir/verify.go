package ir

import (
	"errors"
	"fmt"
)

// VerifyError describes one structural defect in a function.
type VerifyError struct {
	Function string
	Block    string
	Message  string
}

func (e *VerifyError) Error() string {
	if e.Block != "" {
		return fmt.Sprintf("verify @%s, block %s: %s", e.Function, e.Block, e.Message)
	}
	return fmt.Sprintf("verify @%s: %s", e.Function, e.Message)
}

// Verify checks the structural well-formedness of a function definition:
// terminators, phi placement and incoming edges, branch targets, operand
// scope and types, and call signatures. It returns all defects found, joined.
func Verify(f *Function) error {
	if f.IsDeclaration() {
		return nil
	}
	v := &verifier{fn: f, owned: make(map[*Block]bool)}
	for _, b := range f.Blocks {
		v.owned[b] = true
	}
	for _, b := range f.Blocks {
		v.block(b)
	}
	return errors.Join(v.errs...)
}

type verifier struct {
	fn    *Function
	owned map[*Block]bool
	errs  []error
}

func (v *verifier) fail(b *Block, format string, args ...any) {
	name := ""
	if b != nil {
		name = b.name
	}
	v.errs = append(v.errs, &VerifyError{Function: v.fn.name, Block: name, Message: fmt.Sprintf(format, args...)})
}

func (v *verifier) block(b *Block) {
	if b.Terminator() == nil {
		v.fail(b, "block does not end in a terminator")
	}
	seenNonPhi := false
	preds := b.Preds()
	for i, in := range b.Instrs {
		if in.block != b {
			v.fail(b, "instruction %q has a stale parent", FormatInstr(in))
		}
		if in.Op.IsTerminator() && i != len(b.Instrs)-1 {
			v.fail(b, "terminator %q in the middle of the block", FormatInstr(in))
		}
		if in.Op == OpPhi {
			if seenNonPhi {
				v.fail(b, "phi %s after a non-phi instruction", in.Ident())
			}
			v.phi(b, in, preds)
		} else {
			seenNonPhi = true
		}
		for _, t := range in.Targets {
			if !v.owned[t] {
				v.fail(b, "branch to a block outside the function")
			}
		}
		v.scope(b, in)
		v.operands(b, in)
	}
}

// scope reports operands defined in another function.
func (v *verifier) scope(b *Block, in *Instr) {
	vals := in.Operands
	for _, inc := range in.Incoming {
		vals = append(vals[:len(vals):len(vals)], inc.Value)
	}
	for _, op := range vals {
		var owner *Function
		switch op := op.(type) {
		case *Param:
			owner = op.fn
		case *Instr:
			if op.block != nil {
				owner = op.block.fn
			}
		}
		if owner != nil && owner != v.fn {
			v.fail(b, "%q uses %s from @%s", FormatInstr(in), op.Ident(), owner.name)
		}
	}
}

func (v *verifier) phi(b *Block, in *Instr, preds []*Block) {
	want := make(map[*Block]bool, len(preds))
	for _, p := range preds {
		want[p] = true
	}
	got := make(map[*Block]bool, len(in.Incoming))
	for _, inc := range in.Incoming {
		if !want[inc.Block] {
			v.fail(b, "phi %s has an incoming value from non-predecessor %s", in.Ident(), inc.Block.name)
		}
		if !inc.Value.Type().Equal(in.typ) {
			v.fail(b, "phi %s incoming type %s, want %s", in.Ident(), inc.Value.Type(), in.typ)
		}
		got[inc.Block] = true
	}
	for p := range want {
		if !got[p] {
			v.fail(b, "phi %s lacks an incoming value from %s", in.Ident(), p.name)
		}
	}
}

func (v *verifier) operands(b *Block, in *Instr) {
	switch in.Op {
	case OpLoad:
		v.expectType(b, in, in.Operands[0], Ptr)
	case OpStore:
		v.expectType(b, in, in.Operands[1], Ptr)
	case OpAdd, OpSub, OpMul, OpICmp:
		lhs, rhs := in.Operands[0].Type(), in.Operands[1].Type()
		if !lhs.IsInt() || !lhs.Equal(rhs) {
			v.fail(b, "%q: operand types %s and %s", FormatInstr(in), lhs, rhs)
		}
	case OpTrunc:
		if src := in.Operands[0].Type(); !src.IsInt() || src.Bits <= in.typ.Bits {
			v.fail(b, "%q: cannot truncate %s to %s", FormatInstr(in), src, in.typ)
		}
	case OpZExt:
		if src := in.Operands[0].Type(); !src.IsInt() || src.Bits >= in.typ.Bits {
			v.fail(b, "%q: cannot extend %s to %s", FormatInstr(in), src, in.typ)
		}
	case OpGEP:
		v.expectType(b, in, in.Operands[0], Ptr)
	case OpCondBr:
		v.expectType(b, in, in.Operands[0], I1)
		if len(in.Targets) != 2 {
			v.fail(b, "conditional branch needs two targets")
		}
	case OpBr:
		if len(in.Targets) != 1 {
			v.fail(b, "branch needs one target")
		}
	case OpRet:
		ret := v.fn.Sig.Ret
		switch {
		case ret.IsVoid() && len(in.Operands) != 0:
			v.fail(b, "void function returns a value")
		case !ret.IsVoid() && (len(in.Operands) != 1 || !in.Operands[0].Type().Equal(ret)):
			v.fail(b, "return type mismatch, want %s", ret)
		}
	case OpCall:
		v.call(b, in)
	}
}

func (v *verifier) call(b *Block, in *Instr) {
	callee := in.Callee()
	if callee == nil {
		v.fail(b, "call without a direct callee")
		return
	}
	args := in.Args()
	params := callee.Sig.Params
	if len(args) != len(params) {
		v.fail(b, "call @%s with %d arguments, want %d", callee.name, len(args), len(params))
		return
	}
	for i, a := range args {
		if !a.Type().Equal(params[i]) {
			v.fail(b, "call @%s argument %d has type %s, want %s", callee.name, i, a.Type(), params[i])
		}
	}
}

func (v *verifier) expectType(b *Block, in *Instr, op Value, want *Type) {
	if !op.Type().Equal(want) {
		v.fail(b, "%q: operand %s has type %s, want %s", FormatInstr(in), op.Ident(), op.Type(), want)
	}
}
