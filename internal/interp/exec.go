package interp

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/parloop/internal/ir"
)

// ErrStepLimit is returned when a call exceeds Machine.MaxSteps.
var ErrStepLimit = errors.New("step limit exceeded")

// Thread is one flow of control. It is not safe for concurrent use.
type Thread struct {
	m     *Machine
	ctx   context.Context
	steps int64
	depth int
}

// Machine returns the machine the thread runs on.
func (t *Thread) Machine() *Machine { return t.m }

// Context returns the thread's context.
func (t *Thread) Context() context.Context { return t.ctx }

type frame struct {
	fn      *ir.Function
	values  map[ir.Value]int64
	allocas []int64
}

// Call executes f with args and returns its result (zero for void).
func (t *Thread) Call(f *ir.Function, args ...int64) (int64, error) {
	if len(args) != len(f.Params) {
		return 0, &ExecError{Function: f.Name(),
			Err: fmt.Errorf("called with %d arguments, want %d", len(args), len(f.Params))}
	}
	if f.IsDeclaration() {
		return t.callExtern(f, args)
	}

	const maxDepth = 1 << 12
	if t.depth >= maxDepth {
		return 0, &ExecError{Function: f.Name(), Err: fmt.Errorf("call depth exceeds %d", maxDepth)}
	}
	t.depth++
	defer func() { t.depth-- }()

	fr := &frame{fn: f, values: make(map[ir.Value]int64)}
	for i, p := range f.Params {
		fr.values[p] = normalize(args[i], width(p.Type()))
	}
	defer func() {
		for _, p := range fr.allocas {
			t.m.mem.Free(p)
		}
	}()
	return t.run(fr)
}

func (t *Thread) callExtern(f *ir.Function, args []int64) (int64, error) {
	ext, ok := t.m.extern(f.Name())
	if !ok {
		return 0, &ExecError{Function: f.Name(), Err: fmt.Errorf("unresolved external function")}
	}
	res, err := ext(t, args)
	if err != nil {
		return 0, err
	}
	if f.Sig.Ret.IsVoid() {
		return 0, nil
	}
	return normalize(res, width(f.Sig.Ret)), nil
}

func (t *Thread) run(fr *frame) (int64, error) {
	var prev *ir.Block
	blk := fr.fn.Entry()
	for {
		if err := t.ctx.Err(); err != nil {
			return 0, &ExecError{Function: fr.fn.Name(), Block: blk.Name(), Err: err}
		}
		if err := t.enter(fr, blk, prev); err != nil {
			return 0, err
		}

		var next *ir.Block
		for _, in := range blk.Instrs {
			if in.Op == ir.OpPhi {
				continue
			}
			if t.m.MaxSteps > 0 {
				t.steps++
				if t.steps > t.m.MaxSteps {
					return 0, t.fail(fr, blk, in, ErrStepLimit)
				}
			}
			switch in.Op {
			case ir.OpBr:
				next = in.Targets[0]
			case ir.OpCondBr:
				c, err := t.eval(fr, in.Operands[0])
				if err != nil {
					return 0, t.fail(fr, blk, in, err)
				}
				next = in.Targets[1]
				if c != 0 {
					next = in.Targets[0]
				}
			case ir.OpRet:
				if len(in.Operands) == 0 {
					return 0, nil
				}
				v, err := t.eval(fr, in.Operands[0])
				if err != nil {
					return 0, t.fail(fr, blk, in, err)
				}
				return v, nil
			default:
				if err := t.step(fr, in); err != nil {
					var ee *ExecError
					if errors.As(err, &ee) {
						return 0, err
					}
					return 0, t.fail(fr, blk, in, err)
				}
			}
		}
		if next == nil {
			return 0, t.fail(fr, blk, nil, fmt.Errorf("block has no terminator"))
		}
		prev, blk = blk, next
	}
}

// enter evaluates the phis of blk for the edge from prev, all reading the
// values from before the edge.
func (t *Thread) enter(fr *frame, blk, prev *ir.Block) error {
	phis := blk.Phis()
	if len(phis) == 0 {
		return nil
	}
	if prev == nil {
		return t.fail(fr, blk, phis[0], fmt.Errorf("phi in the entry block"))
	}
	vals := make([]int64, len(phis))
	for i, phi := range phis {
		inc, ok := phi.IncomingFor(prev)
		if !ok {
			return t.fail(fr, blk, phi, fmt.Errorf("no incoming value from %s", prev.Name()))
		}
		v, err := t.eval(fr, inc)
		if err != nil {
			return t.fail(fr, blk, phi, err)
		}
		vals[i] = v
	}
	for i, phi := range phis {
		fr.values[phi] = vals[i]
	}
	return nil
}

func (t *Thread) fail(fr *frame, blk *ir.Block, in *ir.Instr, err error) error {
	e := &ExecError{Function: fr.fn.Name(), Block: blk.Name(), Err: err}
	if in != nil {
		e.Instr = ir.FormatInstr(in)
	}
	return e
}

func (t *Thread) eval(fr *frame, v ir.Value) (int64, error) {
	switch v := v.(type) {
	case *ir.Const:
		return normalize(v.Val, width(v.Type())), nil
	case *ir.Function:
		return t.m.FuncPtr(v)
	}
	val, ok := fr.values[v]
	if !ok {
		return 0, fmt.Errorf("use of %s before its definition", v.Ident())
	}
	return val, nil
}

func (t *Thread) evalAll(fr *frame, vs []ir.Value) ([]int64, error) {
	out := make([]int64, len(vs))
	for i, v := range vs {
		x, err := t.eval(fr, v)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func (t *Thread) step(fr *frame, in *ir.Instr) error {
	mem := t.m.mem
	ops, err := t.evalAll(fr, in.Operands)
	if err != nil {
		return err
	}
	bits := width(in.Type())

	var res int64
	switch in.Op {
	case ir.OpAlloca:
		p := mem.Alloc(max(in.Elem.Size(), 1))
		fr.allocas = append(fr.allocas, p)
		res = p
	case ir.OpLoad:
		v, err := mem.Load(ops[0], in.Type().Size())
		if err != nil {
			return err
		}
		res = normalize(v, bits)
	case ir.OpStore:
		return mem.Store(ops[1], in.Operands[0].Type().Size(), ops[0])
	case ir.OpAdd:
		res = normalize(ops[0]+ops[1], bits)
	case ir.OpSub:
		res = normalize(ops[0]-ops[1], bits)
	case ir.OpMul:
		res = normalize(ops[0]*ops[1], bits)
	case ir.OpICmp:
		if in.Pred.Eval(ops[0], ops[1]) {
			res = 1
		}
	case ir.OpTrunc:
		res = normalize(ops[0], bits)
	case ir.OpZExt:
		res = zext(ops[0], width(in.Operands[0].Type()))
	case ir.OpGEP:
		off, err := gepOffset(in.Elem, ops[1:])
		if err != nil {
			return err
		}
		res = ops[0] + off
	case ir.OpCall:
		callee := in.Callee()
		if callee == nil {
			return fmt.Errorf("indirect calls are not supported")
		}
		v, err := t.Call(callee, ops[1:]...)
		if err != nil {
			return err
		}
		res = v
	default:
		return fmt.Errorf("unsupported instruction %s", in.Op)
	}
	if in.HasResult() {
		fr.values[in] = res
	}
	return nil
}

// gepOffset computes the byte offset of elem-typed base[idx0].field...
func gepOffset(elem *ir.Type, idx []int64) (int64, error) {
	if len(idx) == 0 {
		return 0, nil
	}
	off := idx[0] * elem.Size()
	cur := elem
	for _, i := range idx[1:] {
		if cur.Kind != ir.StructKind {
			return 0, fmt.Errorf("getelementptr into non-struct type %s", cur)
		}
		if i < 0 || i >= int64(len(cur.Fields)) {
			return 0, fmt.Errorf("field index %d out of range for %s", i, cur)
		}
		off += cur.FieldOffset(int(i))
		cur = cur.Fields[i]
	}
	return off, nil
}
