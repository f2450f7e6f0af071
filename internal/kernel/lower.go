package kernel

import (
	"errors"
	"fmt"

	"github.com/roach88/parloop/internal/capture"
	"github.com/roach88/parloop/internal/gompsim"
	"github.com/roach88/parloop/internal/ir"
	"github.com/roach88/parloop/internal/parallel"
)

// ErrInvalid is returned by Lower for a kernel that fails validation.
var ErrInvalid = errors.New("invalid kernel")

// Lower adds the host function of spec to the generator's module:
//
//	define void @<function>(ptr %<array>, ...)
//
// Its body runs the kernel's loop in parallel; every array is an i64 array
// passed by pointer.
func Lower(spec *Spec, gen *parallel.Generator) (*ir.Function, error) {
	if errs := Validate(spec); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return nil, fmt.Errorf("lower %s: %w: %w", spec.Name, ErrInvalid, errors.Join(joined...))
	}

	params := make([]*ir.Type, len(spec.Arrays))
	for i := range params {
		params[i] = ir.Ptr
	}
	mod := gen.Module()
	host, err := mod.NewFunction(spec.Function, ir.FuncType(ir.Void, params...), ir.ExternalLinkage)
	if err != nil {
		return nil, fmt.Errorf("lower %s: %w", spec.Name, err)
	}
	arrays := make(map[string]ir.Value, len(spec.Arrays))
	for i, a := range spec.Arrays {
		host.Params[i].SetName(a.Name)
		arrays[a.Name] = host.Params[i]
	}

	b := ir.NewBuilder()
	b.SetInsertPoint(host.NewBlock("entry"))
	ret := b.CreateRetVoid()
	b.SetInsertPointBefore(ret)

	// Only arrays the body touches are captured, in declaration order.
	used := make(map[string]bool)
	for _, o := range spec.Body {
		for _, name := range o.operands() {
			used[name] = true
		}
	}
	captured := capture.NewSet()
	for _, a := range spec.Arrays {
		if used[a.Name] {
			captured.Add(arrays[a.Name])
		}
	}

	iv, region, err := gen.CreateParallelLoop(b,
		ir.ConstInt(ir.I64, spec.LB),
		ir.ConstInt(ir.I64, spec.UB),
		ir.ConstInt(ir.I64, spec.Stride),
		captured)
	if err != nil {
		mod.RemoveFunction(host)
		return nil, fmt.Errorf("lower %s: %w", spec.Name, err)
	}

	if spec.Trace {
		trace, err := gen.Registry().Declare(gompsim.TraceName, ir.FuncType(ir.Void, ir.I64))
		if err != nil {
			region.Discard()
			mod.RemoveFunction(host)
			return nil, fmt.Errorf("lower %s: %w", spec.Name, err)
		}
		b.CreateCall(trace, []ir.Value{iv}, "")
	}

	e := &bodyEmitter{b: b, iv: iv, vmap: region.ValueMap, arrays: arrays}
	for _, o := range spec.Body {
		e.op(o)
	}

	if _, err := region.Finish(); err != nil {
		region.Discard()
		mod.RemoveFunction(host)
		return nil, fmt.Errorf("lower %s: %w", spec.Name, err)
	}
	return host, nil
}

// bodyEmitter emits element operations into a worker's loop body.
type bodyEmitter struct {
	b      *ir.Builder
	iv     ir.Value
	vmap   ir.ValueMap
	arrays map[string]ir.Value
}

func (e *bodyEmitter) addr(array string) ir.Value {
	// Validation guarantees the array is declared and captured.
	base, _ := e.vmap.Lookup(e.arrays[array])
	return e.b.CreateGEP(ir.I64, base, []ir.Value{e.iv}, array+".addr")
}

func (e *bodyEmitter) load(array string) ir.Value {
	return e.b.CreateLoad(ir.I64, e.addr(array), array+".val")
}

// affine returns factor*v + offset, folding the identity parts.
func (e *bodyEmitter) affine(v ir.Value, factor, offset int64, name string) ir.Value {
	if factor != 1 {
		v = e.b.CreateMul(v, ir.ConstInt(ir.I64, factor), name+".mul")
	}
	if offset != 0 {
		v = e.b.CreateAdd(v, ir.ConstInt(ir.I64, offset), name+".add")
	}
	return v
}

func (e *bodyEmitter) op(o Op) {
	var v ir.Value
	switch o.Op {
	case OpFill:
		v = e.affine(e.iv, o.Factor, o.Offset, o.Dst)
	case OpAdd:
		v = e.b.CreateAdd(e.load(o.Src), e.load(o.Rhs), o.Dst+".sum")
	case OpScale:
		v = e.affine(e.load(o.Src), o.Factor, o.Offset, o.Dst)
	}
	e.b.CreateStore(v, e.addr(o.Dst))
}
