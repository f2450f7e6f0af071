package ir

import (
	"fmt"
	"io"
	"strings"
)

// String renders the module in LLVM textual syntax.
func (m *Module) String() string {
	var sb strings.Builder
	_ = m.Print(&sb)
	return sb.String()
}

// Print writes the module in LLVM textual syntax. Declarations come first,
// then definitions, each in creation order.
func (m *Module) Print(w io.Writer) error {
	p := &printer{w: w}
	p.printf("; ModuleID = '%s'\n", m.Name)

	var decls, defs []*Function
	for _, f := range m.funcs {
		if f.IsDeclaration() {
			decls = append(decls, f)
		} else {
			defs = append(defs, f)
		}
	}
	if len(decls) > 0 {
		p.printf("\n")
	}
	for _, f := range decls {
		p.declaration(f)
	}
	for _, f := range defs {
		p.printf("\n")
		p.definition(f)
	}
	return p.err
}

// Format renders a single function.
func (f *Function) Format() string {
	var sb strings.Builder
	p := &printer{w: &sb}
	if f.IsDeclaration() {
		p.declaration(f)
	} else {
		p.definition(f)
	}
	return sb.String()
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) declaration(f *Function) {
	params := make([]string, len(f.Sig.Params))
	for i, t := range f.Sig.Params {
		params[i] = t.String()
	}
	p.printf("declare %s @%s(%s)\n", f.Sig.Ret, f.name, strings.Join(params, ", "))
}

func (p *printer) definition(f *Function) {
	params := make([]string, len(f.Params))
	for i, prm := range f.Params {
		params[i] = prm.typ.String() + " " + prm.Ident()
	}
	linkage := ""
	if f.Linkage == InternalLinkage {
		linkage = "internal "
	}
	p.printf("define %s%s @%s(%s) {\n", linkage, f.Sig.Ret, f.name, strings.Join(params, ", "))
	for i, b := range f.Blocks {
		if i > 0 {
			p.printf("\n")
		}
		p.printf("%s:\n", b.name)
		for _, in := range b.Instrs {
			p.printf("  %s\n", FormatInstr(in))
		}
	}
	p.printf("}\n")
}

func typed(v Value) string {
	return v.Type().String() + " " + v.Ident()
}

// FormatInstr renders one instruction without indentation.
func FormatInstr(in *Instr) string {
	lhs := ""
	if in.HasResult() {
		lhs = in.Ident() + " = "
	}
	switch in.Op {
	case OpAlloca:
		return fmt.Sprintf("%salloca %s, align %d", lhs, in.Elem, in.Elem.Align())
	case OpLoad:
		return fmt.Sprintf("%sload %s, %s, align %d", lhs, in.typ, typed(in.Operands[0]), in.typ.Align())
	case OpStore:
		v := in.Operands[0]
		return fmt.Sprintf("store %s, %s, align %d", typed(v), typed(in.Operands[1]), v.Type().Align())
	case OpAdd, OpSub, OpMul:
		return fmt.Sprintf("%s%s %s, %s", lhs, in.Op, typed(in.Operands[0]), in.Operands[1].Ident())
	case OpICmp:
		return fmt.Sprintf("%sicmp %s %s, %s", lhs, in.Pred, typed(in.Operands[0]), in.Operands[1].Ident())
	case OpTrunc, OpZExt:
		return fmt.Sprintf("%s%s %s to %s", lhs, in.Op, typed(in.Operands[0]), in.typ)
	case OpGEP:
		parts := []string{in.Elem.String(), typed(in.Operands[0])}
		for _, idx := range in.Operands[1:] {
			parts = append(parts, typed(idx))
		}
		return fmt.Sprintf("%sgetelementptr inbounds %s", lhs, strings.Join(parts, ", "))
	case OpPhi:
		incs := make([]string, len(in.Incoming))
		for i, inc := range in.Incoming {
			incs[i] = fmt.Sprintf("[ %s, %s ]", inc.Value.Ident(), inc.Block.Ident())
		}
		return fmt.Sprintf("%sphi %s %s", lhs, in.typ, strings.Join(incs, ", "))
	case OpCall:
		args := make([]string, 0, len(in.Operands)-1)
		for _, a := range in.Args() {
			args = append(args, typed(a))
		}
		return fmt.Sprintf("%scall %s %s(%s)", lhs, in.typ, in.Operands[0].Ident(), strings.Join(args, ", "))
	case OpBr:
		return "br label " + in.Targets[0].Ident()
	case OpCondBr:
		return fmt.Sprintf("br %s, label %s, label %s", typed(in.Operands[0]), in.Targets[0].Ident(), in.Targets[1].Ident())
	case OpRet:
		if len(in.Operands) == 0 {
			return "ret void"
		}
		return "ret " + typed(in.Operands[0])
	}
	return fmt.Sprintf("<%s>", in.Op)
}
