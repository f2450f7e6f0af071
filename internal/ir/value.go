package ir

import "strconv"

// Value is anything that can appear as an instruction operand.
type Value interface {
	Type() *Type
	// Ident renders the value as an operand: "%name", "@fn" or a literal.
	Ident() string
}

// Const is an integer constant.
type Const struct {
	typ *Type
	Val int64
}

// ConstInt returns an integer constant of type t.
func ConstInt(t *Type, v int64) *Const {
	return &Const{typ: t, Val: v}
}

// True and False are the i1 constants.
var (
	True  = ConstInt(I1, 1)
	False = ConstInt(I1, 0)
)

func (c *Const) Type() *Type { return c.typ }

func (c *Const) Ident() string {
	if c.typ.Kind == IntKind && c.typ.Bits == 1 {
		if c.Val != 0 {
			return "true"
		}
		return "false"
	}
	return strconv.FormatInt(c.Val, 10)
}

// Param is a formal parameter of a function.
type Param struct {
	name  string
	typ   *Type
	fn    *Function
	Index int
}

func (p *Param) Type() *Type        { return p.typ }
func (p *Param) Ident() string      { return "%" + p.name }
func (p *Param) Name() string       { return p.name }
func (p *Param) Parent() *Function { return p.fn }

// SetName renames the parameter, uniqued within its function.
func (p *Param) SetName(name string) {
	p.name = p.fn.uniqueName(name)
}

// ValueMap maps values of an outer function to the values that stand for
// them inside a generated function.
type ValueMap map[Value]Value

// Lookup returns the value standing for v. Constants and functions are
// visible everywhere and map to themselves.
func (m ValueMap) Lookup(v Value) (Value, bool) {
	if mapped, ok := m[v]; ok {
		return mapped, true
	}
	switch v.(type) {
	case *Const, *Function:
		return v, true
	}
	return nil, false
}
