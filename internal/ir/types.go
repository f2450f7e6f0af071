package ir

import (
	"fmt"
	"strings"
)

// TypeKind classifies a Type.
type TypeKind int

const (
	VoidKind TypeKind = iota
	IntKind
	PtrKind
	StructKind
	FuncKind
)

// Type describes the type of an IR value.
//
// Types are compared structurally with Equal. The predefined instances
// (Void, I1, I8, I32, I64, Ptr) may also be compared by pointer.
type Type struct {
	Kind   TypeKind
	Bits   int     // IntKind only
	Fields []*Type // StructKind only
	Ret    *Type   // FuncKind only
	Params []*Type // FuncKind only
}

// Predefined types.
var (
	Void = &Type{Kind: VoidKind}
	I1   = &Type{Kind: IntKind, Bits: 1}
	I8   = &Type{Kind: IntKind, Bits: 8}
	I32  = &Type{Kind: IntKind, Bits: 32}
	I64  = &Type{Kind: IntKind, Bits: 64}
	Ptr  = &Type{Kind: PtrKind}
)

// AddrType is the address-width integer used for loop bounds and strides.
var AddrType = I64

// IntType returns the integer type with the given width.
func IntType(bits int) *Type {
	switch bits {
	case 1:
		return I1
	case 8:
		return I8
	case 32:
		return I32
	case 64:
		return I64
	}
	return &Type{Kind: IntKind, Bits: bits}
}

// FuncType returns a function type.
func FuncType(ret *Type, params ...*Type) *Type {
	return &Type{Kind: FuncKind, Ret: ret, Params: params}
}

// StructType returns a literal struct type with the given fields.
func StructType(fields ...*Type) *Type {
	return &Type{Kind: StructKind, Fields: fields}
}

// IsInt reports whether t is an integer type.
func (t *Type) IsInt() bool { return t != nil && t.Kind == IntKind }

// IsVoid reports whether t is the void type.
func (t *Type) IsVoid() bool { return t == nil || t.Kind == VoidKind }

// Equal reports structural type equality.
func (t *Type) Equal(u *Type) bool {
	if t == u {
		return true
	}
	if t == nil || u == nil || t.Kind != u.Kind {
		return false
	}
	switch t.Kind {
	case IntKind:
		return t.Bits == u.Bits
	case StructKind:
		return equalTypes(t.Fields, u.Fields)
	case FuncKind:
		return t.Ret.Equal(u.Ret) && equalTypes(t.Params, u.Params)
	}
	return true
}

func equalTypes(a, b []*Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// String renders the type in LLVM syntax.
func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	switch t.Kind {
	case VoidKind:
		return "void"
	case IntKind:
		return fmt.Sprintf("i%d", t.Bits)
	case PtrKind:
		return "ptr"
	case StructKind:
		if len(t.Fields) == 0 {
			return "{}"
		}
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.String()
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	case FuncKind:
		parts := make([]string, len(t.Params))
		for i, p := range t.Params {
			parts[i] = p.String()
		}
		return fmt.Sprintf("%s (%s)", t.Ret, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("<kind %d>", t.Kind)
}

// Size returns the store size of t in bytes.
// Struct fields are laid out with natural alignment.
func (t *Type) Size() int64 {
	switch t.Kind {
	case IntKind:
		return int64((t.Bits + 7) / 8)
	case PtrKind:
		return 8
	case StructKind:
		var off int64
		for _, f := range t.Fields {
			off = alignTo(off, f.Align()) + f.Size()
		}
		return alignTo(off, t.Align())
	}
	return 0
}

// Align returns the ABI alignment of t in bytes.
func (t *Type) Align() int64 {
	switch t.Kind {
	case IntKind, PtrKind:
		if s := t.Size(); s > 0 {
			return s
		}
		return 1
	case StructKind:
		var a int64 = 1
		for _, f := range t.Fields {
			a = max(a, f.Align())
		}
		return a
	}
	return 1
}

// FieldOffset returns the byte offset of field i of a struct type.
func (t *Type) FieldOffset(i int) int64 {
	var off int64
	for j, f := range t.Fields {
		off = alignTo(off, f.Align())
		if j == i {
			return off
		}
		off += f.Size()
	}
	return off
}

func alignTo(off, align int64) int64 {
	if align <= 1 {
		return off
	}
	return (off + align - 1) / align * align
}
