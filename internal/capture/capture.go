// Package capture packs outer values into a context struct on the caller's
// stack and unpacks them inside a generated worker.
//
// The context struct is a literal struct with one field per captured value,
// in capture order, laid out with natural alignment.
package capture

import (
	"fmt"
	"slices"

	"github.com/roach88/parloop/internal/ir"
)

// Set is an insertion-ordered set of outer values.
type Set struct {
	values []ir.Value
	index  map[ir.Value]int
}

// NewSet returns a set holding vs in order, without duplicates.
func NewSet(vs ...ir.Value) *Set {
	s := &Set{index: make(map[ir.Value]int)}
	for _, v := range vs {
		s.Add(v)
	}
	return s
}

// Add inserts v and reports whether it was new. Constants and functions are
// visible everywhere and are never captured.
func (s *Set) Add(v ir.Value) bool {
	switch v.(type) {
	case *ir.Const, *ir.Function:
		return false
	}
	if s.index == nil {
		s.index = make(map[ir.Value]int)
	}
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = len(s.values)
	s.values = append(s.values, v)
	return true
}

// Contains reports whether v is in the set.
func (s *Set) Contains(v ir.Value) bool {
	_, ok := s.index[v]
	return ok
}

// Values returns the captured values in insertion order.
func (s *Set) Values() []ir.Value { return slices.Clone(s.values) }

// Len returns the number of captured values.
func (s *Set) Len() int { return len(s.values) }

// StructType returns the context struct type for the set.
func (s *Set) StructType() *ir.Type {
	fields := make([]*ir.Type, len(s.values))
	for i, v := range s.values {
		fields[i] = v.Type()
	}
	return ir.StructType(fields...)
}

// Pack allocates the context struct at the builder's insertion point and
// stores every captured value into it. It returns the struct's address and
// type.
func Pack(b *ir.Builder, s *Set) (ir.Value, *ir.Type) {
	st := s.StructType()
	blob := b.CreateAlloca(st, "par.context")
	for i, v := range s.values {
		field := b.CreateStructGEP(st, blob, i, fmt.Sprintf("par.context.%d", i))
		b.CreateStore(v, field)
	}
	return blob, st
}

// Unpack loads every captured value from blob at the builder's insertion
// point and records the loaded value in vmap under the outer value it
// stands for.
func Unpack(b *ir.Builder, s *Set, st *ir.Type, blob ir.Value, vmap ir.ValueMap) error {
	if len(st.Fields) != len(s.values) {
		return fmt.Errorf("unpack: context struct %s has %d fields, %d values captured",
			st, len(st.Fields), len(s.values))
	}
	for i, v := range s.values {
		if !st.Fields[i].Equal(v.Type()) {
			return fmt.Errorf("unpack: field %d has type %s, captured %s is %s",
				i, st.Fields[i], v.Ident(), v.Type())
		}
		field := b.CreateStructGEP(st, blob, i, fmt.Sprintf("par.field.%d", i))
		vmap[v] = b.CreateLoad(v.Type(), field, capturedName(v))
	}
	return nil
}

func capturedName(v ir.Value) string {
	switch v := v.(type) {
	case *ir.Param:
		return v.Name()
	case *ir.Instr:
		return v.Name()
	}
	return "captured"
}
