package ir

import (
	"errors"
	"fmt"
	"slices"
)

// ErrDuplicateFunction is returned when a module already has a function of
// the requested name.
var ErrDuplicateFunction = errors.New("duplicate function")

// Module is a unit of compilation: an ordered list of functions.
type Module struct {
	Name string

	funcs  []*Function
	byName map[string]*Function
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{Name: name, byName: make(map[string]*Function)}
}

// Function returns the function with the given name, or nil.
func (m *Module) Function(name string) *Function {
	return m.byName[canonicalName(name)]
}

// Functions returns the module's functions in creation order.
func (m *Module) Functions() []*Function {
	return m.funcs
}

// NewFunction adds a function with signature sig. Parameters are created
// from the signature and named arg, arg1, ...
func (m *Module) NewFunction(name string, sig *Type, linkage Linkage) (*Function, error) {
	if sig == nil || sig.Kind != FuncKind {
		return nil, fmt.Errorf("new function %q: signature must be a function type, got %s", name, sig)
	}
	name = canonicalName(name)
	if name == "" {
		return nil, fmt.Errorf("new function: empty name")
	}
	if _, exists := m.byName[name]; exists {
		return nil, fmt.Errorf("new function %q: %w", name, ErrDuplicateFunction)
	}

	f := &Function{Sig: sig, Linkage: linkage, name: name, module: m}
	for i, pt := range sig.Params {
		p := &Param{typ: pt, fn: f, Index: i}
		p.SetName("arg")
		f.Params = append(f.Params, p)
	}

	m.funcs = append(m.funcs, f)
	m.byName[name] = f
	return f, nil
}

// RemoveFunction deletes f from the module. Calls to f elsewhere in the
// module are not rewritten.
func (m *Module) RemoveFunction(f *Function) {
	if m.byName[f.name] != f {
		return
	}
	delete(m.byName, f.name)
	m.funcs = slices.DeleteFunc(m.funcs, func(g *Function) bool { return g == f })
}
