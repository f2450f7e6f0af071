// Package interp executes functions of an ir.Module.
//
// All integers are held in int64, normalized to their type's width (i1 as
// 0 or 1, wider types sign-extended). Pointers are int64 handles into the
// machine's Memory. Calls to declared functions are resolved by name to
// Extern callbacks.
//
// A Machine may run several Threads concurrently; each Thread has its own
// frame stack and shares the machine's memory.
package interp

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/parloop/internal/ir"
)

// Extern implements a declared function. args are normalized to the
// parameter types; the result is ignored for void functions.
type Extern func(t *Thread, args []int64) (int64, error)

// ExecError locates a failure inside executing code.
type ExecError struct {
	Function string
	Block    string
	Instr    string
	Err      error
}

func (e *ExecError) Error() string {
	if e.Instr != "" {
		return fmt.Sprintf("exec @%s, block %s, %q: %v", e.Function, e.Block, e.Instr, e.Err)
	}
	return fmt.Sprintf("exec @%s: %v", e.Function, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Machine executes the functions of one module.
type Machine struct {
	mod *ir.Module
	mem *Memory

	mu      sync.RWMutex
	externs map[string]Extern
	funcs   []*ir.Function
	funcIdx map[*ir.Function]int64

	// MaxSteps bounds the instructions one Thread.Call may execute; zero
	// means no bound.
	MaxSteps int64
}

// NewMachine returns a machine for mod with empty memory.
func NewMachine(mod *ir.Module) *Machine {
	m := &Machine{
		mod:     mod,
		mem:     newMemory(),
		externs: make(map[string]Extern),
		funcIdx: make(map[*ir.Function]int64),
	}
	for _, f := range mod.Functions() {
		m.funcIdx[f] = int64(len(m.funcs))
		m.funcs = append(m.funcs, f)
	}
	return m
}

// Module returns the executed module.
func (m *Machine) Module() *ir.Module { return m.mod }

// Memory returns the machine's memory.
func (m *Machine) Memory() *Memory { return m.mem }

// Bind implements the declared function name with fn, replacing any earlier
// binding.
func (m *Machine) Bind(name string, fn Extern) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.externs[name] = fn
}

func (m *Machine) extern(name string) (Extern, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn, ok := m.externs[name]
	return fn, ok
}

// FuncPtr returns the pointer value standing for f.
func (m *Machine) FuncPtr(f *ir.Function) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.funcIdx[f]
	if !ok {
		return 0, fmt.Errorf("function @%s is not part of the module", f.Name())
	}
	return funcTag | idx, nil
}

// FuncAt resolves a function pointer.
func (m *Machine) FuncAt(ptr int64) (*ir.Function, error) {
	if ptr&funcTag == 0 {
		return nil, fmt.Errorf("%#x is not a function pointer", ptr)
	}
	idx := ptr &^ funcTag
	m.mu.RLock()
	defer m.mu.RUnlock()
	if idx < 0 || idx >= int64(len(m.funcs)) {
		return nil, fmt.Errorf("function pointer %#x out of range", ptr)
	}
	return m.funcs[idx], nil
}

// NewThread returns a thread of execution. ctx cancels the thread between
// blocks.
func (m *Machine) NewThread(ctx context.Context) *Thread {
	return &Thread{m: m, ctx: ctx}
}

// Call runs f on a fresh thread.
func (m *Machine) Call(ctx context.Context, f *ir.Function, args ...int64) (int64, error) {
	return m.NewThread(ctx).Call(f, args...)
}

// normalize truncates v to bits and re-extends it: zero-extended for i1,
// sign-extended otherwise.
func normalize(v int64, bits int) int64 {
	switch {
	case bits == 1:
		return v & 1
	case bits >= 64 || bits <= 0:
		return v
	}
	shift := 64 - bits
	return v << shift >> shift
}

func zext(v int64, bits int) int64 {
	if bits >= 64 {
		return v
	}
	return v & (int64(1)<<bits - 1)
}

func width(t *ir.Type) int {
	if t.IsInt() {
		return t.Bits
	}
	return 64
}
