package gomp

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/parloop/internal/ir"
)

// ErrSignatureConflict is returned when a symbol is requested with a
// signature that differs from an existing function of the same name.
var ErrSignatureConflict = errors.New("extern signature conflict")

type registryKey struct {
	name string
	sig  string
}

// Registry declares external functions in one module at most once. It is
// owned by the code generation context of that module.
//
// Registry is safe for concurrent use, but the module it writes to is not;
// callers generating several loops of one module concurrently must still
// serialize their other module mutations.
type Registry struct {
	mod *ir.Module

	mu    sync.Mutex
	decls map[registryKey]*ir.Function
}

// NewRegistry returns a registry declaring into mod.
func NewRegistry(mod *ir.Module) *Registry {
	return &Registry{mod: mod, decls: make(map[registryKey]*ir.Function)}
}

// Module returns the module the registry declares into.
func (r *Registry) Module() *ir.Module { return r.mod }

// Declare returns the function name with signature sig, declaring it as an
// external function on first use. A function already in the module with the
// same name and signature is reused.
func (r *Registry) Declare(name string, sig *ir.Type) (*ir.Function, error) {
	key := registryKey{name: name, sig: sig.String()}

	r.mu.Lock()
	defer r.mu.Unlock()

	if fn, ok := r.decls[key]; ok {
		return fn, nil
	}

	if existing := r.mod.Function(name); existing != nil {
		if !existing.Sig.Equal(sig) {
			return nil, fmt.Errorf("declare @%s as %s: module has %s: %w",
				name, sig, existing.Sig, ErrSignatureConflict)
		}
		r.decls[key] = existing
		return existing, nil
	}

	fn, err := r.mod.NewFunction(name, sig, ir.ExternalLinkage)
	if err != nil {
		return nil, fmt.Errorf("declare @%s: %w", name, err)
	}
	r.decls[key] = fn
	return fn, nil
}

// Len returns the number of distinct declarations handed out.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.decls)
}
