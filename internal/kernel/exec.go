package kernel

import (
	"context"
	"fmt"

	"github.com/roach88/parloop/internal/gompsim"
	"github.com/roach88/parloop/internal/interp"
	"github.com/roach88/parloop/internal/ir"
)

// Execute runs host on a fresh machine with rt installed. Every array of
// spec is allocated zeroed and passed in declaration order; the returned map
// holds their final contents. A failed call aborts any region it left open,
// so rt can be reused.
func Execute(ctx context.Context, m *ir.Module, rt gompsim.Runtime, spec *Spec, host *ir.Function) (map[string][]int64, error) {
	mach := interp.NewMachine(m)
	rt.Install(mach)

	mem := mach.Memory()
	args := make([]int64, len(spec.Arrays))
	for i, a := range spec.Arrays {
		args[i] = mem.Alloc(8 * a.Length)
	}
	if _, err := mach.Call(ctx, host, args...); err != nil {
		rt.Abort()
		return nil, fmt.Errorf("execute %s: %w", spec.Name, err)
	}

	out := make(map[string][]int64, len(spec.Arrays))
	for i, a := range spec.Arrays {
		vals, err := mem.ReadInt64s(args[i], int(a.Length))
		if err != nil {
			return nil, fmt.Errorf("execute %s: read %s: %w", spec.Name, a.Name, err)
		}
		out[a.Name] = vals
	}
	return out, nil
}

// Reference returns the arrays produced by running spec sequentially on
// zeroed inputs.
func (s *Spec) Reference() map[string][]int64 {
	arrays := make(map[string][]int64, len(s.Arrays))
	for _, a := range s.Arrays {
		arrays[a.Name] = make([]int64, a.Length)
	}
	s.Evaluate(arrays)
	return arrays
}
