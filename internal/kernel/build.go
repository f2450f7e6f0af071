package kernel

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/parloop/internal/config"
	"github.com/roach88/parloop/internal/diag"
	"github.com/roach88/parloop/internal/ir"
	"github.com/roach88/parloop/internal/parallel"
	"github.com/roach88/parloop/internal/store"
)

// BuildOptions configures Build.
type BuildOptions struct {
	Config config.Options
	// Logger defaults to discarding everything.
	Logger *slog.Logger
	// Diagnostics receives every warning as it is emitted, in addition to
	// the per-kernel lists in the output. May be nil.
	Diagnostics diag.Sink
}

// Output is a module holding the lowered kernels.
type Output struct {
	Module  *ir.Module
	Config  config.Options
	Kernels []*Lowered
}

// Lowered is one kernel of an Output.
type Lowered struct {
	Spec        *Spec
	Host        *ir.Function
	Workers     []string
	Diagnostics []string
}

// Build lowers specs, in order, into a new module named name. It stops at
// the first kernel that fails.
func Build(name string, specs []*Spec, opts BuildOptions) (*Output, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	rec := &diag.Recorder{}
	var sink diag.Sink = rec
	if opts.Diagnostics != nil {
		sink = diag.Tee{rec, opts.Diagnostics}
	}

	mod := ir.NewModule(name)
	gen := parallel.NewGenerator(mod,
		parallel.WithOptions(opts.Config),
		parallel.WithDiagnostics(sink),
		parallel.WithLogger(logger))

	out := &Output{Module: mod, Config: opts.Config}
	for _, spec := range specs {
		known := make(map[string]bool)
		for _, f := range mod.Functions() {
			known[f.Name()] = true
		}
		warned := rec.Len()

		host, err := Lower(spec, gen)
		if err != nil {
			return nil, err
		}

		l := &Lowered{Spec: spec, Host: host, Workers: []string{}}
		for _, f := range mod.Functions() {
			if !known[f.Name()] && f != host && !f.IsDeclaration() {
				l.Workers = append(l.Workers, f.Name())
			}
		}
		l.Diagnostics = rec.Warnings()[warned:]
		out.Kernels = append(out.Kernels, l)

		logger.Debug("kernel lowered",
			"kernel", spec.Name,
			"function", host.Name(),
			"workers", len(l.Workers),
			"warnings", len(l.Diagnostics))
	}
	return out, nil
}

// Kernel returns the lowered kernel with the given name.
func (o *Output) Kernel(name string) (*Lowered, error) {
	for _, l := range o.Kernels {
		if l.Spec.Name == name {
			return l, nil
		}
	}
	return nil, fmt.Errorf("kernel %q not in module %s", name, o.Module.Name)
}

// Generation describes l as a history record. A zero seq lets the store
// assign one.
func (o *Output) Generation(l *Lowered, id string, seq int64) store.Generation {
	return store.Generation{
		ID:          id,
		Seq:         seq,
		Kernel:      l.Spec.Name,
		Function:    l.Host.Name(),
		Workers:     l.Workers,
		ModuleHash:  ir.ModuleHash(o.Module),
		NumThreads:  o.Config.NumThreads,
		Schedule:    string(o.Config.Schedule),
		Diagnostics: l.Diagnostics,
	}
}
