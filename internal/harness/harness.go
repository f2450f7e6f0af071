package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/parloop/internal/gompsim"
	"github.com/roach88/parloop/internal/kernel"
	"github.com/roach88/parloop/internal/store"
	"github.com/roach88/parloop/internal/testutil"
)

// Harness holds the deterministic helpers of one scenario run.
type Harness struct {
	store  *store.Store
	clock  *testutil.DeterministicClock
	ids    *testutil.SequentialIDGenerator
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory store. Execution flow:
//  1. Load and compile the kernel
//  2. Lower it into a module with the scenario's options
//  3. Record the generation
//  4. Execute it under the scenario's runtime
//  5. Evaluate the assertions
//
// Errors are returned for scenarios that cannot run; failed assertions are
// reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		clock:  testutil.NewDeterministicClock(),
		ids:    testutil.NewSequentialIDGenerator(scenario.IDPrefix),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}
	return h.run(context.Background(), scenario)
}

func (h *Harness) run(ctx context.Context, scenario *Scenario) (*Result, error) {
	spec, err := loadKernel(scenario)
	if err != nil {
		return nil, err
	}
	if err := validateTraced(scenario, spec); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	out, err := kernel.Build(scenario.Name, []*kernel.Spec{spec}, kernel.BuildOptions{
		Config: scenario.Config,
		Logger: h.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	lowered := out.Kernels[0]

	gen, err := h.store.RecordGeneration(ctx, out.Generation(lowered, h.ids.Generate(), h.clock.Next()))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	result := NewResult()
	result.Generation = gen

	rt := newRuntime(scenario)
	arrays, err := kernel.Execute(ctx, out.Module, rt, spec, lowered.Host)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	result.Arrays = arrays

	switch rt := rt.(type) {
	case *gompsim.Scripted:
		for _, e := range rt.Events() {
			result.Trace = append(result.Trace, e.String())
		}
		result.Iterations = append(result.Iterations, rt.Iterations()...)
	case *gompsim.Team:
		result.Iterations = append(result.Iterations, rt.Iterations()...)
	}

	h.logger.Debug("scenario executed",
		"scenario", scenario.Name,
		"generation", gen.ID,
		"iterations", len(result.Iterations))

	for _, msg := range EvaluateAssertions(result, spec, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// loadKernel compiles the scenario's kernel source and picks its kernel.
func loadKernel(scenario *Scenario) (*kernel.Spec, error) {
	specs, err := kernel.Load(scenario.Kernel)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	if scenario.KernelName == "" {
		if len(specs) != 1 {
			return nil, fmt.Errorf("scenario %s: %s defines %d kernels, set kernel_name", scenario.Name, scenario.Kernel, len(specs))
		}
		return specs[0], nil
	}
	for _, s := range specs {
		if s.Name == scenario.KernelName {
			return s, nil
		}
	}
	return nil, fmt.Errorf("scenario %s: kernel %q not found in %s", scenario.Name, scenario.KernelName, scenario.Kernel)
}

func newRuntime(scenario *Scenario) gompsim.Runtime {
	switch {
	case len(scenario.Chunks) > 0:
		return gompsim.NewScripted(scenario.Chunks...)
	case scenario.Team != nil:
		return gompsim.NewTeam(scenario.Team.Threads, scenario.Team.Chunk)
	}
	return gompsim.NewTeam(1, 0)
}
