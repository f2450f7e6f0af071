package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/parloop/internal/config"
	"github.com/roach88/parloop/internal/gompsim"
	"github.com/roach88/parloop/internal/kernel"
)

// Scenario defines one end-to-end kernel run and its expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Kernel is the CUE file or directory of CUE files holding the kernel.
	// LoadScenario resolves it relative to the scenario file.
	Kernel string `yaml:"kernel"`

	// KernelName selects a kernel when the source defines several.
	KernelName string `yaml:"kernel_name,omitempty"`

	// Config is decoded over config.Default().
	Config config.Options `yaml:"config"`

	// Chunks selects the scripted runtime.
	Chunks []gompsim.Chunk `yaml:"chunks,omitempty"`

	// Team selects the concurrent runtime.
	Team *TeamConfig `yaml:"team,omitempty"`

	// Assertions validate the run.
	Assertions []Assertion `yaml:"assertions"`

	// IDPrefix prefixes the generated generation IDs. Defaults to the
	// scenario name.
	IDPrefix string `yaml:"id_prefix,omitempty"`
}

// TeamConfig sizes the goroutine team runtime.
type TeamConfig struct {
	// Threads is the team size when the generated code requests zero.
	Threads int `yaml:"threads"`
	// Chunk is the number of iterations handed out per request.
	Chunk int64 `yaml:"chunk"`
}

// Assertion validates one aspect of a run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Events are the expected runtime events, in order (trace_order).
	// Events need not be consecutive.
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number (iterations, diagnostics, workers).
	Count int `yaml:"count,omitempty"`

	// Array, Index and Value name one expected element (array_value).
	Array string `yaml:"array,omitempty"`
	Index int64  `yaml:"index,omitempty"`
	Value int64  `yaml:"value,omitempty"`

	// Contains is a substring one diagnostic must contain (diagnostics).
	Contains string `yaml:"contains,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceOrder  = "trace_order"
	AssertIterations  = "iterations"
	AssertArrayValue  = "array_value"
	AssertReference   = "reference"
	AssertDiagnostics = "diagnostics"
	AssertWorkers     = "workers"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !filepath.IsAbs(scenario.Kernel) {
		scenario.Kernel = filepath.Join(filepath.Dir(path), scenario.Kernel)
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML. Kernel paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	scenario := Scenario{Config: config.Default()}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if scenario.IDPrefix == "" {
		scenario.IDPrefix = scenario.Name
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Kernel == "" {
		return fmt.Errorf("kernel is required")
	}
	if err := s.Config.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if len(s.Chunks) > 0 && s.Team != nil {
		return fmt.Errorf("chunks and team are mutually exclusive")
	}
	for i, c := range s.Chunks {
		if c.LB > c.UB {
			return fmt.Errorf("chunk %d: lb %d exceeds ub %d", i, c.LB, c.UB)
		}
	}
	if s.Team != nil && (s.Team.Threads < 0 || s.Team.Chunk < 0) {
		return fmt.Errorf("team: threads and chunk must be non-negative")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(s, a); err != nil {
			return fmt.Errorf("assertion %d (%s): %w", i, a.Type, err)
		}
	}
	return nil
}

// validateTraced rejects assertions on traced iterations when the kernel
// never calls the trace hook, where they would only ever see zero.
func validateTraced(s *Scenario, spec *kernel.Spec) error {
	if spec.Trace {
		return nil
	}
	for i, a := range s.Assertions {
		switch a.Type {
		case AssertIterations:
		case AssertTraceOrder:
			if !slices.ContainsFunc(a.Events, func(e string) bool {
				return strings.HasPrefix(e, gompsim.EventIV+" ")
			}) {
				continue
			}
		default:
			continue
		}
		return fmt.Errorf("assertion %d (%s): kernel %s needs trace: true", i, a.Type, spec.Name)
	}
	return nil
}

func validateAssertion(s *Scenario, a Assertion) error {
	switch a.Type {
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("events are required")
		}
		if len(s.Chunks) == 0 {
			return fmt.Errorf("requires a chunks runtime")
		}
	case AssertArrayValue:
		if a.Array == "" {
			return fmt.Errorf("array is required")
		}
		if a.Index < 0 {
			return fmt.Errorf("index must be non-negative")
		}
	case AssertIterations, AssertDiagnostics, AssertWorkers:
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative")
		}
	case AssertReference:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type")
	}
	return nil
}
