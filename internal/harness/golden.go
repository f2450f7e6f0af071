package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/parloop/internal/ir"
)

// Snapshot is the golden view of a run. Module hashes are left out so that
// printer changes surface in the IR goldens rather than here.
type Snapshot struct {
	ScenarioName string   `json:"scenario_name"`
	GenerationID string   `json:"generation_id"`
	Seq          int64    `json:"seq"`
	Function     string   `json:"function"`
	Workers      []string `json:"workers"`
	Diagnostics  []string `json:"diagnostics"`
	Trace        []string `json:"trace"`
	Iterations   int      `json:"iterations"`
	Pass         bool     `json:"pass"`
}

// NewSnapshot builds the snapshot of a result.
func NewSnapshot(scenarioName string, result *Result) Snapshot {
	return Snapshot{
		ScenarioName: scenarioName,
		GenerationID: result.Generation.ID,
		Seq:          result.Generation.Seq,
		Function:     result.Generation.Function,
		Workers:      result.Generation.Workers,
		Diagnostics:  result.Generation.Diagnostics,
		Trace:        result.Trace,
		Iterations:   len(result.Iterations),
		Pass:         result.Pass,
	}
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the snapshot of an existing result against a golden
// file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := ir.MarshalCanonical(NewSnapshot(scenarioName, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
