package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: ramp_ok
description: "ramp on two chunks"
kernel: ramp.cue
chunks:
  - {lb: 0, ub: 5}
  - {lb: 5, ub: 10}
assertions:
  - type: iterations
    count: 10
  - type: array_value
    array: a
    index: 0
    value: 10
  - type: reference
`

const failingScenario = `name: ramp_bad
description: "wrong expectation"
kernel: ramp.cue
team: {threads: 2}
assertions:
  - type: array_value
    array: a
    index: 0
    value: 99
`

// scenarioDir lays out a kernel and the given scenarios in a temp dir.
func scenarioDir(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "ramp.cue", rampKernel)
	for name, content := range scenarios {
		writeFile(t, dir, name, content)
	}
	return dir
}

func TestTestCommandPasses(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"ramp_ok.yaml": passingScenario})

	stdout, _, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ ramp_ok")
	assert.Contains(t, stdout, "Test Summary: 1 passed, 0 failed, 1 total")
	assert.Contains(t, stdout, "✓ All scenarios passed")
}

func TestTestCommandFails(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"ramp_ok.yaml":  passingScenario,
		"ramp_bad.yaml": failingScenario,
	})

	stdout, _, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ ramp_bad")
	assert.Contains(t, stdout, "  Expected: a[0] = 99")
	assert.Contains(t, stdout, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommandFilter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"ramp_ok.yaml":  passingScenario,
		"ramp_bad.yaml": failingScenario,
	})

	stdout, _, err := execute(t, "test", dir, "--filter", "*_ok")
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 total")

	stdout, _, err = execute(t, "test", dir, "--filter", "nothing*")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No scenarios found.")
}

func TestTestCommandGolden(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"ramp_ok.yaml": passingScenario})
	golden := filepath.Join(dir, "golden", "ramp_ok.golden")

	_, _, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"generation_id":"ramp_ok-0001"`)
	assert.Contains(t, string(data), `"next [5,10)"`)

	_, _, err = execute(t, "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte(`{"pass":false}`), 0644))
	stdout, _, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, stdout, "snapshot does not match golden file")
}

func TestTestCommandJSON(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"ramp_bad.yaml": failingScenario})

	stdout, _, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "ramp_bad", resp.Data.Scenarios[0].Name)
	assert.Equal(t, "ramp_bad-0001", resp.Data.Scenarios[0].GenerationID)
}

func TestTestCommandErrors(t *testing.T) {
	_, _, err := execute(t, "test", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	dir := scenarioDir(t, map[string]string{"broken.yaml": "name: broken\n"})
	stdout, _, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "failed to load scenario")
}
