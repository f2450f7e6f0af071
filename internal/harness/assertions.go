package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/parloop/internal/kernel"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Trace    []string // Runtime trace for context, if any
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, event)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, spec *kernel.Spec, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(result, spec, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(result *Result, spec *kernel.Spec, a Assertion) error {
	switch a.Type {
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertIterations:
		return assertCount(a.Type, "traced iterations", len(result.Iterations), a.Count)
	case AssertArrayValue:
		return assertArrayValue(result.Arrays, a)
	case AssertReference:
		return assertReference(result.Arrays, spec)
	case AssertDiagnostics:
		return assertDiagnostics(result.Generation.Diagnostics, a)
	case AssertWorkers:
		return assertCount(a.Type, "workers", len(result.Generation.Workers), a.Count)
	}
	return fmt.Errorf("unknown assertion type: %s", a.Type)
}

// assertTraceOrder checks that the events appear in the trace in the given
// order. Intervening events are allowed.
func assertTraceOrder(trace []string, a Assertion) error {
	pos := 0
	for _, want := range a.Events {
		i := slices.Index(trace[pos:], want)
		if i < 0 {
			actual := fmt.Sprintf("missing event %q", want)
			if slices.Contains(trace, want) {
				actual = fmt.Sprintf("event %q out of order", want)
			}
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("events in order: %q", a.Events),
				Actual:   actual,
				Trace:    trace,
			}
		}
		pos += i + 1
	}
	return nil
}

func assertCount(kind, what string, got, want int) error {
	if got == want {
		return nil
	}
	return &AssertionError{
		Type:     kind,
		Expected: fmt.Sprintf("%d %s", want, what),
		Actual:   fmt.Sprintf("%d %s", got, what),
	}
}

func assertArrayValue(arrays map[string][]int64, a Assertion) error {
	vals, ok := arrays[a.Array]
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("array %s", a.Array),
			Actual:   "no such array",
		}
	}
	if a.Index >= int64(len(vals)) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s[%d] = %d", a.Array, a.Index, a.Value),
			Actual:   fmt.Sprintf("index out of range, %s has %d elements", a.Array, len(vals)),
		}
	}
	if got := vals[a.Index]; got != a.Value {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s[%d] = %d", a.Array, a.Index, a.Value),
			Actual:   fmt.Sprintf("%s[%d] = %d", a.Array, a.Index, got),
		}
	}
	return nil
}

// assertReference compares every array against the sequential evaluation
// and reports the first differing element of each.
func assertReference(arrays map[string][]int64, spec *kernel.Spec) error {
	want := spec.Reference()
	var diffs []string
	for _, arr := range spec.Arrays {
		got, exp := arrays[arr.Name], want[arr.Name]
		if len(got) != len(exp) {
			diffs = append(diffs, fmt.Sprintf("%s has %d elements, want %d", arr.Name, len(got), len(exp)))
			continue
		}
		for i := range exp {
			if got[i] != exp[i] {
				diffs = append(diffs, fmt.Sprintf("%s[%d] = %d, want %d", arr.Name, i, got[i], exp[i]))
				break
			}
		}
	}
	if len(diffs) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertReference,
		Expected: "arrays equal to sequential evaluation",
		Actual:   strings.Join(diffs, "; "),
	}
}

func assertDiagnostics(diags []string, a Assertion) error {
	if err := assertCount(a.Type, "diagnostics", len(diags), a.Count); err != nil {
		return err
	}
	if a.Contains == "" {
		return nil
	}
	for _, d := range diags {
		if strings.Contains(d, a.Contains) {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("a diagnostic containing %q", a.Contains),
		Actual:   fmt.Sprintf("%q", diags),
	}
}
