package harness

import "github.com/roach88/parloop/internal/store"

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Generation is the history record of the lowered kernel.
	Generation store.Generation `json:"generation"`

	// Trace holds the runtime events, one string per event, in order.
	// Only the scripted runtime produces a trace.
	Trace []string `json:"trace"`

	// Iterations are the traced induction variables: in execution order
	// under the scripted runtime, sorted under a team.
	Iterations []int64 `json:"iterations"`

	// Arrays are the kernel's output arrays.
	Arrays map[string][]int64 `json:"arrays"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Trace:      []string{},
		Iterations: []int64{},
		Arrays:     make(map[string][]int64),
		Errors:     []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
