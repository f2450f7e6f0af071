// Package harness runs kernel scenarios end to end: it compiles a CUE
// kernel, lowers it into a parallel loop, executes the result under a
// simulated OpenMP runtime and checks the outcome.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: ramp_two_chunks
//	description: "Chunks run in the order the runtime hands them out"
//	kernel: kernels/ramp.cue     # file or directory of CUE files
//	kernel_name: ramp            # required when the kernel file holds several
//	config:                      # generation options over the defaults
//	  num_threads: 4
//	chunks:                      # scripted runtime: fixed chunk list
//	  - {lb: 0, ub: 50}
//	  - {lb: 50, ub: 100}
//	team:                        # or a concurrent goroutine team
//	  threads: 4
//	  chunk: 7
//	assertions:
//	  - type: trace_order
//	    events: ["next [0,50)", "iv 0", "next [50,100)"]
//	  - type: iterations
//	    count: 100
//	  - type: array_value
//	    array: a
//	    index: 99
//	    value: 109
//	  - type: reference
//	  - type: diagnostics
//	    count: 0
//
// Kernel paths are relative to the scenario file. A scenario sets either
// chunks or team; with neither, a single-threaded team is used.
//
// # Assertion Types
//
//   - trace_order: runtime events appear in the given order (chunks only)
//   - iterations: number of traced induction variables (kernel trace: true)
//   - array_value: one element of an output array
//   - reference: every output array equals the sequential evaluation
//   - diagnostics: number of generation warnings, optionally one containing text
//   - workers: number of synthesized worker functions
//
// # Deterministic Testing
//
// Every run records its generation into a fresh in-memory store with
// sequential IDs and a deterministic clock, so snapshots are byte-identical
// across runs.
package harness
