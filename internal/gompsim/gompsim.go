// Package gompsim provides libgomp stand-ins for executing generated code
// with the interp package.
//
// Scripted hands out a fixed list of chunks on the calling thread and records
// every runtime call, for deterministic tests. Team runs a real goroutine
// team and distributes chunks dynamically.
package gompsim

import (
	"fmt"
	"strings"

	"github.com/roach88/parloop/internal/gomp"
	"github.com/roach88/parloop/internal/interp"
)

// TraceName is the hook generated kernels call with each iteration's
// induction variable when tracing is enabled.
const TraceName = "parloop_trace_iv"

// Chunk is a half-open range of iterations [LB, UB).
type Chunk struct {
	LB int64 `json:"lb" yaml:"lb"`
	UB int64 `json:"ub" yaml:"ub"`
}

func (c Chunk) String() string { return fmt.Sprintf("[%d,%d)", c.LB, c.UB) }

// Event kinds.
const (
	EventStart  = "start"
	EventNext   = "next"
	EventIV     = "iv"
	EventNoWait = "nowait"
	EventEnd    = "end"
)

// Event is one runtime call observed by a simulated runtime.
type Event struct {
	Kind string `json:"kind"`
	// Worker is the function started by a start event.
	Worker string `json:"worker,omitempty"`
	// Threads, LB, UB and Stride are the start arguments; LB and UB also
	// hold the chunk of a next event.
	Threads int32 `json:"threads,omitempty"`
	LB      int64 `json:"lb,omitempty"`
	UB      int64 `json:"ub,omitempty"`
	Stride  int64 `json:"stride,omitempty"`
	// More is false for the next event that reported no more work.
	More bool `json:"more,omitempty"`
	// IV is the traced induction variable.
	IV int64 `json:"iv,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case EventStart:
		return fmt.Sprintf("start @%s threads=%d lb=%d ub=%d stride=%d", e.Worker, e.Threads, e.LB, e.UB, e.Stride)
	case EventNext:
		if !e.More {
			return "next none"
		}
		return "next " + Chunk{LB: e.LB, UB: e.UB}.String()
	case EventIV:
		return fmt.Sprintf("iv %d", e.IV)
	}
	return e.Kind
}

// FormatTrace renders events one per line.
func FormatTrace(events []Event) string {
	var sb strings.Builder
	for _, e := range events {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Runtime is a simulated libgomp that can be installed into a machine.
type Runtime interface {
	Install(m *interp.Machine)
	// Abort tears down a region left open by a host call that failed
	// before reaching the join.
	Abort()
}

// storeChunk writes a chunk's bounds into the caller's i64 slots.
func storeChunk(t *interp.Thread, lbPtr, ubPtr int64, c Chunk) error {
	mem := t.Machine().Memory()
	if err := mem.Store(lbPtr, 8, c.LB); err != nil {
		return fmt.Errorf("%s: store lb: %w", gomp.NextName, err)
	}
	if err := mem.Store(ubPtr, 8, c.UB); err != nil {
		return fmt.Errorf("%s: store ub: %w", gomp.NextName, err)
	}
	return nil
}
