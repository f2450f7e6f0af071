package gompsim

import (
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/parloop/internal/gomp"
	"github.com/roach88/parloop/internal/interp"
)

// Scripted is a single-threaded runtime replaying a fixed chunk list. Its
// start call spawns nothing, so the caller's direct worker call consumes
// every chunk.
type Scripted struct {
	chunks []Chunk

	mu     sync.Mutex
	pos    int
	active bool
	events []Event
}

// NewScripted returns a runtime that reports chunks in order, then no more
// work.
func NewScripted(chunks ...Chunk) *Scripted {
	return &Scripted{chunks: slices.Clone(chunks)}
}

func (s *Scripted) record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns the recorded calls in order.
func (s *Scripted) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// Iterations returns the traced induction variables in execution order.
func (s *Scripted) Iterations() []int64 {
	var ivs []int64
	for _, e := range s.Events() {
		if e.Kind == EventIV {
			ivs = append(ivs, e.IV)
		}
	}
	return ivs
}

// Install binds the runtime entry points and the trace hook in m.
func (s *Scripted) Install(m *interp.Machine) {
	m.Bind(gomp.SpawnName, s.start)
	m.Bind(gomp.NextName, s.next)
	m.Bind(gomp.JoinName, s.end)
	m.Bind(gomp.NoWaitName, s.nowait)
	m.Bind(TraceName, func(_ *interp.Thread, args []int64) (int64, error) {
		s.record(Event{Kind: EventIV, IV: args[0]})
		return 0, nil
	})
}

func (s *Scripted) start(t *interp.Thread, args []int64) (int64, error) {
	fn, err := t.Machine().FuncAt(args[0])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", gomp.SpawnName, err)
	}
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return 0, fmt.Errorf("%s: parallel region already active", gomp.SpawnName)
	}
	s.active = true
	s.pos = 0
	s.mu.Unlock()

	s.record(Event{
		Kind:    EventStart,
		Worker:  fn.Name(),
		Threads: int32(args[2]),
		LB:      args[3],
		UB:      args[4],
		Stride:  args[5],
	})
	return 0, nil
}

func (s *Scripted) next(t *interp.Thread, args []int64) (int64, error) {
	s.mu.Lock()
	if s.pos >= len(s.chunks) {
		s.mu.Unlock()
		s.record(Event{Kind: EventNext})
		return 0, nil
	}
	c := s.chunks[s.pos]
	s.pos++
	s.mu.Unlock()

	if err := storeChunk(t, args[0], args[1], c); err != nil {
		return 0, err
	}
	s.record(Event{Kind: EventNext, LB: c.LB, UB: c.UB, More: true})
	return 1, nil
}

func (s *Scripted) nowait(*interp.Thread, []int64) (int64, error) {
	s.record(Event{Kind: EventNoWait})
	return 0, nil
}

func (s *Scripted) end(*interp.Thread, []int64) (int64, error) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return 0, fmt.Errorf("%s: no active parallel region", gomp.JoinName)
	}
	s.active = false
	s.mu.Unlock()
	s.record(Event{Kind: EventEnd})
	return 0, nil
}

// Abort closes a region whose end call never came.
func (s *Scripted) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}
