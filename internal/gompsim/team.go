package gompsim

import (
	"fmt"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/parloop/internal/gomp"
	"github.com/roach88/parloop/internal/interp"
)

// Team runs parallel regions on a team of goroutines. The thread that calls
// start is the team's first member; start launches the others, each running
// the worker on its own interp.Thread. Chunks are handed out dynamically.
type Team struct {
	// Threads is used when the start call requests zero threads; zero
	// means GOMAXPROCS.
	Threads int
	// Chunk is the number of iterations per chunk; zero means one.
	Chunk int64

	mu      sync.Mutex
	region  *region
	ivs     []int64
	regions int
	nowaits int
}

type region struct {
	group  *errgroup.Group
	next   int64
	ub     int64
	stride int64
	chunk  int64
}

// NewTeam returns a team runtime.
func NewTeam(threads int, chunk int64) *Team {
	return &Team{Threads: threads, Chunk: chunk}
}

// Install binds the runtime entry points and the trace hook in m.
func (tm *Team) Install(m *interp.Machine) {
	m.Bind(gomp.SpawnName, tm.start)
	m.Bind(gomp.NextName, tm.next)
	m.Bind(gomp.JoinName, tm.end)
	m.Bind(gomp.NoWaitName, tm.nowait)
	m.Bind(TraceName, func(_ *interp.Thread, args []int64) (int64, error) {
		tm.mu.Lock()
		defer tm.mu.Unlock()
		tm.ivs = append(tm.ivs, args[0])
		return 0, nil
	})
}

// Iterations returns every traced induction variable, sorted.
func (tm *Team) Iterations() []int64 {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	out := slices.Clone(tm.ivs)
	slices.Sort(out)
	return out
}

// NoWaits returns how many workers have finished their share of a loop.
func (tm *Team) NoWaits() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.nowaits
}

// Regions returns the number of completed parallel regions.
func (tm *Team) Regions() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.regions
}

func (tm *Team) teamSize(requested int32) int {
	switch {
	case requested > 0:
		return int(requested)
	case tm.Threads > 0:
		return tm.Threads
	}
	return runtime.GOMAXPROCS(0)
}

func (tm *Team) start(t *interp.Thread, args []int64) (int64, error) {
	m := t.Machine()
	fn, err := m.FuncAt(args[0])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", gomp.SpawnName, err)
	}
	data := args[1]
	chunk := tm.Chunk
	if chunk <= 0 {
		chunk = 1
	}
	if args[5] <= 0 {
		return 0, fmt.Errorf("%s: stride %d must be positive", gomp.SpawnName, args[5])
	}

	group, gctx := errgroup.WithContext(t.Context())
	r := &region{group: group, next: args[3], ub: args[4], stride: args[5], chunk: chunk}

	tm.mu.Lock()
	if tm.region != nil {
		tm.mu.Unlock()
		return 0, fmt.Errorf("%s: nested parallel regions are not supported", gomp.SpawnName)
	}
	tm.region = r
	tm.mu.Unlock()

	for range tm.teamSize(int32(args[2])) - 1 {
		group.Go(func() error {
			_, err := m.NewThread(gctx).Call(fn, data)
			return err
		})
	}
	return 0, nil
}

func (tm *Team) next(t *interp.Thread, args []int64) (int64, error) {
	tm.mu.Lock()
	r := tm.region
	if r == nil {
		tm.mu.Unlock()
		return 0, fmt.Errorf("%s: no active parallel region", gomp.NextName)
	}
	if r.next >= r.ub {
		tm.mu.Unlock()
		return 0, nil
	}
	c := Chunk{LB: r.next, UB: min(r.next+r.chunk*r.stride, r.ub)}
	r.next = c.UB
	tm.mu.Unlock()

	if err := storeChunk(t, args[0], args[1], c); err != nil {
		return 0, err
	}
	return 1, nil
}

func (tm *Team) nowait(*interp.Thread, []int64) (int64, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.nowaits++
	return 0, nil
}

// end waits for the rest of the team and reports the first worker failure.
func (tm *Team) end(*interp.Thread, []int64) (int64, error) {
	tm.mu.Lock()
	r := tm.region
	tm.mu.Unlock()
	if r == nil {
		return 0, fmt.Errorf("%s: no active parallel region", gomp.JoinName)
	}

	err := r.group.Wait()

	tm.mu.Lock()
	tm.region = nil
	tm.regions++
	tm.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("%s: worker failed: %w", gomp.JoinName, err)
	}
	return 0, nil
}

// Abort hands out no further chunks in the open region, waits for the team
// to drain and forgets the region. A no-op when no region is open.
func (tm *Team) Abort() {
	tm.mu.Lock()
	r := tm.region
	if r == nil {
		tm.mu.Unlock()
		return
	}
	r.next = r.ub
	tm.mu.Unlock()

	_ = r.group.Wait()

	tm.mu.Lock()
	tm.region = nil
	tm.mu.Unlock()
}
