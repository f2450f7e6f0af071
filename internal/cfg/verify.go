package cfg

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/parloop/internal/ir"
)

// Invariant kinds reported by verification.
const (
	InvariantUnregistered = "unregistered-block"
	InvariantStale        = "stale-block"
	InvariantUnreachable  = "unreachable-block"
	InvariantDominator    = "dominator"
	InvariantLoop         = "loop"
	InvariantIrreducible  = "irreducible"
)

// InvariantError reports a disagreement between the registered analysis and
// the function's actual CFG. It always indicates a generator defect.
type InvariantError struct {
	Function string
	Kind     string
	Block    string
	Message  string
}

func (e *InvariantError) Error() string {
	if e.Block != "" {
		return fmt.Sprintf("cfg invariant %s in @%s at %s: %s", e.Kind, e.Function, e.Block, e.Message)
	}
	return fmt.Sprintf("cfg invariant %s in @%s: %s", e.Kind, e.Function, e.Message)
}

type verifier struct {
	b    *Builder
	g    *graph
	errs []error
}

func (v *verifier) fail(kind string, id ir.BlockID, format string, args ...any) {
	v.errs = append(v.errs, &InvariantError{
		Function: v.b.fn.Name(),
		Kind:     kind,
		Block:    v.name(id),
		Message:  fmt.Sprintf(format, args...),
	})
}

func (v *verifier) name(id ir.BlockID) string {
	if !id.IsValid() {
		return ""
	}
	if blk := v.b.fn.Block(id); blk != nil {
		return blk.Name()
	}
	return fmt.Sprintf("#%d", id)
}

// verify checks every registered record against the function's CFG and
// returns all mismatches joined.
func verify(b *Builder) error {
	v := &verifier{b: b, g: snapshot(b.fn, b.entry)}

	if !v.registration() {
		return errors.Join(v.errs...)
	}
	idom := v.g.immediateDominators()
	v.reachability(idom)
	if len(v.errs) > 0 {
		return errors.Join(v.errs...)
	}
	v.dominators(idom)
	v.reducibility(idom)
	v.loops(idom)
	return errors.Join(v.errs...)
}

// registration checks that registered blocks and function blocks coincide.
func (v *verifier) registration() bool {
	inFn := make(map[ir.BlockID]bool, len(v.g.ids))
	for _, id := range v.g.ids {
		inFn[id] = true
		if _, ok := v.b.blocks[id]; !ok {
			v.fail(InvariantUnregistered, id, "block was created but never registered")
		}
	}
	for _, id := range v.b.order {
		if !inFn[id] {
			v.fail(InvariantStale, id, "registered block no longer belongs to the function")
		}
	}
	if v.b.fn.Entry() == nil || v.b.fn.Entry().ID != v.b.entry {
		v.fail(InvariantDominator, v.b.entry, "registered entry is not the function's first block")
	}
	return len(v.errs) == 0
}

func (v *verifier) reachability(idom map[ir.BlockID]ir.BlockID) {
	for _, id := range v.g.ids {
		if _, ok := idom[id]; !ok {
			v.fail(InvariantUnreachable, id, "block is unreachable from the entry")
		}
	}
}

func (v *verifier) dominators(idom map[ir.BlockID]ir.BlockID) {
	for _, id := range v.b.order {
		got, want := v.b.blocks[id].idom, idom[id]
		if got != want {
			v.fail(InvariantDominator, id, "registered immediate dominator %s, computed %s",
				v.nameOr(got), v.nameOr(want))
		}
	}
}

func (v *verifier) nameOr(id ir.BlockID) string {
	if !id.IsValid() {
		return "<none>"
	}
	return v.name(id)
}

// reducibility requires every cycle to have a single entry: some block of
// each cyclic SCC must dominate all the others.
func (v *verifier) reducibility(idom map[ir.BlockID]ir.BlockID) {
	for _, scc := range v.g.stronglyConnected() {
		if !v.g.isCycle(scc) {
			continue
		}
		hasHeader := slices.ContainsFunc(scc, func(h ir.BlockID) bool {
			for _, other := range scc {
				if !dominates(idom, h, other) {
					return false
				}
			}
			return true
		})
		if !hasHeader {
			v.fail(InvariantIrreducible, scc[0], "cycle through %d blocks has no dominating header", len(scc))
		}
	}
}

// loops compares registered loops with the natural loops of the CFG:
// the same headers, the same member sets and the same nesting.
func (v *verifier) loops(idom map[ir.BlockID]ir.BlockID) {
	natural := v.g.naturalLoops(idom)

	registered := make(map[ir.BlockID]*loopRecord, len(v.b.loops))
	for _, l := range v.b.loops {
		registered[l.header] = l
	}

	for _, hdr := range v.g.ids {
		body, isHeader := natural[hdr]
		l, isRegistered := registered[hdr]
		switch {
		case isHeader && !isRegistered:
			v.fail(InvariantLoop, hdr, "natural loop header is not registered as a loop")
			continue
		case !isHeader && isRegistered:
			v.fail(InvariantLoop, hdr, "registered loop header has no back edge")
			continue
		case !isHeader:
			continue
		}

		for _, id := range l.blocks {
			if !body[id] {
				v.fail(InvariantLoop, hdr, "registered member %s is outside the natural loop", v.name(id))
			}
		}
		for _, id := range v.g.ids {
			if body[id] && !slices.Contains(l.blocks, id) {
				v.fail(InvariantLoop, hdr, "natural loop member %s is not registered", v.name(id))
			}
		}

		wantParent := innermostEnclosing(natural, hdr)
		gotParent := ir.NoBlockID
		if l.parent != NoLoop {
			gotParent = v.b.loop(l.parent).header
		}
		if gotParent != wantParent {
			v.fail(InvariantLoop, hdr, "registered parent loop %s, computed %s",
				v.nameOr(gotParent), v.nameOr(wantParent))
		}
	}

	// The innermost loop recorded per block must be the smallest loop
	// containing it.
	for _, id := range v.b.order {
		want := ir.NoBlockID
		size := 0
		for hdr, body := range natural {
			if body[id] && (want == ir.NoBlockID || len(body) < size) {
				want, size = hdr, len(body)
			}
		}
		got := ir.NoBlockID
		if rec := v.b.blocks[id]; rec.loop != NoLoop {
			got = v.b.loop(rec.loop).header
		}
		if got != want {
			v.fail(InvariantLoop, id, "innermost loop registered as %s, computed %s",
				v.nameOr(got), v.nameOr(want))
		}
	}
}

// innermostEnclosing returns the header of the smallest natural loop that
// strictly contains the loop headed by hdr.
func innermostEnclosing(natural map[ir.BlockID]map[ir.BlockID]bool, hdr ir.BlockID) ir.BlockID {
	best := ir.NoBlockID
	size := 0
	for other, body := range natural {
		if other == hdr || !body[hdr] {
			continue
		}
		if best == ir.NoBlockID || len(body) < size {
			best, size = other, len(body)
		}
	}
	return best
}
