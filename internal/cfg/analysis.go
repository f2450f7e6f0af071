package cfg

import (
	"slices"

	"github.com/roach88/parloop/internal/ir"
)

// Loop is a finalized natural loop.
type Loop struct {
	ID     LoopID
	Header ir.BlockID
	Parent LoopID
	// Blocks lists every member, including blocks of nested loops, in
	// registration order. The header comes first.
	Blocks []ir.BlockID
	Depth  int
}

// Contains reports whether id is a member of the loop.
func (l Loop) Contains(id ir.BlockID) bool {
	return slices.Contains(l.Blocks, id)
}

// Analysis is the frozen dominator tree and loop forest of one function.
// It is immutable and safe for concurrent reads.
type Analysis struct {
	function string
	entry    ir.BlockID
	order    []ir.BlockID
	idom     map[ir.BlockID]ir.BlockID
	children map[ir.BlockID][]ir.BlockID
	loops    []Loop
	loopOf   map[ir.BlockID]LoopID
}

// Function returns the name of the analyzed function.
func (a *Analysis) Function() string { return a.function }

// Entry returns the root of the dominator tree.
func (a *Analysis) Entry() ir.BlockID { return a.entry }

// Blocks returns all blocks in registration order.
func (a *Analysis) Blocks() []ir.BlockID { return slices.Clone(a.order) }

// IDom returns the immediate dominator of id; NoBlockID for the entry.
func (a *Analysis) IDom(id ir.BlockID) ir.BlockID { return a.idom[id] }

// Children returns the blocks immediately dominated by id.
func (a *Analysis) Children(id ir.BlockID) []ir.BlockID {
	return slices.Clone(a.children[id])
}

// Dominates reports whether x dominates y. Every block dominates itself.
func (a *Analysis) Dominates(x, y ir.BlockID) bool {
	if _, ok := a.idom[y]; !ok {
		return false
	}
	for cur := y; cur.IsValid(); cur = a.idom[cur] {
		if cur == x {
			return true
		}
	}
	return false
}

// Loops returns the loop forest, outer loops before the loops they contain.
func (a *Analysis) Loops() []Loop { return slices.Clone(a.loops) }

// LoopFor returns the innermost loop containing id.
func (a *Analysis) LoopFor(id ir.BlockID) (Loop, bool) {
	l, ok := a.loopOf[id]
	if !ok {
		return Loop{}, false
	}
	return a.loops[l-1], true
}

// LoopDepth returns the nesting depth of id; zero outside every loop.
func (a *Analysis) LoopDepth(id ir.BlockID) int {
	if l, ok := a.LoopFor(id); ok {
		return l.Depth
	}
	return 0
}
