package cfg

import (
	"slices"

	"github.com/roach88/parloop/internal/ir"
)

// graph is a read-only snapshot of a function's edges keyed by block ID.
type graph struct {
	entry ir.BlockID
	succs map[ir.BlockID][]ir.BlockID
	preds map[ir.BlockID][]ir.BlockID
	ids   []ir.BlockID // function order
}

func snapshot(fn *ir.Function, entry ir.BlockID) *graph {
	g := &graph{
		entry: entry,
		succs: make(map[ir.BlockID][]ir.BlockID, len(fn.Blocks)),
		preds: make(map[ir.BlockID][]ir.BlockID, len(fn.Blocks)),
	}
	for _, b := range fn.Blocks {
		g.ids = append(g.ids, b.ID)
		for _, s := range b.Succs() {
			g.succs[b.ID] = append(g.succs[b.ID], s.ID)
			g.preds[s.ID] = append(g.preds[s.ID], b.ID)
		}
	}
	return g
}

// reversePostorder returns the blocks reachable from entry in reverse
// postorder of a depth-first walk.
func (g *graph) reversePostorder() []ir.BlockID {
	type frame struct {
		id   ir.BlockID
		next int
	}
	visited := map[ir.BlockID]bool{g.entry: true}
	stack := []frame{{id: g.entry}}
	var post []ir.BlockID
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := g.succs[top.id]
		if top.next < len(succs) {
			s := succs[top.next]
			top.next++
			if !visited[s] {
				visited[s] = true
				stack = append(stack, frame{id: s})
			}
			continue
		}
		post = append(post, top.id)
		stack = stack[:len(stack)-1]
	}
	slices.Reverse(post)
	return post
}

// immediateDominators computes the dominator tree of the blocks reachable
// from entry with the iterative algorithm of Cooper, Harvey and Kennedy
// ("A Simple, Fast Dominance Algorithm", 2001).
func (g *graph) immediateDominators() map[ir.BlockID]ir.BlockID {
	rpo := g.reversePostorder()
	index := make(map[ir.BlockID]int, len(rpo))
	for i, id := range rpo {
		index[id] = i
	}

	idom := map[ir.BlockID]ir.BlockID{g.entry: g.entry}
	intersect := func(a, b ir.BlockID) ir.BlockID {
		for a != b {
			for index[a] > index[b] {
				a = idom[a]
			}
			for index[b] > index[a] {
				b = idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for _, id := range rpo[1:] {
			var newIDom ir.BlockID
			for _, p := range g.preds[id] {
				if _, processed := idom[p]; !processed {
					continue
				}
				if !newIDom.IsValid() {
					newIDom = p
					continue
				}
				newIDom = intersect(p, newIDom)
			}
			if idom[id] != newIDom {
				idom[id] = newIDom
				changed = true
			}
		}
	}

	idom[g.entry] = ir.NoBlockID
	return idom
}

// dominates walks y's dominator chain looking for x.
func dominates(idom map[ir.BlockID]ir.BlockID, x, y ir.BlockID) bool {
	for cur := y; cur.IsValid(); cur = idom[cur] {
		if cur == x {
			return true
		}
	}
	return false
}

// naturalLoops finds the natural loop of every back edge (an edge whose
// target dominates its source), merged by header. Each loop's body is
// returned as a set.
func (g *graph) naturalLoops(idom map[ir.BlockID]ir.BlockID) map[ir.BlockID]map[ir.BlockID]bool {
	loops := make(map[ir.BlockID]map[ir.BlockID]bool)
	for _, src := range g.ids {
		if _, reachable := idom[src]; !reachable {
			continue
		}
		for _, hdr := range g.succs[src] {
			if !dominates(idom, hdr, src) {
				continue
			}
			body := loops[hdr]
			if body == nil {
				body = map[ir.BlockID]bool{hdr: true}
				loops[hdr] = body
			}
			work := []ir.BlockID{src}
			for len(work) > 0 {
				n := work[len(work)-1]
				work = work[:len(work)-1]
				if body[n] {
					continue
				}
				body[n] = true
				work = append(work, g.preds[n]...)
			}
		}
	}
	return loops
}
