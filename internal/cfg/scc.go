package cfg

import "github.com/roach88/parloop/internal/ir"

// stronglyConnected finds strongly connected components using Tarjan's
// algorithm.
//
// Returns a list of SCCs, where each SCC is a list of block IDs.
// Single-node SCCs without self-loops are NOT cycles.
func (g *graph) stronglyConnected() [][]ir.BlockID {
	var (
		index   = 0
		stack   []ir.BlockID
		indices = make(map[ir.BlockID]int)
		lowlink = make(map[ir.BlockID]int)
		onStack = make(map[ir.BlockID]bool)
		sccs    [][]ir.BlockID
	)

	var strongConnect func(ir.BlockID)
	strongConnect = func(v ir.BlockID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.succs[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is the root of an SCC: pop it.
		if lowlink[v] == indices[v] {
			var scc []ir.BlockID
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	// Function order keeps the result deterministic.
	for _, id := range g.ids {
		if _, visited := indices[id]; !visited {
			strongConnect(id)
		}
	}

	return sccs
}

// isCycle reports whether an SCC contains a cycle.
func (g *graph) isCycle(scc []ir.BlockID) bool {
	if len(scc) > 1 {
		return true
	}
	for _, s := range g.succs[scc[0]] {
		if s == scc[0] {
			return true
		}
	}
	return false
}
