// Package cfg maintains dominator and loop structure for a function while
// its control-flow graph is being built.
//
// Code generators register every block with its immediate dominator at the
// moment they create it, and every loop as they form it. Registration goes
// into an arena of block and loop records keyed by stable ir.BlockIDs; no
// shared analysis structure is mutated behind the generator's back.
//
// Builder.Finalize freezes the arena into an immutable Analysis exactly once.
// By default it first verifies the records against the finished function:
// dominators are recomputed with the Cooper-Harvey-Kennedy algorithm, natural
// loops are recomputed from back edges, and the graph must be reducible. A
// mismatch is an InvariantError, which always indicates a generator defect.
package cfg
