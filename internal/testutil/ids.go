package testutil

import (
	"fmt"
	"sync/atomic"
)

// SequentialIDGenerator produces generation IDs of the form prefix-0001,
// prefix-0002, ... so that stored history and golden output are
// byte-identical across runs.
//
// Safe for concurrent use. Satisfies store.IDGenerator.
type SequentialIDGenerator struct {
	prefix string
	n      atomic.Int64
}

// NewSequentialIDGenerator creates a generator. An empty prefix becomes "gen".
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "gen"
	}
	return &SequentialIDGenerator{prefix: prefix}
}

// Generate returns the next ID.
func (g *SequentialIDGenerator) Generate() string {
	return fmt.Sprintf("%s-%04d", g.prefix, g.n.Add(1))
}
