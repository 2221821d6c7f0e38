package testutil

import (
	"fmt"
	"sync"
)

// DeterministicIDs generates sequential IDs for tests: "<prefix>-1",
// "<prefix>-2", and so on.
//
// Unlike engine.FixedGenerator it never runs out, and it can be reset so
// the same scenario run twice produces byte-identical traces.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewDeterministicIDs creates a generator. An empty prefix means "id".
func NewDeterministicIDs(prefix string) *DeterministicIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &DeterministicIDs{prefix: prefix}
}

// Generate returns the next ID.
//
// Implements engine.IDGenerator.
func (g *DeterministicIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts the sequence. After Reset the next ID ends in "-1".
func (g *DeterministicIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
