package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable record ids for tests: prefix-0001,
// prefix-0002, and so on.
//
// Unlike doc.FixedGenerator it never runs out, and Reset lets the same
// scenario run twice with identical ids.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix becomes "todo".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "todo"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate implements doc.IDGenerator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts numbering. The next id is prefix-0001.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
