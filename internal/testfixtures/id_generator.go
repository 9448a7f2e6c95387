package testfixtures

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces deterministic UUIDs for tests. The same prefix and
// sequence position always yield the same identifier.
type IDGenerator struct {
	mu      sync.Mutex
	space   uuid.UUID
	counter uint64
}

// NewIDGenerator derives a generator namespace from prefix.
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{space: uuid.NewSHA1(uuid.NameSpaceURL, []byte(prefix))}
}

// Next returns the next identifier in the sequence.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return uuid.NewSHA1(g.space, []byte(fmt.Sprint(g.counter))).String()
}

// NextFunc exposes Next for injection into services.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return uuid.NewString
	}
	return g.Next
}

// Reset rewinds the sequence.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	g.counter = 0
	g.mu.Unlock()
}
