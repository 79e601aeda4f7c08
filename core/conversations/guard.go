// Package conversations serializes work per conversation: at most one
// in-flight gateway call per conversation, while distinct conversations
// proceed fully in parallel.
package conversations

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	mu       *sync.Mutex
	lastUsed time.Time
}

// Guard hands out one mutex per conversation. A second message for the
// same conversation queues behind the first rather than interleaving,
// so tool calls always see a consistent turn order.
type Guard struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entry
	ttl     time.Duration
}

func NewGuard(ttl time.Duration) *Guard {
	return &Guard{
		entries: map[uuid.UUID]*entry{},
		ttl:     ttl,
	}
}

func (g *Guard) get(id uuid.UUID) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[id]
	if !ok {
		e = &entry{mu: &sync.Mutex{}}
		g.entries[id] = e
	}
	e.lastUsed = time.Now()

	// drop locks for conversations idle past the ttl; a held lock is
	// never dropped, that would let a second caller interleave
	for k, other := range g.entries {
		if k == id || !other.lastUsed.Add(g.ttl).Before(time.Now()) {
			continue
		}
		if other.mu.TryLock() {
			other.mu.Unlock()
			delete(g.entries, k)
		}
	}

	return e
}

// Acquire blocks until the conversation's slot is free and returns the
// release function.
func (g *Guard) Acquire(id uuid.UUID) func() {
	e := g.get(id)
	e.mu.Lock()
	return e.mu.Unlock
}

// TryAcquire returns a release function when the slot is free, or false
// when a call for this conversation is already in flight.
func (g *Guard) TryAcquire(id uuid.UUID) (func(), bool) {
	e := g.get(id)
	if !e.mu.TryLock() {
		return nil, false
	}
	return e.mu.Unlock, true
}
