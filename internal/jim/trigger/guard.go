package trigger

import (
	"sort"
	"sync"
	"time"
)

const (
	// DefaultGuardTTL is how long a last-interaction timestamp is kept.
	DefaultGuardTTL = 10 * time.Minute

	// DefaultMaxTracked caps the number of remembered senders.
	DefaultMaxTracked = 10000
)

// Guard is the process-local interaction state: the set of senders whose
// turn is currently in flight and the time each sender was last engaged.
//
// Check-then-insert into the in-flight set happens under one mutex, so two
// goroutines racing on the same sender can never both be admitted.
//
// Guard is safe for concurrent use from multiple goroutines.
type Guard struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxTracked int
	inFlight   map[string]struct{}
	lastSeen   map[string]time.Time // senderID → last engaged turn
}

// NewGuard returns a Guard that forgets timestamps older than ttl and keeps
// at most maxTracked of them.
//
// If ttl ≤ 0 it defaults to DefaultGuardTTL.
// If maxTracked ≤ 0 it defaults to DefaultMaxTracked.
func NewGuard(ttl time.Duration, maxTracked int) *Guard {
	if ttl <= 0 {
		ttl = DefaultGuardTTL
	}
	if maxTracked <= 0 {
		maxTracked = DefaultMaxTracked
	}
	return &Guard{
		ttl:        ttl,
		maxTracked: maxTracked,
		inFlight:   make(map[string]struct{}),
		lastSeen:   make(map[string]time.Time),
	}
}

// LastSeen returns the sender's last engaged time.
func (g *Guard) LastSeen(senderID string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.lastSeen[senderID]
	return t, ok
}

// InFlight reports whether the sender currently has a turn running.
func (g *Guard) InFlight(senderID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inFlight[senderID]
	return ok
}

// acquire atomically checks the in-flight set and, when decide approves,
// inserts the sender and stamps lastSeen with now. decide runs under the lock
// and receives the sender's previous timestamp.
func (g *Guard) acquire(senderID string, now time.Time, decide func(last time.Time, seen bool) bool) (acquired, busy bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.inFlight[senderID]; ok {
		return false, true
	}
	last, seen := g.lastSeen[senderID]
	if !decide(last, seen) {
		return false, false
	}

	g.inFlight[senderID] = struct{}{}
	g.lastSeen[senderID] = now
	if len(g.lastSeen) > g.maxTracked {
		g.pruneLocked(now)
	}
	return true, false
}

func (g *Guard) release(senderID string) {
	g.mu.Lock()
	delete(g.inFlight, senderID)
	g.mu.Unlock()
}

// Prune drops timestamps older than the TTL, then evicts the oldest entries
// until at most maxTracked remain. Senders with a turn in flight are never
// evicted. It returns the number of entries removed.
func (g *Guard) Prune(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pruneLocked(now)
}

func (g *Guard) pruneLocked(now time.Time) int {
	removed := 0
	cutoff := now.Add(-g.ttl)
	for id, t := range g.lastSeen {
		if _, busy := g.inFlight[id]; busy {
			continue
		}
		if t.Before(cutoff) {
			delete(g.lastSeen, id)
			removed++
		}
	}

	excess := len(g.lastSeen) - g.maxTracked
	if excess <= 0 {
		return removed
	}

	type entry struct {
		id string
		at time.Time
	}
	entries := make([]entry, 0, len(g.lastSeen))
	for id, t := range g.lastSeen {
		if _, busy := g.inFlight[id]; busy {
			continue
		}
		entries = append(entries, entry{id, t})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
	for i := 0; i < excess && i < len(entries); i++ {
		delete(g.lastSeen, entries[i].id)
		removed++
	}
	return removed
}

// Stats is a point-in-time view for the status endpoint.
type Stats struct {
	InFlight int `json:"in_flight"`
	Tracked  int `json:"tracked"`
}

// Stats returns current guard sizes.
func (g *Guard) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{InFlight: len(g.inFlight), Tracked: len(g.lastSeen)}
}
