package trigger_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/bdobrica/Jim/internal/jim/trigger"
)

func TestGuard_PruneByTTL(t *testing.T) {
	e := trigger.NewEngine(trigger.Config{GuardTTL: time.Minute})
	g := e.Guard()

	_, r1 := e.Admit(msg("@old:x", "jim"), t0)
	r1()
	_, r2 := e.Admit(msg("@new:x", "jim"), t0.Add(50*time.Second))
	r2()

	removed := g.Prune(t0.Add(90 * time.Second))
	if removed != 1 {
		t.Fatalf("removed %d, want 1", removed)
	}
	if _, ok := g.LastSeen("@old:x"); ok {
		t.Error("@old:x should have expired")
	}
	if _, ok := g.LastSeen("@new:x"); !ok {
		t.Error("@new:x should be kept")
	}
}

func TestGuard_PruneByCountEvictsOldestFirst(t *testing.T) {
	e := trigger.NewEngine(trigger.Config{GuardTTL: time.Hour, MaxTracked: 3})
	g := e.Guard()

	for i := 0; i < 5; i++ {
		_, release := e.Admit(msg(fmt.Sprintf("@u%d:x", i), "jim"), t0.Add(time.Duration(i)*time.Second))
		release()
	}

	// Admission prunes opportunistically once the cap is exceeded.
	if got := g.Stats().Tracked; got != 3 {
		t.Fatalf("tracked = %d, want 3", got)
	}
	for i := 0; i < 2; i++ {
		if _, ok := g.LastSeen(fmt.Sprintf("@u%d:x", i)); ok {
			t.Errorf("@u%d:x is among the oldest and should be evicted", i)
		}
	}
	for i := 2; i < 5; i++ {
		if _, ok := g.LastSeen(fmt.Sprintf("@u%d:x", i)); !ok {
			t.Errorf("@u%d:x should be kept", i)
		}
	}
}

func TestGuard_PruneSparesInFlight(t *testing.T) {
	e := trigger.NewEngine(trigger.Config{GuardTTL: time.Minute})
	g := e.Guard()

	_, release := e.Admit(msg("@slow:x", "jim"), t0)
	defer release()

	if removed := g.Prune(t0.Add(time.Hour)); removed != 0 {
		t.Fatalf("removed %d in-flight entries", removed)
	}
	if s := g.Stats(); s.InFlight != 1 || s.Tracked != 1 {
		t.Fatalf("stats = %+v", s)
	}
}
