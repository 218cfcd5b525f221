package tools

import (
	"testing"
	"time"
)

func newTestLimiter(limit int, window time.Duration) (*RateLimiter, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(limit, window)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl, _ := newTestLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !rl.Allow("alice") {
			t.Fatalf("Allow returned false on call %d/3", i+1)
		}
	}
	if rl.Allow("alice") {
		t.Error("Allow returned true after the limit was exhausted")
	}
	if !rl.Allow("bob") {
		t.Error("bob should have an independent quota")
	}
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	rl, now := newTestLimiter(2, time.Minute)
	rl.Allow("carol")
	*now = now.Add(30 * time.Second)
	rl.Allow("carol")
	if rl.Remaining("carol") != 0 {
		t.Fatalf("Remaining = %d, want 0", rl.Remaining("carol"))
	}

	// The first call leaves the window; the second is still inside it.
	*now = now.Add(31 * time.Second)
	if got := rl.Remaining("carol"); got != 1 {
		t.Errorf("Remaining = %d, want 1", got)
	}
	if got := rl.Remaining("carol"); got != 1 {
		t.Errorf("Remaining is not idempotent: %d", got)
	}
	if !rl.Allow("carol") {
		t.Error("Allow should succeed once a slot expires")
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if rl.limit != DefaultRateLimit || rl.window != time.Minute {
		t.Errorf("defaults = %d/%s", rl.limit, rl.window)
	}
	if got := rl.Remaining("nobody"); got != DefaultRateLimit {
		t.Errorf("Remaining(unknown) = %d", got)
	}
}

func TestRateLimiter_Prune(t *testing.T) {
	rl, now := newTestLimiter(5, time.Minute)
	rl.Allow("old")
	*now = now.Add(45 * time.Second)
	rl.Allow("fresh")

	if got := rl.Prune(now.Add(30 * time.Second)); got != 1 {
		t.Fatalf("Prune removed %d, want 1", got)
	}
	if _, ok := rl.counters["old"]; ok {
		t.Error("idle user still tracked")
	}
	if _, ok := rl.counters["fresh"]; !ok {
		t.Error("active user dropped")
	}
}
