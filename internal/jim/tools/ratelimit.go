package tools

import (
	"sync"
	"time"
)

const (
	// DefaultRateLimit is the number of tool calls allowed per user per
	// window when no explicit limit is configured.
	DefaultRateLimit = 5

	defaultRateLimitWindow = time.Minute
)

// RateLimiter enforces a per-user sliding-window limit on tool calls.
//
// It keeps the call timestamps of each user inside the current window and
// prunes stale entries on every Allow, so memory stays O(limit) per active
// user. Prune drops users with no calls left in the window.
//
// RateLimiter is safe for concurrent use.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
	counters map[string][]time.Time // userID → call timestamps in window
}

// NewRateLimiter returns a RateLimiter that allows at most limit calls per
// user within window. Non-positive values select the defaults.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &RateLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		counters: make(map[string][]time.Time),
	}
}

// Allow reports whether userID may make another call and, if so, records it.
//
//	if !limiter.Allow(userID) {
//	    return slowDownMessage
//	}
//	img, err := images.Generate(ctx, prompt)
func (r *RateLimiter) Allow(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	valid := r.inWindow(userID, now)
	if len(valid) >= r.limit {
		return false
	}
	r.counters[userID] = append(valid, now)
	return true
}

// Remaining returns how many calls userID can still make in the current
// window.
func (r *RateLimiter) Remaining(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return max(0, r.limit-len(r.inWindow(userID, r.now())))
}

// Prune forgets users whose timestamps have all left the window and returns
// how many were removed.
func (r *RateLimiter) Prune(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id := range r.counters {
		if len(r.inWindow(id, now)) == 0 {
			delete(r.counters, id)
			removed++
		}
	}
	return removed
}

// inWindow drops expired timestamps in place and stores the result back.
// Caller holds r.mu.
func (r *RateLimiter) inWindow(userID string, now time.Time) []time.Time {
	cutoff := now.Add(-r.window)
	existing, ok := r.counters[userID]
	if !ok {
		return nil
	}
	valid := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.counters[userID] = valid
	return valid
}
