// Package trace provides turn ID generation and context propagation so a
// single engaged message can be followed across trigger, memory and model
// log lines.
package trace

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type traceKey struct{}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// GenerateID returns a new lexically sortable trace ID ("t_" + ULID).
func GenerateID() string {
	return GenerateIDAt(time.Now())
}

// GenerateIDAt is GenerateID with an explicit timestamp.
func GenerateIDAt(now time.Time) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(now), entropy)
	entropyMu.Unlock()
	return "t_" + id.String()
}

// Time extracts the creation time encoded in a trace ID.
func Time(id string) (time.Time, bool) {
	if len(id) < 2 || id[:2] != "t_" {
		return time.Time{}, false
	}
	u, err := ulid.ParseStrict(id[2:])
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()), true
}

// WithTraceID returns a child context carrying the given trace ID.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// FromContext extracts the trace ID from ctx, returning "" if absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}

// Logger returns base annotated with the trace ID carried by ctx.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if id := FromContext(ctx); id != "" {
		return base.With("trace", id)
	}
	return base
}
