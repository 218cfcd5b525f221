package trace_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/Jim/common/trace"
)

func TestGenerateID_SortableAndUnique(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := trace.GenerateIDAt(now)
	b := trace.GenerateIDAt(now)
	if !strings.HasPrefix(a, "t_") {
		t.Fatalf("missing prefix: %q", a)
	}
	if a == b {
		t.Fatal("expected distinct ids")
	}
	if a >= b {
		t.Fatalf("ids minted in order must sort in order: %q >= %q", a, b)
	}
	got, ok := trace.Time(a)
	if !ok || !got.Equal(now) {
		t.Fatalf("Time(%q) = %v, %v", a, got, ok)
	}
}

func TestTime_RejectsForeignIDs(t *testing.T) {
	for _, id := range []string{"", "t_", "abc", "t_not-a-ulid"} {
		if _, ok := trace.Time(id); ok {
			t.Errorf("Time(%q) should fail", id)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := trace.FromContext(ctx); got != "" {
		t.Fatalf("expected empty trace, got %q", got)
	}
	ctx = trace.WithTraceID(ctx, "t_x")
	if got := trace.FromContext(ctx); got != "t_x" {
		t.Fatalf("got %q", got)
	}
}
