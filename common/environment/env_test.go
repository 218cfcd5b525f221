package environment_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bdobrica/Jim/common/environment"
)

func TestStringOr(t *testing.T) {
	t.Setenv("JIM_TEST_STRING", "hello")
	if got := environment.StringOr("JIM_TEST_STRING", "default"); got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
	if got := environment.StringOr("JIM_TEST_STRING_MISSING", "default"); got != "default" {
		t.Errorf("expected %q, got %q", "default", got)
	}
}

func TestRequiredString(t *testing.T) {
	t.Setenv("JIM_TEST_REQUIRED", "value")
	v, err := environment.RequiredString("JIM_TEST_REQUIRED")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "value" {
		t.Errorf("expected %q, got %q", "value", v)
	}

	if _, err := environment.RequiredString("JIM_TEST_REQUIRED_MISSING"); err == nil {
		t.Error("expected error for missing variable, got nil")
	}
}

func TestBoolOrAndIntOr(t *testing.T) {
	t.Setenv("JIM_TEST_BOOL", "0")
	if environment.BoolOr("JIM_TEST_BOOL", true) {
		t.Error("expected false")
	}
	t.Setenv("JIM_TEST_INT_BAD", "notanint")
	if got := environment.IntOr("JIM_TEST_INT_BAD", 7); got != 7 {
		t.Errorf("expected default 7 for bad value, got %d", got)
	}
}

func TestFloatOr(t *testing.T) {
	t.Setenv("JIM_TEST_FLOAT", " 0.35 ")
	if got := environment.Env.FloatOr("JIM_TEST_FLOAT", 1); got != 0.35 {
		t.Errorf("FloatOr = %v, want 0.35", got)
	}
	t.Setenv("JIM_TEST_FLOAT", "warm")
	if got := environment.Env.FloatOr("JIM_TEST_FLOAT", 0.8); got != 0.8 {
		t.Errorf("FloatOr(bad) = %v, want default", got)
	}
}

func TestDurationOr(t *testing.T) {
	t.Setenv("JIM_TEST_DURATION", "45s")
	if got := environment.DurationOr("JIM_TEST_DURATION", time.Minute); got != 45*time.Second {
		t.Errorf("expected 45s, got %v", got)
	}
}

func TestStringSliceOr(t *testing.T) {
	t.Setenv("JIM_TEST_SLICE", " a, b ,,c ")
	got := environment.StringSliceOr("JIM_TEST_SLICE", nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("unexpected slice %v", got)
	}
}

func TestFromYAML_FallsBackToFile(t *testing.T) {
	src, err := environment.FromYAML([]byte(`
JIM_TEST_WAKE: jimbo
JIM_TEST_WINDOW: 90s
JIM_TEST_ROOMS:
  - "!a:example.org"
  - "!b:example.org"
`))
	if err != nil {
		t.Fatalf("FromYAML: %v", err)
	}
	if got := src.StringOr("JIM_TEST_WAKE", "jim"); got != "jimbo" {
		t.Errorf("file value: got %q", got)
	}
	if got := src.DurationOr("JIM_TEST_WINDOW", time.Minute); got != 90*time.Second {
		t.Errorf("file duration: got %v", got)
	}
	if got := src.StringSliceOr("JIM_TEST_ROOMS", nil); len(got) != 2 {
		t.Errorf("file list: got %v", got)
	}

	t.Setenv("JIM_TEST_WAKE", "james")
	if got := src.StringOr("JIM_TEST_WAKE", "jim"); got != "james" {
		t.Errorf("environment must win over file: got %q", got)
	}
}

func TestFromYAML_RejectsNestedMaps(t *testing.T) {
	if _, err := environment.FromYAML([]byte("nested:\n  a: 1\n")); err == nil {
		t.Fatal("expected error for nested mapping")
	}
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jim.yaml")
	if err := os.WriteFile(path, []byte("JIM_TEST_FILE_INT: 12\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	src, err := environment.FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if got := src.IntRangeOr("JIM_TEST_FILE_INT", 0, 0, 10); got != 10 {
		t.Errorf("expected clamped 10, got %d", got)
	}
}
