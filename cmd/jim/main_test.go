package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestMaintenanceCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "jim-cli.db")
	t.Setenv("JIM_PERSONALITY_PRESET", "")

	steps := []struct {
		args []string
		want string
	}{
		{[]string{"--db", db, "personality", "show"}, "Genz"},
		{[]string{"--db", db, "personality", "preset", "Professional"}, "applied preset professional"},
		{[]string{"--db", db, "personality", "set", "emoji", "14"}, "emoji_usage = 10/10"},
		{[]string{"--db", db, "stats"}, "users: 0"},
		{[]string{"--db", db, "forget", "@nobody:example.org"}, "nothing stored for @nobody:example.org"},
		{[]string{"--db", db, "prune", "--days", "30"}, "removed 0 contexts and 0 memories"},
	}
	for _, s := range steps {
		out, err := run(t, s.args...)
		if err != nil {
			t.Fatalf("jim %s: %v", strings.Join(s.args, " "), err)
		}
		if !strings.Contains(out, s.want) {
			t.Errorf("jim %s = %q, want it to contain %q", strings.Join(s.args, " "), out, s.want)
		}
	}
}

func TestMaintenanceCommands_Errors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "jim-cli.db")
	for _, args := range [][]string{
		{"--db", db, "personality", "preset", "spicy"},
		{"--db", db, "personality", "set", "emoji", "lots"},
		{"--db", db, "personality", "set", "charisma", "5"},
		{"--db", db, "prune", "--days", "0"},
		{"--db", db, "forget"},
	} {
		if _, err := run(t, args...); err == nil {
			t.Errorf("jim %s succeeded, want an error", strings.Join(args, " "))
		}
	}
	pruneDays = 90
}
