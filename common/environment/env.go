// Package environment loads bot configuration from environment variables,
// optionally layered over a YAML defaults file.
//
// Lookups check the process environment first. When a key is unset or empty
// and a Source was built from a file, the file value is used; otherwise the
// caller's default applies. Required variables return an error rather than
// calling os.Exit.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Source resolves configuration keys. The zero value reads only the process
// environment.
type Source struct {
	file map[string]string
}

// Env is the Source used by the package-level helpers.
var Env = &Source{}

// FromFile reads a flat YAML mapping of KEY: value pairs (for example
// JIM_WAKE_WORD: jim) and returns a Source that falls back to it. Scalars of
// any type are accepted and kept in their textual form.
func FromFile(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("environment: read %s: %w", path, err)
	}
	return FromYAML(data)
}

// FromYAML is FromFile for an in-memory document.
func FromYAML(data []byte) (*Source, error) {
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("environment: parse yaml: %w", err)
	}
	file := make(map[string]string, len(doc))
	for k, node := range doc {
		switch node.Kind {
		case yaml.ScalarNode:
			file[k] = node.Value
		case yaml.SequenceNode:
			items := make([]string, 0, len(node.Content))
			for _, c := range node.Content {
				items = append(items, c.Value)
			}
			file[k] = strings.Join(items, ",")
		default:
			return nil, fmt.Errorf("environment: key %q: only scalars and lists are supported", k)
		}
	}
	return &Source{file: file}, nil
}

func (s *Source) lookup(name string) (string, bool) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v, true
	}
	if s != nil {
		if v, ok := s.file[name]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// String returns the value for name and whether it was set anywhere.
func (s *Source) String(name string) (string, bool) {
	return s.lookup(name)
}

// StringOr returns the value for name, or defaultValue when unset.
func (s *Source) StringOr(name, defaultValue string) string {
	if v, ok := s.lookup(name); ok {
		return v
	}
	return defaultValue
}

// RequiredString returns the value for name or an error when unset.
func (s *Source) RequiredString(name string) (string, error) {
	v, ok := s.lookup(name)
	if !ok {
		return "", fmt.Errorf("required setting %q is not set", name)
	}
	return v, nil
}

// BoolOr parses name with strconv.ParseBool. Unset or unparsable values
// yield defaultValue.
func (s *Source) BoolOr(name string, defaultValue bool) bool {
	v, ok := s.lookup(name)
	if !ok {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

// IntOr parses name as a decimal integer.
func (s *Source) IntOr(name string, defaultValue int) int {
	v, ok := s.lookup(name)
	if !ok {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return defaultValue
	}
	return n
}

// IntRangeOr is IntOr with the result clamped to [lo, hi].
func (s *Source) IntRangeOr(name string, defaultValue, lo, hi int) int {
	n := s.IntOr(name, defaultValue)
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// FloatOr parses name as a float64.
func (s *Source) FloatOr(name string, defaultValue float64) float64 {
	v, ok := s.lookup(name)
	if !ok {
		return defaultValue
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// DurationOr parses name as a time.Duration ("30s", "5m").
func (s *Source) DurationOr(name string, defaultValue time.Duration) time.Duration {
	v, ok := s.lookup(name)
	if !ok {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

// StringSliceOr parses name as a comma-separated list, trimming each element
// and dropping empties.
func (s *Source) StringSliceOr(name string, defaultValue []string) []string {
	v, ok := s.lookup(name)
	if !ok {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			result = append(result, t)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// StringOr reads name from the process environment.
func StringOr(name, defaultValue string) string { return Env.StringOr(name, defaultValue) }

// RequiredString reads name from the process environment.
func RequiredString(name string) (string, error) { return Env.RequiredString(name) }

// BoolOr reads name from the process environment.
func BoolOr(name string, defaultValue bool) bool { return Env.BoolOr(name, defaultValue) }

// IntOr reads name from the process environment.
func IntOr(name string, defaultValue int) int { return Env.IntOr(name, defaultValue) }

// DurationOr reads name from the process environment.
func DurationOr(name string, defaultValue time.Duration) time.Duration {
	return Env.DurationOr(name, defaultValue)
}

// StringSliceOr reads name from the process environment.
func StringSliceOr(name string, defaultValue []string) []string {
	return Env.StringSliceOr(name, defaultValue)
}
