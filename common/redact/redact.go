// Package redact strips credentials from strings before they are logged.
//
// Provider SDK errors sometimes echo request headers or URLs with embedded
// keys. Everything the bot logs about a failed provider call goes through a
// Redactor that knows the configured secrets and also masks anything shaped
// like a bearer token or an OpenAI/Google API key.
package redact

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

const placeholder = "[REDACTED]"

var keyShapes = regexp.MustCompile(`(?i)(bearer\s+[a-z0-9._\-]{8,}|sk-[a-z0-9_\-]{16,}|AIza[0-9A-Za-z_\-]{20,}|key=[A-Za-z0-9_\-]{16,})`)

// Redactor masks a registered set of secret values plus well-known key shapes.
// It is safe for concurrent use.
type Redactor struct {
	mu      sync.RWMutex
	secrets []string
}

// New returns a Redactor seeded with secrets. Values shorter than 4
// characters are ignored.
func New(secrets ...string) *Redactor {
	r := &Redactor{}
	r.Add(secrets...)
	return r
}

// Add registers more secret values.
func (r *Redactor) Add(secrets ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range secrets {
		if len(s) < 4 {
			continue
		}
		r.secrets = append(r.secrets, s)
	}
	// Longest first so a secret that contains another is masked whole.
	sort.Slice(r.secrets, func(i, j int) bool { return len(r.secrets[i]) > len(r.secrets[j]) })
}

// String masks every registered secret and key-shaped token in s.
func (r *Redactor) String(s string) string {
	if r != nil {
		r.mu.RLock()
		s = String(s, r.secrets...)
		r.mu.RUnlock()
	}
	return keyShapes.ReplaceAllString(s, placeholder)
}

// Error is String(err.Error()); a nil error yields "".
func (r *Redactor) Error(err error) string {
	if err == nil {
		return ""
	}
	return r.String(err.Error())
}

// String replaces every occurrence of each sensitive value in s with
// [REDACTED]. Values shorter than 4 characters are skipped.
func String(s string, sensitiveValues ...string) string {
	for _, v := range sensitiveValues {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, placeholder)
	}
	return s
}

// Map returns a copy of m with non-empty values replaced by [REDACTED] for
// every key whose name suggests a secret. Used when logging the effective
// configuration at startup.
func Map(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v != "" && isSensitiveKey(k) {
			out[k] = placeholder
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"password", "token", "secret", "key", "credential", "auth"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
