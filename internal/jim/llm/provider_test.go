package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bdobrica/Jim/common/redact"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassNone},
		{"auth", fmt.Errorf("openai: %w", ErrAuth), ClassAuth},
		{"rate limit", fmt.Errorf("openai: %w", ErrRateLimit), ClassRateLimit},
		{"timeout sentinel", fmt.Errorf("gemini: %w", ErrTimeout), ClassTimeout},
		{"context deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ClassTimeout},
		{"net timeout", fmt.Errorf("dial: %w", timeoutErr{}), ClassTimeout},
		{"invalid model", fmt.Errorf("x: %w", ErrInvalidModel), ClassInvalidModel},
		{"empty", fmt.Errorf("x: %w", ErrEmptyResponse), ClassOther},
		{"other", errors.New("boom"), ClassOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(ErrRateLimit) || !Retryable(ErrTimeout) {
		t.Error("rate limits and timeouts should be retryable")
	}
	if Retryable(ErrAuth) || Retryable(ErrInvalidModel) || Retryable(errors.New("x")) {
		t.Error("auth, invalid model and unknown errors should not be retryable")
	}
}

func TestClassifyStatus(t *testing.T) {
	for status, want := range map[int]error{
		401: ErrAuth, 403: ErrAuth, 429: ErrRateLimit, 404: ErrInvalidModel,
		408: ErrTimeout, 504: ErrTimeout, 500: nil, 400: nil,
	} {
		if got := classifyStatus(status); got != want {
			t.Errorf("classifyStatus(%d) = %v, want %v", status, got, want)
		}
	}
}

func TestWrapProviderError_Redacts(t *testing.T) {
	const key = "sk-test-secret-key-1234567890"
	cause := errors.New("POST https://api.example.com: 401 invalid key " + key)
	err := wrapProviderError("openai", ErrAuth, cause, redact.New(key))

	if !errors.Is(err, ErrAuth) {
		t.Errorf("sentinel lost: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("cause lost: %v", err)
	}
	if strings.Contains(err.Error(), key) {
		t.Errorf("key leaked: %q", err.Error())
	}
	if !strings.HasPrefix(err.Error(), "openai: ") {
		t.Errorf("message = %q, want openai prefix", err.Error())
	}

	plain := wrapProviderError("gemini", nil, cause, redact.New(key))
	if Classify(plain) != ClassOther {
		t.Errorf("unclassified error = %q", Classify(plain))
	}
}
