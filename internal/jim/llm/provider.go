// Package llm is the boundary to hosted language models.
//
// A Provider turns a Request (system prompt, condensed memory context, the
// user's message and optional images) into reply text. Provider failures are
// reported as errors wrapping one of the package sentinels so the reply
// orchestrator can pick an in-character fallback by ErrorClass instead of
// inspecting SDK error types.
package llm

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors wrapped by every Provider implementation.
var (
	// ErrAuth means the API key was rejected (HTTP 401/403).
	ErrAuth = errors.New("llm: authentication failed")

	// ErrRateLimit means the upstream API is throttling us (HTTP 429).
	ErrRateLimit = errors.New("llm: upstream rate limit exceeded")

	// ErrTimeout means the call did not finish within its deadline.
	ErrTimeout = errors.New("llm: request timed out")

	// ErrInvalidModel means the configured model does not exist or is not
	// available to this key.
	ErrInvalidModel = errors.New("llm: invalid model")

	// ErrEmptyResponse means the API answered without any text.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// Role is the author of a context Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation context sent before the user's
// message.
type Message struct {
	Role    Role
	Content string
}

// Image is an image attached to the user's message. Either URL or Data must
// be set; Data takes precedence.
type Image struct {
	MIMEType string
	URL      string
	Data     []byte
}

// Request is the input to a single completion.
type Request struct {
	// System is the compiled personality prompt.
	System string
	// Context holds memory context and recent exchanges, oldest first.
	Context []Message
	// UserText is the message being replied to.
	UserText string
	// Images are sent only to providers that report SupportsVision.
	Images []Image

	// MaxTokens and Temperature override the provider defaults when > 0.
	MaxTokens   int
	Temperature float64
}

// TokenUsage carries the token counts reported by the upstream API.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a completed reply.
type Response struct {
	Text string
	// Model is the model name as reported by the provider.
	Model   string
	Usage   TokenUsage
	Latency time.Duration
}

// Provider produces replies from a hosted model.
//
// Implementations must be safe for concurrent use. Errors wrap one of the
// package sentinels where the failure can be classified.
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
	// Name identifies the backend in logs ("openai", "gemini").
	Name() string
	// SupportsVision reports whether Request.Images are honoured.
	SupportsVision() bool
}

// ErrorClass is the coarse failure category the orchestrator switches on.
type ErrorClass string

const (
	ClassNone         ErrorClass = ""
	ClassAuth         ErrorClass = "auth"
	ClassRateLimit    ErrorClass = "rate_limit"
	ClassTimeout      ErrorClass = "timeout"
	ClassInvalidModel ErrorClass = "invalid_model"
	ClassOther        ErrorClass = "other"
)

// Classify maps an error returned by a Provider to its ErrorClass. A nil
// error is ClassNone. Context deadlines and network timeouts count as
// ClassTimeout even when the provider did not wrap them.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	switch {
	case errors.Is(err, ErrAuth):
		return ClassAuth
	case errors.Is(err, ErrRateLimit):
		return ClassRateLimit
	case errors.Is(err, ErrTimeout), isTimeout(err):
		return ClassTimeout
	case errors.Is(err, ErrInvalidModel):
		return ClassInvalidModel
	}
	return ClassOther
}

// Retryable reports whether a failed completion is worth another attempt:
// only rate limits and timeouts are.
func Retryable(err error) bool {
	switch Classify(err) {
	case ClassRateLimit, ClassTimeout:
		return true
	}
	return false
}

// classifyStatus maps an HTTP status code to a sentinel, or nil when the
// status carries no specific meaning.
func classifyStatus(status int) error {
	switch {
	case status == 401 || status == 403:
		return ErrAuth
	case status == 429:
		return ErrRateLimit
	case status == 404:
		return ErrInvalidModel
	case status == 408 || status == 504:
		return ErrTimeout
	}
	return nil
}
