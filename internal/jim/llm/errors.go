package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/bdobrica/Jim/common/redact"
)

// redactedError keeps the SDK error in the chain for errors.Is/As while
// printing a credential-free message.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func wrapProviderError(backend string, sentinel, err error, r *redact.Redactor) error {
	cause := &redactedError{msg: r.Error(err), err: err}
	if sentinel == nil {
		return fmt.Errorf("%s: %w", backend, cause)
	}
	return fmt.Errorf("%s: %w: %w", backend, sentinel, cause)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
