package httpclient

import (
	"fmt"
	"time"
)

// RetryableError reports a response the retry policy classified as
// transient. RetryAfter carries the server's backoff hint when one was
// given.
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	msg := fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %v)", e.RetryAfter)
	}
	return msg
}

// Unwrap exposes the underlying transport error, if any.
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable marks the error for retry-aware callers.
func (e *RetryableError) IsRetryable() bool { return true }
