// Package reasoner turns a user request into the agent's reply,
// invoking tools as needed. Two implementations exist: an LLM-backed
// reasoner (Ollama) and a deterministic rule-based one.
package reasoner

import (
	"context"
	"errors"
)

var (
	// ErrReasoningUnavailable marks a reasoning backend that could not
	// be reached at all.
	ErrReasoningUnavailable = errors.New("reasoning backend unavailable")

	// ErrReasoningProtocol marks backend output this runtime cannot
	// interpret.
	ErrReasoningProtocol = errors.New("reasoning backend protocol error")
)

// Reasoner produces the agent's reply for one user message. Errors
// fail the task; the error text becomes the failure message.
type Reasoner interface {
	Reason(ctx context.Context, input string) (string, error)
}
