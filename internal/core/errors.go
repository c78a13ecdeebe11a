package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is().
// These are generic errors that can be wrapped with additional context.
var (
	// Adapter errors (§4.1)
	ErrAuthError      = errors.New("adapter: authentication failed")
	ErrRateLimitError = errors.New("adapter: rate limited")
	ErrTransientError = errors.New("adapter: transient failure")
	ErrProtocolError  = errors.New("adapter: malformed response")

	// RateLimiter errors (§4.2)
	ErrAcquireCanceled = errors.New("ratelimiter: acquisition canceled")

	// Cache errors (§4.3)
	ErrCacheMiss = errors.New("cache: key not found")

	// Judge / policy errors (§4.4, §4.10)
	ErrJudgeParseFailure = errors.New("judge: failed to parse score")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Conversation memory errors (§4.6)
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNonMonotonicTurn     = errors.New("turn index is not monotonic")

	// Run-level errors
	ErrTimeout             = errors.New("operation timeout")
	ErrCanceled            = errors.New("operation canceled")
	ErrMaxRetriesExceeded  = errors.New("maximum retries exceeded")
	ErrBudgetExceeded      = errors.New("run budget exceeded")
	ErrCircuitBreakerOpen  = errors.New("circuit breaker open")

	// Gate errors (§4.12, §6)
	ErrGateMetricUndefined = errors.New("gate: metric undefined")
	ErrMalformedPolicy     = errors.New("gate: malformed policy")
)

// FrameworkError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type FrameworkError struct {
	Op      string // Operation that failed (e.g., "adapter.Invoke")
	Kind    string // Error kind (e.g., "infrastructure", "policy", "config")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

func (e *FrameworkError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As.
func (e *FrameworkError) Unwrap() error {
	return e.Err
}

// NewFrameworkError creates a new FrameworkError.
func NewFrameworkError(op, kind string, err error) *FrameworkError {
	return &FrameworkError{Op: op, Kind: kind, Err: err}
}

// NewFrameworkErrorWithID attaches an entity ID (test id, conversation id, ...).
func NewFrameworkErrorWithID(op, kind, id string, err error) *FrameworkError {
	return &FrameworkError{Op: op, Kind: kind, ID: id, Err: err}
}

// IsRetryable reports whether err should trigger Adapter/TestRunner retry logic.
// Only TransientError and RateLimitError are retryable; AuthError and
// ProtocolError are terminal.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientError) || errors.Is(err, ErrRateLimitError)
}

// IsInfrastructure reports whether err should classify as error-infrastructure.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrAuthError) ||
		errors.Is(err, ErrProtocolError) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrCanceled) ||
		errors.Is(err, ErrMaxRetriesExceeded) ||
		errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}
