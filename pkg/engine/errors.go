package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an engine error for control flow and retry logic.
type ErrorKind string

const (
	// KindInvalidInput indicates a request that can never succeed as given.
	// Examples: non-positive quantity, empty product code on manual intake.
	KindInvalidInput ErrorKind = "invalid_input"

	// KindNotFound indicates a referenced work order or product does not exist.
	KindNotFound ErrorKind = "not_found"

	// KindInvalidTransition indicates a lifecycle or merge operation
	// attempted from a disallowed state.
	KindInvalidTransition ErrorKind = "invalid_transition"

	// KindAmbiguousMerge indicates a submission needs an explicit
	// merge-or-create choice from the caller. It is a control-flow signal,
	// not a failure.
	KindAmbiguousMerge ErrorKind = "ambiguous_merge"

	// KindConcurrentModification indicates the atomic commit lost a race.
	// The caller should re-read and retry the whole submission.
	KindConcurrentModification ErrorKind = "concurrent_modification"

	// KindUpstreamUnavailable indicates a read from the material ledger or
	// product catalog failed.
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
)

// Error is the classified error type returned by all engine operations.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Resource is the entity that caused the error, if applicable
	// (work order ID, product code, order line ID).
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Target carries the candidate merge target for ambiguous_merge errors
	// so the caller can present the choice to the operator.
	Target *WorkOrder `json:"target,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Resource != "" && e.Err != nil:
		return fmt.Sprintf("[%s] %s (resource=%s): %v", e.Kind, e.Message, e.Resource, e.Err)
	case e.Resource != "":
		return fmt.Sprintf("[%s] %s (resource=%s)", e.Kind, e.Message, e.Resource)
	case e.Err != nil:
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is: two engine errors match when
// their kinds match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithResource adds resource context to the error.
func (e *Error) WithResource(resource string) *Error {
	e.Resource = resource
	return e
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// NewInvalidInput creates an invalid_input error.
func NewInvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

// NewNotFound creates a not_found error for the given resource.
func NewNotFound(message, resource string) *Error {
	return &Error{Kind: KindNotFound, Message: message, Resource: resource}
}

// NewInvalidTransition creates an invalid_transition error.
func NewInvalidTransition(message, resource string) *Error {
	return &Error{Kind: KindInvalidTransition, Message: message, Resource: resource}
}

// NewAmbiguousMerge creates an ambiguous_merge signal carrying the candidate
// merge target.
func NewAmbiguousMerge(target *WorkOrder) *Error {
	return &Error{
		Kind:     KindAmbiguousMerge,
		Message:  "an open work order exists for this product; choose merge or create",
		Resource: target.ProductCode,
		Target:   target,
	}
}

// NewConcurrentModification creates a concurrent_modification error.
func NewConcurrentModification(message string, err error) *Error {
	return &Error{Kind: KindConcurrentModification, Message: message, Err: err}
}

// NewUpstreamUnavailable creates an upstream_unavailable error.
func NewUpstreamUnavailable(message string, err error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Message: message, Err: err}
}

// KindOf returns the kind of an engine error, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsInvalidInput returns true if the error is classified as invalid_input.
func IsInvalidInput(err error) bool { return KindOf(err) == KindInvalidInput }

// IsNotFound returns true if the error is classified as not_found.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsInvalidTransition returns true if the error is classified as invalid_transition.
func IsInvalidTransition(err error) bool { return KindOf(err) == KindInvalidTransition }

// IsAmbiguousMerge returns true if the error is the ambiguous_merge signal.
func IsAmbiguousMerge(err error) bool { return KindOf(err) == KindAmbiguousMerge }

// IsConcurrentModification returns true if the error is classified as
// concurrent_modification.
func IsConcurrentModification(err error) bool { return KindOf(err) == KindConcurrentModification }

// IsUpstreamUnavailable returns true if the error is classified as
// upstream_unavailable.
func IsUpstreamUnavailable(err error) bool { return KindOf(err) == KindUpstreamUnavailable }

// IsRetryable returns true if the operation can be retried after a re-read.
// Concurrent modifications and upstream outages are retryable; input,
// lookup, and transition errors are terminal.
func IsRetryable(err error) bool {
	return IsConcurrentModification(err) || IsUpstreamUnavailable(err)
}
