package common

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a fault into one of the semantic categories surfaced at
// component boundaries. Kinds are stable API: callers branch on them, logs
// and analytics record them, and the outer surface maps them to statuses.
type Kind string

const (
	// KindBadInput marks an envelope that violates schema or enumerated
	// value constraints.
	KindBadInput Kind = "bad_input"
	// KindNotFound marks a lookup for a record that does not exist.
	KindNotFound Kind = "not_found"
	// KindSessionExpired marks a session id with no live context.
	KindSessionExpired Kind = "session_expired"
	// KindServiceUnavailable marks an external dependency that exhausted
	// retries or has an open circuit with no fallback left.
	KindServiceUnavailable Kind = "service_unavailable"
	// KindTimeout marks an elapsed deadline or caller cancellation.
	KindTimeout Kind = "timeout"
	// KindInternal marks an invariant violation or unexpected failure.
	KindInternal Kind = "internal"
)

// Fault is the typed error crossing component boundaries. Message is safe to
// show to end users: it never contains identifiers, SQL, or addresses.
type Fault struct {
	Kind          Kind
	Message       string
	CorrelationID string
	Err           error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (f *Fault) Unwrap() error { return f.Err }

// Is reports kind equality so errors.Is(err, &Fault{Kind: k}) works.
func (f *Fault) Is(target error) bool {
	t, ok := target.(*Fault)
	if !ok {
		return false
	}
	return t.Kind == f.Kind
}

// NewFault builds a fault with no underlying cause.
func NewFault(kind Kind, message string) *Fault {
	return &Fault{Kind: kind, Message: message}
}

// WrapFault builds a fault around an underlying cause.
func WrapFault(kind Kind, message string, err error) *Fault {
	return &Fault{Kind: kind, Message: message, Err: err}
}

// WithID stamps a correlation id on the fault and returns it.
func (f *Fault) WithID(correlationID string) *Fault {
	f.CorrelationID = correlationID
	return f
}

// KindOf extracts the fault kind from an error chain. Context cancellation
// and deadline expiry both classify as timeout; anything untyped is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// CorrelationOf extracts the correlation id from an error chain, if any.
func CorrelationOf(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.CorrelationID
	}
	return ""
}

// UserMessage returns the safe user-facing message for an error chain,
// falling back to a generic phrase for untyped errors.
func UserMessage(err error) string {
	var f *Fault
	if errors.As(err, &f) && f.Message != "" {
		return f.Message
	}
	return "something went wrong, please try again"
}
