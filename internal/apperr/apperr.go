// Package apperr defines KICKAI's shared error taxonomy (§7). Every
// user-visible failure path in the orchestrator, tools, and invite service
// produces one of these kinds so callers can reason about recoverability
// without inspecting error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the taxonomy entries from §7. It is not a Go error class
// hierarchy — it is the stable, user-facing category an error belongs to.
type Kind string

const (
	Denied               Kind = "Denied"
	UnknownCommand       Kind = "UnknownCommand"
	InvalidInput         Kind = "InvalidInput"
	NotFound             Kind = "NotFound"
	Conflict             Kind = "Conflict"
	InviteExpired        Kind = "InviteExpired"
	InviteAlreadyUsed    Kind = "InviteAlreadyUsed"
	TimedOut             Kind = "TimedOut"
	DependencyUnavailable Kind = "DependencyUnavailable"
	SystemCritical       Kind = "SystemCritical"
)

// Recoverable reports whether the kind is something the caller may retry
// or otherwise act on, as opposed to SystemCritical which is never
// user-recoverable (§7).
func (k Kind) Recoverable() bool {
	return k != SystemCritical
}

// Error wraps an underlying cause with a taxonomy Kind and a user-facing
// message. The message is what gets relayed verbatim (after sanitization)
// per §7's tool envelope propagation policy.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a Kind-tagged error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a Kind-tagged error around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// As extracts the taxonomy Kind and message from err if it (or something it
// wraps) is an *Error. If not, it classifies err as DependencyUnavailable —
// the safe default for an opaque failure from a collaborator (storage, LLM).
func As(err error) (Kind, string) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, ae.Message
	}
	return DependencyUnavailable, "please retry"
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}
