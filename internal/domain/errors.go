package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates that a requested resource does not exist.
	// Gateways return it from GetStatus for identities the backend has
	// never seen.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource with the same identity
	// already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates that a caller-provided value violates
	// a precondition.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDependencyCycle indicates that the transform table makes two or
	// more requested components depend on each other's output.
	ErrDependencyCycle = errors.New("dependency cycle")

	// ErrStillBuilding is the retryable signal a status check returns
	// while the backend is building a component.
	ErrStillBuilding = errors.New("component still building")

	// ErrExhausted indicates that a component used up its poll or deploy
	// budget without reaching a terminal status.
	ErrExhausted = errors.New("attempts exhausted")
)

// IsStillBuilding reports whether err is, or was flattened from,
// [ErrStillBuilding]. Durable engines serialize activity errors, so the
// message is checked when the chain has been lost.
func IsStillBuilding(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrStillBuilding) || strings.Contains(err.Error(), ErrStillBuilding.Error())
}

// nonRetryableError marks an error the engine must surface immediately.
type nonRetryableError struct{ err error }

func (e *nonRetryableError) Error() string { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }

// NonRetryable marks err so that engines do not retry the activity that
// returned it. A nil err stays nil.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// IsNonRetryable reports whether err was marked with [NonRetryable].
func IsNonRetryable(err error) bool {
	var nr *nonRetryableError
	return errors.As(err, &nr)
}

// FailureKind classifies why a component ended without output.
type FailureKind string

const (
	FailureGeneral   FailureKind = "general"
	FailureExhausted FailureKind = "exhausted"
	FailureCancelled FailureKind = "cancelled"
)

// ComponentFailure records a fatal, component-scoped failure. It is part
// of [ComponentState] and therefore plain data.
type ComponentFailure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

func newFailure(kind FailureKind, ref ComponentRef, format string, args ...any) *ComponentFailure {
	return &ComponentFailure{
		Kind:    kind,
		Message: fmt.Sprintf("component %s (%s): %s", ref.ProviderKind, ref.Identity, fmt.Sprintf(format, args...)),
	}
}
