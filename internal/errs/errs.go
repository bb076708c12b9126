// Package errs defines the named error kinds surfaced across the plan
// compiler, job store, and retry planner.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the named failure modes callers
// are expected to branch on.
type Kind string

const (
	InvalidPlan          Kind = "InvalidPlan"
	InvalidFilter        Kind = "InvalidFilter"
	SubmitFailed         Kind = "SubmitFailed"
	NotRetryable         Kind = "NotRetryable"
	StoreIntegrity       Kind = "StoreIntegrity"
	SchedulerUnavailable Kind = "SchedulerUnavailable"
)

// Error wraps an underlying cause with a Kind and short human-readable
// context (command, job id, stderr excerpt, ...).
type Error struct {
	Kind    Kind
	Context string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Context)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, errs.KindOnly(errs.InvalidPlan)) work by
// comparing Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New builds an Error of the given kind.
func New(kind Kind, context string, cause error) *Error {
	return &Error{Kind: kind, Context: context, Err: cause}
}

// sentinel lets callers write errors.Is(err, errs.KindOnly(errs.InvalidPlan)).
func KindOnly(kind Kind) error {
	return &Error{Kind: kind}
}

// As extracts the Kind of err, if err is (or wraps) an *Error.
func As(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
