package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures so callers can react without
// parsing messages.
type ErrorKind string

const (
	KindInvalidInput       ErrorKind = "invalid_input"
	KindInvalidState       ErrorKind = "invalid_state"
	KindNotFound           ErrorKind = "not_found"
	KindLockContention     ErrorKind = "lock_contention"
	KindTransactionFailure ErrorKind = "transaction_failure"
)

// Error is the typed error returned by the merge engine. It carries a
// machine-readable kind, a human-readable message, and a recovery hint.
type Error struct {
	Kind    ErrorKind
	Message string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is allows errors.Is comparisons against kind sentinels.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind && (te.Message == "" || te.Message == e.Message)
	}
	return false
}

// Kind sentinels for errors.Is checks.
var (
	ErrInvalidInput       = &Error{Kind: KindInvalidInput}
	ErrInvalidState       = &Error{Kind: KindInvalidState}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrLockContention     = &Error{Kind: KindLockContention}
	ErrTransactionFailure = &Error{Kind: KindTransactionFailure}
)

// InvalidInput builds an invalid-input error.
func InvalidInput(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindInvalidInput,
		Message: fmt.Sprintf(format, args...),
		Hint:    "check the request fields and retry",
	}
}

// InvalidState builds an invalid-state error.
func InvalidState(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindInvalidState,
		Message: fmt.Sprintf(format, args...),
		Hint:    "inspect the operation status before retrying",
	}
}

// NotFound builds a not-found error.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}

// LockContention builds a lock-contention error. Retry policy is the
// caller's choice, so the hint says to retry.
func LockContention(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindLockContention,
		Message: fmt.Sprintf(format, args...),
		Hint:    "another operation is in progress; retry later",
	}
}

// TransactionFailure wraps a data-store error from a locked critical section.
func TransactionFailure(err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindTransactionFailure,
		Message: fmt.Sprintf(format, args...),
		Hint:    "the operation was rolled back; retry the request",
		Err:     err,
	}
}

// KindOf extracts the error kind, or "" for untyped errors.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// HintOf extracts the recovery hint, if any.
func HintOf(err error) string {
	var te *Error
	if errors.As(err, &te) {
		return te.Hint
	}
	return ""
}
