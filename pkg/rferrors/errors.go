// Package rferrors is the shared error taxonomy every component reports
// through: authentication/authorization failures, filesystem errors,
// network errors, and protocol errors. IsRetryable is the predicate the
// client pool's Send consults before failing over to another connection,
// a taxonomy-aware replacement for an ad hoc "retry everything" default.
package rferrors

import (
	"errors"
	"fmt"
)

// Class groups errors into broad categories, so callers can branch on a
// category without string-matching messages.
type Class string

const (
	ClassAuthentication    Class = "authentication"
	ClassAuthorization     Class = "authorization"
	ClassNotFound          Class = "not_found"
	ClassAlreadyExists     Class = "already_exists"
	ClassInvalidPath       Class = "invalid_path"
	ClassPermissionDenied  Class = "permission_denied"
	ClassReadOnlyFS        Class = "read_only_filesystem"
	ClassDiskFull          Class = "disk_full"
	ClassNetwork           Class = "network"
	ClassConnection        Class = "connection"
	ClassTimeout           Class = "timeout"
	ClassServiceUnavailable Class = "service_unavailable"
	ClassProtocol          Class = "protocol"
	ClassMessageTooLarge   Class = "message_too_large"
	ClassInvalidMessage    Class = "invalid_message"
	ClassInternal          Class = "internal"
)

// retryableClasses are safe to retry: the caller's side of the operation
// never took effect, or the failure is plausibly transient.
var retryableClasses = map[Class]bool{
	ClassNetwork:            true,
	ClassConnection:         true,
	ClassTimeout:            true,
	ClassServiceUnavailable: true,
}

// linkFatalClasses are protocol-level failures that should close the
// connection rather than be retried on it.
var linkFatalClasses = map[Class]bool{
	ClassProtocol:        true,
	ClassMessageTooLarge: true,
	ClassInvalidMessage:  true,
}

// Error is the concrete error type this package's constructors produce.
// It wraps an underlying cause so callers can still errors.Is/As through
// it.
type Error struct {
	Class Class
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no wrapped cause.
func New(class Class, msg string) error {
	return &Error{Class: class, Msg: msg}
}

// Wrap builds an Error wrapping cause. If cause is nil, Wrap returns nil,
// so call sites can write `return rferrors.Wrap(class, msg, err)` inside an
// `if err != nil` branch without a redundant check.
func Wrap(class Class, msg string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Class: class, Msg: msg, Cause: cause}
}

// ClassOf extracts the Class an error was constructed with, or
// ClassInternal if err is not (or does not wrap) an *Error.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ClassInternal
}

// IsRetryable reports whether err's class is one a caller should retry.
// clientpool's Pool.Send calls it to decide whether to fail over to
// another connection.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return retryableClasses[ClassOf(err)]
}

// IsLinkFatal reports whether err's class means the connection it occurred
// on must be closed rather than reused.
func IsLinkFatal(err error) bool {
	if err == nil {
		return false
	}
	return linkFatalClasses[ClassOf(err)]
}
