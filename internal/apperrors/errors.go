package apperrors

import (
	"errors"
	"fmt"
)

// Code is the stable machine-readable error identifier exposed across the
// interface boundary. Internal error detail never crosses it.
type Code string

const (
	CodeInvalidInput     Code = "invalid_input"
	CodePermissionDenied Code = "permission_denied"
	CodeNotFound         Code = "not_found"
	CodeFeatureDisabled  Code = "feature_disabled"
	CodeStorageFailure   Code = "storage_failure"
)

// Error pairs a stable code with a human-readable message. The wrapped
// cause stays server-side, for logs only.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches on code so callers can compare against the exported sentinels.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidInput     = &Error{Code: CodeInvalidInput, Message: "invalid input"}
	ErrPermissionDenied = &Error{Code: CodePermissionDenied, Message: "permission denied"}
	ErrNotFound         = &Error{Code: CodeNotFound, Message: "not found"}
	ErrFeatureDisabled  = &Error{Code: CodeFeatureDisabled, Message: "feature disabled"}
	ErrStorageFailure   = &Error{Code: CodeStorageFailure, Message: "storage failure"}
)

func InvalidInput(msg string) *Error {
	return &Error{Code: CodeInvalidInput, Message: msg}
}

func PermissionDenied(msg string) *Error {
	return &Error{Code: CodePermissionDenied, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

func FeatureDisabled(msg string) *Error {
	return &Error{Code: CodeFeatureDisabled, Message: msg}
}

func Storage(msg string, cause error) *Error {
	return &Error{Code: CodeStorageFailure, Message: msg, cause: cause}
}

// CodeOf extracts the stable code from any error chain, defaulting to
// storage_failure for unclassified failures.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeStorageFailure
}

// MessageOf returns the user-facing message for an error chain.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
