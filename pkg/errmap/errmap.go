// Package errmap classifies internal errors into the taxonomy the HTTP
// surface speaks: a stable code, a human message, and the original cause
// preserved via Unwrap.
package errmap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code classifies high-level error categories for user-facing responses.
type Code string

const (
	CodeValidation       Code = "validation_error"
	CodeUnauthenticated  Code = "unauthenticated"
	CodeAccessDenied     Code = "access_denied"
	CodeNotFound         Code = "not_found"
	CodeLockConflict     Code = "lock_conflict"
	CodeJoinConflict     Code = "join_conflict"
	CodeExecution        Code = "execution_error"
	CodeExecutionTimeout Code = "execution_timeout"
	CodeQueueFull        Code = "queue_full"
	CodeCanceled         Code = "canceled"
	CodeUnexpected       Code = "unexpected"
)

// Error is a small wrapper that carries a code and context while preserving
// the original cause via Unwrap.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = humanize(e.Code, e.cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error with the supplied code, message, and underlying cause.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Newf is New with a formatted message and no cause.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func humanize(code Code, cause error) string {
	switch code {
	case CodeValidation:
		return "invalid request"
	case CodeUnauthenticated:
		return "authentication required"
	case CodeAccessDenied:
		return "permission denied"
	case CodeNotFound:
		return "not found"
	case CodeLockConflict:
		return "file is locked by another member"
	case CodeJoinConflict:
		return "already a workspace member"
	case CodeExecution:
		return "execution failed"
	case CodeExecutionTimeout:
		return "execution timed out"
	case CodeQueueFull:
		return "execution queue is full"
	case CodeCanceled:
		return "request was canceled"
	default:
		if cause != nil {
			return cause.Error()
		}
		return "unexpected error"
	}
}

// Map converts an arbitrary error into an *Error with a best-effort code.
// Already-mapped errors pass through unchanged.
func Map(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Code: CodeCanceled, cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeExecutionTimeout, cause: err}
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "not found"):
		return &Error{Code: CodeNotFound, cause: err}
	// Only the membership table's uniqueness means "already joined"; a
	// constraint hit anywhere else is a server bug, not a client conflict.
	case strings.Contains(lower, "unique constraint") && strings.Contains(lower, "workspace_members"):
		return &Error{Code: CodeJoinConflict, cause: err}
	}
	return &Error{Code: CodeUnexpected, cause: err}
}

// CodeOf extracts the code from a mapped error; unmapped errors report
// CodeUnexpected.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnexpected
}

// HTTPStatus maps a code to the wire-level status the frontend contract
// expects. Lock conflicts surface as 423 and a full queue as 503, matching
// the inherited API semantics.
func HTTPStatus(err error) int {
	switch CodeOf(Map(err)) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeAccessDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeLockConflict:
		return http.StatusLocked
	case CodeJoinConflict:
		return http.StatusConflict
	case CodeExecution, CodeExecutionTimeout:
		return http.StatusUnprocessableEntity
	case CodeQueueFull:
		return http.StatusServiceUnavailable
	case CodeCanceled:
		return 499 // client closed request
	default:
		return http.StatusInternalServerError
	}
}
