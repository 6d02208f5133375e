package chatsync

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	// Protocol Errors (from server error frames)
	ErrorUnknown ErrorCode = iota
	ErrorUnauthorized
	ErrorBadRequest
	ErrorNotFound
	ErrorAccessDenied
	ErrorRateLimited
	ErrorInternalServer

	// Client-side Errors
	ErrorConnection
	ErrorDisconnected
	ErrorTimeout
	ErrorInvalidConfig
	ErrorNotConnected
	ErrorSerialization
	ErrorInvalidMessage
	ErrorEmptyMessage
	ErrorContentTooLong
	ErrorTooManyAttachments
	ErrorHandlerPanic
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorUnauthorized:
		return "unauthorized"
	case ErrorBadRequest:
		return "bad_request"
	case ErrorNotFound:
		return "not_found"
	case ErrorAccessDenied:
		return "access_denied"
	case ErrorRateLimited:
		return "rate_limited"
	case ErrorInternalServer:
		return "internal_error"
	case ErrorConnection:
		return "connection_error"
	case ErrorDisconnected:
		return "disconnected"
	case ErrorTimeout:
		return "timeout"
	case ErrorInvalidConfig:
		return "invalid_config"
	case ErrorNotConnected:
		return "not_connected"
	case ErrorSerialization:
		return "serialization_error"
	case ErrorInvalidMessage:
		return "invalid_message"
	case ErrorEmptyMessage:
		return "empty_message"
	case ErrorContentTooLong:
		return "content_too_long"
	case ErrorTooManyAttachments:
		return "too_many_attachments"
	case ErrorHandlerPanic:
		return "handler_panic"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// ParseErrorCode converts a protocol error code string to ErrorCode.
func ParseErrorCode(code string) ErrorCode {
	switch code {
	case "unauthorized":
		return ErrorUnauthorized
	case "bad_request":
		return ErrorBadRequest
	case "not_found":
		return ErrorNotFound
	case "access_denied":
		return ErrorAccessDenied
	case "rate_limited":
		return ErrorRateLimited
	case "internal_error":
		return ErrorInternalServer
	default:
		return ErrorUnknown
	}
}

// Error is a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with an Error.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Wrapped: err,
	}
}

// Sentinels for errors.Is comparisons. Matching is by code only.
var (
	ErrNotConnected       = NewError(ErrorNotConnected, "not connected")
	ErrEmptyMessage       = NewError(ErrorEmptyMessage, "message has no content and no attachments")
	ErrContentTooLong     = NewError(ErrorContentTooLong, "content too long")
	ErrTooManyAttachments = NewError(ErrorTooManyAttachments, fmt.Sprintf("more than %d attachments", MaxAttachments))
)

// FromProtocolError converts a protocol error frame to an Error.
func FromProtocolError(e *ProtocolError) *Error {
	if e == nil {
		return nil
	}
	return &Error{
		Code:    ParseErrorCode(e.Code),
		Message: e.Message,
	}
}

// IsProtocolError checks if an error is a protocol error (from server).
func IsProtocolError(err error) bool {
	if err == nil {
		return false
	}
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code >= ErrorUnauthorized && se.Code <= ErrorInternalServer
}

// IsConnectionError checks if an error is a connection-related error.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == ErrorConnection || se.Code == ErrorDisconnected ||
		se.Code == ErrorTimeout || se.Code == ErrorNotConnected
}

// IsValidationError reports whether err rejects a draft before sending.
func IsValidationError(err error) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case ErrorEmptyMessage, ErrorContentTooLong, ErrorTooManyAttachments, ErrorInvalidMessage:
		return true
	}
	return false
}
