// Package domainerrors provides the coded error type used across all domain
// services. Every error that crosses a service boundary carries a stable
// machine-readable code; callers discriminate with HasCode rather than by
// matching concrete types.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies an error class. Codes are part of the public contract and
// must remain stable across releases.
type Code string

const (
	// User errors
	CodeUserNotFound            Code = "USER_NOT_FOUND"
	CodeUserAlreadyExists       Code = "USER_ALREADY_EXISTS"
	CodeInvalidCredentials      Code = "INVALID_CREDENTIALS"
	CodeUserNotActive           Code = "USER_NOT_ACTIVE"
	CodeUserNotVerified         Code = "USER_NOT_VERIFIED"
	CodeInsufficientPermissions Code = "INSUFFICIENT_PERMISSIONS"

	// Session errors
	CodeSessionNotFound      Code = "SESSION_NOT_FOUND"
	CodeSessionNotActive     Code = "SESSION_NOT_ACTIVE"
	CodeSessionAccessDenied  Code = "SESSION_ACCESS_DENIED"
	CodeSessionAlreadyExists Code = "SESSION_ALREADY_EXISTS"

	// Message errors
	CodeMessageNotFound        Code = "MESSAGE_NOT_FOUND"
	CodeInvalidMessageContent  Code = "INVALID_MESSAGE_CONTENT"
	CodeMessageProcessingError Code = "MESSAGE_PROCESSING_ERROR"
	CodeMessageEditNotAllowed  Code = "MESSAGE_EDIT_NOT_ALLOWED"
	CodeMessageAlreadyExists   Code = "MESSAGE_ALREADY_EXISTS"

	// Document errors
	CodeDocumentNotFound        Code = "DOCUMENT_NOT_FOUND"
	CodeDocumentAccessDenied    Code = "DOCUMENT_ACCESS_DENIED"
	CodeDocumentProcessingError Code = "DOCUMENT_PROCESSING_ERROR"
	CodeDocumentTooLarge        Code = "DOCUMENT_TOO_LARGE"
	CodeUnsupportedDocumentType Code = "UNSUPPORTED_DOCUMENT_TYPE"
	CodeDocumentAlreadyExists   Code = "DOCUMENT_ALREADY_EXISTS"

	// Cross-cutting errors
	CodeBusinessRuleViolation Code = "BUSINESS_RULE_VIOLATION"
	CodeRateLimitExceeded     Code = "RATE_LIMIT_EXCEEDED"
	CodeQuotaExceeded         Code = "QUOTA_EXCEEDED"
	CodeConcurrency           Code = "CONCURRENCY_ERROR"
	CodeAuthentication        Code = "AUTHENTICATION_ERROR"
	CodeAuthorization         Code = "AUTHORIZATION_ERROR"
	CodeValidation            Code = "VALIDATION_ERROR"
	CodeResourceNotFound      Code = "RESOURCE_NOT_FOUND"
	CodeConflict              Code = "CONFLICT_ERROR"
	CodeRepository            Code = "REPOSITORY_ERROR"
)

// Error is a coded domain error. It may wrap an underlying cause.
type Error struct {
	code  Code
	msg   string
	cause error
}

// New returns a coded error with a fixed message.
func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

// Newf returns a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. If err is already
// a coded Error, its code is preserved and only context is added.
func Wrap(err error, code Code, msg string) *Error {
	if err == nil {
		return New(code, msg)
	}
	var de *Error
	if errors.As(err, &de) {
		code = de.code
	}
	return &Error{code: code, msg: msg, cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

// Code returns the stable error code.
func (e *Error) Code() Code { return e.code }

// Message returns the human-readable message without the code prefix.
func (e *Error) Message() string { return e.msg }

func (e *Error) Unwrap() error { return e.cause }

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.code == code
	}
	return false
}

// CodeOf extracts the code from err, or CodeRepository if err carries none.
// Uncoded errors only ever escape from infrastructure, hence the default.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.code
	}
	return CodeRepository
}
