// Package errors provides structured error types for pkgscan.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the scan pipeline and CLI
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes map directly to the failure taxonomy of the scan pipeline.
// The driver loop distinguishes per-package failures (skip the package,
// continue the queue) from run-fatal failures (abort everything). The only
// run-fatal code is [ErrCodeTraversal], raised when an archive attempts to
// escape its extraction directory.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeDownloadFailed, "no viable sdist for %s", name)
//	if errors.Is(err, errors.ErrCodeDownloadFailed) {
//	    // Skip this package, keep draining the queue.
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeNetwork, origErr, "failed to fetch %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput Code = "INVALID_INPUT"

	// Registry lookup failures (skip package, continue queue)
	ErrCodeNotFound Code = "NOT_FOUND"
	ErrCodeNetwork  Code = "NETWORK_ERROR"

	// Archive acquisition failures (skip package, continue queue)
	ErrCodeDownloadFailed Code = "DOWNLOAD_FAILED"

	// Extraction failures
	ErrCodeExtraction Code = "EXTRACTION_ERROR"  // corrupt archive: skip package
	ErrCodeTraversal  Code = "TRAVERSAL_ATTEMPT" // path escape: fatal to the run

	// Build backend failures (skip package, continue queue)
	ErrCodeBackendUnavailable Code = "BACKEND_UNAVAILABLE"

	// Output collisions (interactive skip/overwrite, default skip)
	ErrCodeAlreadyExists Code = "ALREADY_EXISTS"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Skippable reports whether err is a per-package failure: the driver logs a
// diagnostic, drops the package, and continues draining the queue.
func Skippable(err error) bool {
	switch GetCode(err) {
	case ErrCodeNotFound, ErrCodeNetwork, ErrCodeDownloadFailed,
		ErrCodeExtraction, ErrCodeBackendUnavailable, ErrCodeAlreadyExists:
		return true
	}
	return false
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return err.Error()
}
