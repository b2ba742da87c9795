// Package errors provides structured error types for netmeta.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the library, CLI, HTTP API and MCP server
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Kinds
//
// Every failure surfaced by the analysis pipeline carries one of these codes:
//   - VALIDATION_ERROR: malformed or missing input fields
//   - DISCONNECTED_NETWORK: the comparison graph has more than one component
//   - UNKNOWN_REFERENCE: the reference treatment is not part of the network
//   - ESTIMATION_FAILED: the solver reported a numerical failure
//   - ESTIMATION_TIMEOUT: the solver exceeded its time budget
//   - INVALID_RESULT: the solver violated its output contract
//
// None of these are retried automatically.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeValidation, "study %q has a single arm", study)
//	if errors.Is(err, errors.ErrCodeValidation) {
//	    // Reject the request
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeEstimationFailed, solverErr, "netmeta failed")
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Analysis pipeline errors
	ErrCodeValidation          Code = "VALIDATION_ERROR"
	ErrCodeDisconnectedNetwork Code = "DISCONNECTED_NETWORK"
	ErrCodeUnknownReference    Code = "UNKNOWN_REFERENCE"
	ErrCodeEstimationFailed    Code = "ESTIMATION_FAILED"
	ErrCodeEstimationTimeout   Code = "ESTIMATION_TIMEOUT"
	ErrCodeInvalidResult       Code = "INVALID_RESULT"

	// Input and configuration errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
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

// coder is implemented by error types that carry extra fields and
// expose their code through a method instead of an *Error.
type coder interface {
	Code() Code
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error or a typed error
// with a matching code.
func Is(err error, code Code) bool {
	return GetCode(err) == code
}

// As is [errors.As] from the standard library, re-exported so callers
// importing this package can still match typed errors.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if no error in the chain carries a code.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
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
	var d *DisconnectedNetworkError
	if errors.As(err, &d) {
		return d.describe()
	}
	return err.Error()
}

// DisconnectedNetworkError reports a comparison network that splits into
// more than one connected component. Components lists the treatments of
// each component.
type DisconnectedNetworkError struct {
	Components [][]string
}

// Error implements the error interface.
func (e *DisconnectedNetworkError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCodeDisconnectedNetwork, e.describe())
}

// Code returns the error code for this error type.
func (e *DisconnectedNetworkError) Code() Code {
	return ErrCodeDisconnectedNetwork
}

func (e *DisconnectedNetworkError) describe() string {
	parts := make([]string, len(e.Components))
	for i, c := range e.Components {
		parts[i] = "{" + strings.Join(c, ", ") + "}"
	}
	return fmt.Sprintf("network is not connected: %d components %s", len(e.Components), strings.Join(parts, " "))
}

// Validation returns a VALIDATION_ERROR with a formatted message.
func Validation(format string, args ...any) *Error {
	return New(ErrCodeValidation, format, args...)
}

// UnknownReference returns an UNKNOWN_REFERENCE error for treatment.
func UnknownReference(treatment string) *Error {
	return New(ErrCodeUnknownReference, "reference treatment %q is not in the network", treatment)
}

// InvalidResult returns an INVALID_RESULT error with a formatted message.
func InvalidResult(format string, args ...any) *Error {
	return New(ErrCodeInvalidResult, format, args...)
}
