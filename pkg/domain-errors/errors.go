// Package domainerrors defines the coded error type shared by the catalog
// services. Services attach a Code so callers and transports can branch on
// the class of failure without string matching; stores raise
// pkg/platform/sentinel errors instead and services translate them here.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeInvalidInput marks malformed or inconsistent caller input. Raised
	// before any I/O is performed.
	CodeInvalidInput Code = "invalid_input"

	// CodeNotFound marks entities confirmed absent from the catalog.
	CodeNotFound Code = "not_found"

	// CodeUnauthorized marks operations on entities the caller cannot see.
	// Messages carrying this code must not name the entities involved.
	CodeUnauthorized Code = "unauthorized"

	// CodeStorage marks failures of the underlying store on a primary path.
	CodeStorage Code = "storage"

	// CodeInternal marks invariant violations that indicate a bug.
	CodeInternal Code = "internal"
)

// Error is a coded domain error. Construct via New/Newf/Wrap.
type Error struct {
	Code    Code
	Message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is makes errors.Is match two domain errors by code.
func (e *Error) Is(target error) bool {
	var de *Error
	if errors.As(target, &de) {
		return e.Code == de.Code
	}
	return false
}

// New builds a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a domain error wrapping an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, err: err}
}

// CodeOf extracts the code from err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == code
}
