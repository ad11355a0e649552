// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Errorf wraps base with a formatted cause.
func Errorf(base *Error, format string, args ...any) *Error {
	return WrapError(base, fmt.Errorf(format, args...))
}

// Predefined errors
var (
	// Backtest errors
	ErrInsufficientData = &Error{Code: "INSUFFICIENT_DATA", Message: "insufficient price history"}
	ErrInvalidStrategy  = &Error{Code: "INVALID_STRATEGY", Message: "unknown strategy"}
	ErrInvalidParameter = &Error{Code: "INVALID_PARAMETER", Message: "invalid strategy parameter"}
	ErrDataUnavailable  = &Error{Code: "DATA_UNAVAILABLE", Message: "price history unavailable"}
	ErrComputation      = &Error{Code: "COMPUTATION_FAULT", Message: "numeric fault during backtest"}

	// Data errors
	ErrSymbolNotFound = &Error{Code: "SYMBOL_NOT_FOUND", Message: "symbol not found"}
	ErrNotFound       = &Error{Code: "NOT_FOUND", Message: "resource not found"}

	// API errors
	ErrBadRequest   = &Error{Code: "BAD_REQUEST", Message: "malformed request"}
	ErrUnauthorized = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid API key"}
	ErrBusy         = &Error{Code: "BUSY", Message: "too many active jobs"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
