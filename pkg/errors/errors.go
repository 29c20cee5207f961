// Package errors provides the unified error type and factory functions for
// PriorArt-Intelligence. Every layer (domain, application, infrastructure,
// interfaces) returns *AppError so that HTTP responses, job failure causes and
// log records share one classification.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// stackDepth is the maximum number of frames captured per error.
const stackDepth = 32

// captureStack returns a formatted call-stack string starting two frames above
// the caller.
func captureStack(skip int) string {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		f, more := frames.Next()
		if !strings.Contains(f.File, "runtime/") {
			fmt.Fprintf(&sb, "\n\t%s:%d %s", f.File, f.Line, f.Function)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// AppError

// FieldViolation describes one failed input constraint.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError is the single structured error type used throughout the platform.
// It supports errors.Is / errors.As through Unwrap.
//
// Usage:
//
//	return errors.New(errors.ErrCodeAlertNotFound, "alert not found").WithDetail("id=" + id)
//	return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load alert")
type AppError struct {
	// Code is the typed error code that identifies the failure category.
	Code ErrorCode

	// Message is the primary human-readable description, safe for API responses.
	Message string

	// Detail carries supplementary context such as entity IDs.
	Detail string

	// Cause is the underlying error.
	Cause error

	// Fields lists every violated input constraint for validation failures.
	Fields []FieldViolation

	// Stack is the call stack captured at creation. It is not part of Error().
	Stack string
}

// Error implements the error interface.
// Format: "[<code>] <message>: <detail>: <cause>", omitting empty segments.
func (e *AppError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Code.String(), e.Message)
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+" "+f.Message)
		}
		sb.WriteString(" (")
		sb.WriteString(strings.Join(parts, "; "))
		sb.WriteString(")")
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail returns a shallow copy of the receiver with Detail set.
// It is safe to call on a nil pointer.
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithCause returns a shallow copy of the receiver with Cause set.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Cause = err
	return &clone
}

// Factory functions

// New constructs a fresh AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Wrap constructs an AppError that wraps err. It returns nil when err is nil
// so it can be used inline.
//
// When err is already an *AppError and code is CodeUnknown the original code is
// preserved.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if code == CodeUnknown {
		var ae *AppError
		if errors.As(err, &ae) {
			code = ae.Code
		}
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
		Stack:   captureStack(1),
	}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	if err == nil {
		return nil
	}
	ae := Wrap(err, code, fmt.Sprintf(format, args...))
	ae.Stack = captureStack(1)
	return ae
}

// NewValidationError builds an ErrCodeValidation error carrying every violation.
func NewValidationError(message string, violations []FieldViolation) *AppError {
	fields := make([]FieldViolation, len(violations))
	copy(fields, violations)
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Fields:  fields,
		Stack:   captureStack(1),
	}
}

// NotFound constructs a CodeNotFound AppError.
func NotFound(message string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Internal constructs a CodeInternal AppError.
func Internal(message string) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Conflict constructs a CodeConflict AppError.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Error-chain inspection

// IsCode reports whether any error in err's chain is an *AppError with code.
func IsCode(err error, code ErrorCode) bool {
	return anyCode(err, code)
}

func anyCode(err error, codes ...ErrorCode) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) {
			for _, c := range codes {
				if ae.Code == c {
					return true
				}
			}
			err = ae.Cause
			continue
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsNotFound reports whether err's chain carries any not-found code.
func IsNotFound(err error) bool {
	return anyCode(err, ErrCodeNotFound, ErrCodeJobNotFound, ErrCodeAlertNotFound, ErrCodeNotificationNotFound)
}

// IsValidation reports whether err's chain carries a validation failure.
func IsValidation(err error) bool {
	return anyCode(err, ErrCodeValidation, ErrCodeBadRequest)
}

// IsConflict reports whether err's chain carries a conflict, including lost
// per-alert evaluation races and illegal job transitions.
func IsConflict(err error) bool {
	return anyCode(err, ErrCodeConflict, ErrCodeConcurrencyConflict, ErrCodeJobInvalidTransition)
}

// IsUnavailable reports whether err's chain carries an external collaborator
// outage.
func IsUnavailable(err error) bool {
	return anyCode(err, ErrCodeEmbeddingUnavailable, ErrCodeSearchUnavailable, ErrCodeServiceUnavailable)
}

// GetCode extracts the ErrorCode from the first *AppError found in err's chain.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// Violations returns the field violations carried by the first *AppError in
// err's chain that has any.
func Violations(err error) []FieldViolation {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) {
			if len(ae.Fields) > 0 {
				return ae.Fields
			}
			err = ae.Cause
			continue
		}
		err = errors.Unwrap(err)
	}
	return nil
}

// Is, As and Unwrap re-export the standard library helpers so callers can use
// a single errors import.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
