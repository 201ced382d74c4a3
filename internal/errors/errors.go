// Package errors provides structured error types for the sweep benchmark.
// All errors include a category, code and message so that callers can tell a
// setup failure from a correctness failure without parsing strings.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the stage that produced them.
type ErrorCategory string

const (
	ErrCategorySetup        ErrorCategory = "SETUP"
	ErrCategoryEncoding     ErrorCategory = "ENCODING"
	ErrCategoryVerification ErrorCategory = "VERIFICATION"
	ErrCategoryBuild        ErrorCategory = "BUILD"
	ErrCategoryConfig       ErrorCategory = "CONFIG"
	ErrCategoryInternal     ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Setup codes
	CodeCreateFailed = "CREATE_FAILED"
	CodeOpenFailed   = "OPEN_FAILED"
	CodeMapFailed    = "MAP_FAILED"
	CodeReadFailed   = "READ_FAILED"
	CodeMirrorFailed = "MIRROR_FAILED"

	// Encoding codes
	CodeSerializeFailed   = "SERIALIZE_FAILED"
	CodeDeserializeFailed = "DESERIALIZE_FAILED"
	CodeCorruptBlock      = "CORRUPT_BLOCK"

	// Verification codes
	CodeKeyMismatch    = "KEY_MISMATCH"
	CodeBoundViolation = "BOUND_VIOLATION"
	CodeMissingEntry   = "MISSING_ENTRY"
	CodeEntryCount     = "ENTRY_COUNT"

	// Build codes
	CodeOutOfOrder       = "OUT_OF_ORDER"
	CodeCapacityExceeded = "CAPACITY_EXCEEDED"
	CodeWriteFailed      = "WRITE_FAILED"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// SweepError is the structured error type used throughout the system.
type SweepError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *SweepError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *SweepError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *SweepError) Is(target error) bool {
	var t *SweepError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new SweepError.
func New(category ErrorCategory, code, message string) *SweepError {
	return &SweepError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new SweepError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *SweepError {
	return &SweepError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *SweepError) WithDetails(details map[string]interface{}) *SweepError {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a SweepError.
func GetCategory(err error) ErrorCategory {
	var se *SweepError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a SweepError.
func GetCode(err error) string {
	var se *SweepError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsVerification reports whether err is a correctness failure detected while
// measuring. Such failures invalidate the whole run.
func IsVerification(err error) bool {
	return GetCategory(err) == ErrCategoryVerification
}

// Convenience constructors for common errors.

func NewSetupError(code, message string, cause error) *SweepError {
	return Wrap(ErrCategorySetup, code, message, cause)
}

func NewEncodingError(code, message string, cause error) *SweepError {
	return Wrap(ErrCategoryEncoding, code, message, cause)
}

func NewVerificationError(code, message string) *SweepError {
	return New(ErrCategoryVerification, code, message)
}

func NewBuildError(code, message string, cause error) *SweepError {
	return Wrap(ErrCategoryBuild, code, message, cause)
}

func NewConfigError(message string) *SweepError {
	return New(ErrCategoryConfig, CodeInvalidConfig, message)
}

func NewInternalError(message string, cause error) *SweepError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
