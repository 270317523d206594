// Package errors provides structured error types for partwise.
// Every error carries a category, code, message and retryable flag so callers can
// branch on the kind of failure without string matching.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryCatalog    ErrorCategory = "CATALOG"
	ErrCategoryQuery      ErrorCategory = "QUERY"
	ErrCategoryRoute      ErrorCategory = "ROUTE"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidSpec = "INVALID_SPEC"
	CodeInvalidRow  = "INVALID_ROW"
	CodeInvalidExpr = "INVALID_EXPR"

	// Catalog codes
	CodeNotPartitioned  = "NOT_PARTITIONED"
	CodeTableExists     = "TABLE_EXISTS"
	CodeWriteConflict   = "WRITE_CONFLICT"
	CodeSpawnNotAllowed = "SPAWN_NOT_ALLOWED"

	// Query codes
	CodeParseError        = "PARSE_ERROR"
	CodeUnsupportedSyntax = "UNSUPPORTED_SYNTAX"

	// Route codes
	CodeConsistencyViolation = "CONSISTENCY_VIOLATION"
	CodeNoPartition          = "NO_PARTITION"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// PartwiseError is the structured error type used throughout the system.
type PartwiseError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *PartwiseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PartwiseError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *PartwiseError) Is(target error) bool {
	var t *PartwiseError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new PartwiseError.
func New(category ErrorCategory, code, message string) *PartwiseError {
	return &PartwiseError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Newf creates a new PartwiseError with a formatted message.
func Newf(category ErrorCategory, code, format string, args ...interface{}) *PartwiseError {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap creates a new PartwiseError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *PartwiseError {
	return &PartwiseError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *PartwiseError) WithDetails(details map[string]interface{}) *PartwiseError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var pe *PartwiseError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a PartwiseError.
func GetCategory(err error) ErrorCategory {
	var pe *PartwiseError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a PartwiseError.
func GetCode(err error) string {
	var pe *PartwiseError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// HasCode reports whether any error in the chain carries code.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}

func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	case category == ErrCategoryCatalog && code == CodeWriteConflict:
		return true
	default:
		return false
	}
}

// Sentinel values for errors.Is matching on category and code.
var (
	ErrInvalidSpec          = New(ErrCategoryValidation, CodeInvalidSpec, "invalid partitioning spec")
	ErrNotPartitioned       = New(ErrCategoryCatalog, CodeNotPartitioned, "table is not partitioned")
	ErrConsistencyViolation = New(ErrCategoryRoute, CodeConsistencyViolation, "partition directory consistency violation")
)

// Convenience constructors for common errors.

func NewInvalidSpec(message string) *PartwiseError {
	return New(ErrCategoryValidation, CodeInvalidSpec, message)
}

func NewInvalidRow(message string, cause error) *PartwiseError {
	return Wrap(ErrCategoryValidation, CodeInvalidRow, message, cause)
}

func NewCatalogError(code, message string, cause error) *PartwiseError {
	return Wrap(ErrCategoryCatalog, code, message, cause)
}

func NewQueryError(code, message string) *PartwiseError {
	return New(ErrCategoryQuery, code, message)
}

func NewRouteError(code, message string) *PartwiseError {
	return New(ErrCategoryRoute, code, message)
}

func NewStorageError(code, message string, cause error) *PartwiseError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *PartwiseError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
