// Package errors provides structured error types for the tablecat system.
// All errors include a category, code and message so callers can match them
// with errors.Is regardless of the message text.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategorySchema   ErrorCategory = "SCHEMA"
	ErrCategoryCatalog  ErrorCategory = "CATALOG"
	ErrCategoryLoader   ErrorCategory = "LOADER"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Schema codes
	CodeInvalidSchema   = "INVALID_SCHEMA"
	CodeIndexOutOfRange = "INDEX_OUT_OF_RANGE"
	CodeFieldNotFound   = "FIELD_NOT_FOUND"

	// Catalog codes
	CodeTableNotFound = "TABLE_NOT_FOUND"

	// Loader codes
	CodeMalformedSchemaLine = "MALFORMED_SCHEMA_LINE"
	CodeUnknownTypeToken    = "UNKNOWN_TYPE_TOKEN"
	CodeUnknownAnnotation   = "UNKNOWN_ANNOTATION"

	// Storage codes
	CodeIOFailure    = "IO_FAILURE"
	CodeExportFailed = "EXPORT_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Sentinels for errors.Is. Only category and code take part in matching.
var (
	ErrInvalidSchema       = New(ErrCategorySchema, CodeInvalidSchema, "invalid schema")
	ErrIndexOutOfRange     = New(ErrCategorySchema, CodeIndexOutOfRange, "field index out of range")
	ErrFieldNotFound       = New(ErrCategorySchema, CodeFieldNotFound, "field not found")
	ErrTableNotFound       = New(ErrCategoryCatalog, CodeTableNotFound, "table not found")
	ErrMalformedSchemaLine = New(ErrCategoryLoader, CodeMalformedSchemaLine, "malformed schema line")
	ErrUnknownTypeToken    = New(ErrCategoryLoader, CodeUnknownTypeToken, "unknown type token")
	ErrUnknownAnnotation   = New(ErrCategoryLoader, CodeUnknownAnnotation, "unknown annotation")
	ErrIOFailure           = New(ErrCategoryStorage, CodeIOFailure, "i/o failure")
)

// CatalogError is the structured error type used throughout the system.
type CatalogError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *CatalogError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *CatalogError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *CatalogError) Is(target error) bool {
	var t *CatalogError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new CatalogError.
func New(category ErrorCategory, code, message string) *CatalogError {
	return &CatalogError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new CatalogError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *CatalogError {
	return &CatalogError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *CatalogError) WithDetails(details map[string]interface{}) *CatalogError {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a CatalogError.
func GetCategory(err error) ErrorCategory {
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a CatalogError.
func GetCode(err error) string {
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsFatalToLoad reports whether err means the schema definition itself is
// unusable: an unknown type or annotation would shift every byte offset computed
// from the resulting descriptor.
func IsFatalToLoad(err error) bool {
	switch GetCode(err) {
	case CodeUnknownTypeToken, CodeUnknownAnnotation:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewSchemaError(code, message string) *CatalogError {
	return New(ErrCategorySchema, code, message)
}

func NewTableNotFound(message string) *CatalogError {
	return New(ErrCategoryCatalog, CodeTableNotFound, message)
}

// NewLoaderError quotes the offending line in the message and records it in
// Details under "line".
func NewLoaderError(code, message, line string) *CatalogError {
	msg := fmt.Sprintf("%s in line %q", message, line)
	return New(ErrCategoryLoader, code, msg).WithDetails(map[string]interface{}{"line": line})
}

func NewStorageError(code, message string, cause error) *CatalogError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewInternalError(message string, cause error) *CatalogError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// Line returns the offending schema line attached to a loader error, if any.
func Line(err error) (string, bool) {
	var ce *CatalogError
	if !errors.As(err, &ce) || ce.Details == nil {
		return "", false
	}
	line, ok := ce.Details["line"].(string)
	return line, ok
}
