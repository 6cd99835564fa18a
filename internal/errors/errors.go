// Package errors provides a lightweight structured error type (ShipwrightError)
// for category-based classification of build and deploy failures.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of a Shipwright error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryAuth       ErrorCategory = "auth"

	// Change-detection inputs
	CategoryInputRead ErrorCategory = "input_read"
	CategoryDiff      ErrorCategory = "diff"

	// Build phase
	CategoryLint   ErrorCategory = "lint"
	CategoryBundle ErrorCategory = "bundle"

	// Deploy phase
	CategoryImageBuild ErrorCategory = "image_build"
	CategoryImagePush  ErrorCategory = "image_push"
	CategoryApply      ErrorCategory = "apply"

	// Runtime and infrastructure errors
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// ShipwrightError is a structured error with category, recoverability, and context
type ShipwrightError struct {
	Category    ErrorCategory `json:"category"`
	Severity    ErrorSeverity `json:"severity"`
	Message     string        `json:"message"`
	Cause       error         `json:"cause,omitempty"`
	Recoverable bool          `json:"recoverable"`
	Context     ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for ShipwrightError
type ContextFields map[string]any

// Error implements the error interface
func (e *ShipwrightError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *ShipwrightError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *ShipwrightError) WithContext(key string, value any) *ShipwrightError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new ShipwrightError
func New(category ErrorCategory, severity ErrorSeverity, message string) *ShipwrightError {
	return &ShipwrightError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new ShipwrightError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *ShipwrightError {
	return &ShipwrightError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// WrapRecoverable creates a ShipwrightError that callers may absorb locally.
func WrapRecoverable(err error, category ErrorCategory, message string) *ShipwrightError {
	return &ShipwrightError{
		Category:    category,
		Severity:    SeverityWarning,
		Message:     message,
		Cause:       err,
		Recoverable: true,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if se, ok := err.(*ShipwrightError); ok {
		return se.Category == category
	}
	return false
}

// IsRecoverable checks if an error may be absorbed by the caller
func IsRecoverable(err error) bool {
	if se, ok := err.(*ShipwrightError); ok {
		return se.Recoverable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a ShipwrightError
func GetCategory(err error) ErrorCategory {
	if se, ok := err.(*ShipwrightError); ok {
		return se.Category
	}
	return CategoryInternal
}
