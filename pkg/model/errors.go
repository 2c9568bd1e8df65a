package model

import (
	"fmt"
	"strings"
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation     ErrorCode = "VALIDATION_ERROR"
	ErrDocumentFormat ErrorCode = "DOCUMENT_FORMAT_ERROR"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrInternal       ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the conversion API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}

// DocumentFormatError is returned when a source document is not a mapping.
// It is the only error that aborts a conversion outright.
type DocumentFormatError struct {
	Source string
	Reason string
}

func (e *DocumentFormatError) Error() string {
	if e.Source == "" {
		return "DocumentFormatError: " + e.Reason
	}
	return fmt.Sprintf("DocumentFormatError: %s: %s", e.Source, e.Reason)
}

// BatchItemFailure wraps the error of one document inside a batch.
type BatchItemFailure struct {
	Input string
	Err   error
}

func (e *BatchItemFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Input, e.Err)
}

func (e *BatchItemFailure) Unwrap() error { return e.Err }

// CycleError reports a cyclic step dependency graph.
type CycleError struct {
	Steps []string
}

func (e *CycleError) Error() string {
	return "workflow contains a cycle involving steps: " + strings.Join(e.Steps, ", ")
}
