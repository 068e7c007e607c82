package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error into the closed set the transport layer dispatches on.
type Kind int

const (
	// KindUnknown is any error that does not carry a Kind.
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindMalformedID
	KindInternal
)

// String returns the label used in logs and metrics
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindMalformedID:
		return "malformed_id"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// kinded is implemented by every error type in this package.
type kinded interface {
	Kind() Kind
}

// KindOf walks the error chain and returns the Kind of the first classified error.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var k kinded
	if stderrors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// ValidationError represents a validation failure with field-level details
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s - %s", e.Field, e.Message)
	}
	return e.Message
}

// Kind implements kinded
func (e *ValidationError) Kind() Kind { return KindValidation }

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: id=%s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Kind implements kinded
func (e *NotFoundError) Kind() Kind { return KindNotFound }

// ConflictError represents a violated uniqueness constraint
type ConflictError struct {
	Resource string
	Field    string
	Err      error
}

// NewConflictError creates a new conflict error
func NewConflictError(resource, field string, err error) *ConflictError {
	return &ConflictError{
		Resource: resource,
		Field:    field,
		Err:      err,
	}
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with this %s already exists", e.Resource, e.Field)
}

// Unwrap returns the wrapped driver error
func (e *ConflictError) Unwrap() error {
	return e.Err
}

// Kind implements kinded
func (e *ConflictError) Kind() Kind { return KindConflict }

// MalformedIDError is returned when an identifier does not match the store's key format.
type MalformedIDError struct {
	Value string
	Err   error
}

// NewMalformedIDError creates a new malformed identifier error
func NewMalformedIDError(value string, err error) *MalformedIDError {
	return &MalformedIDError{
		Value: value,
		Err:   err,
	}
}

// Error implements the error interface
func (e *MalformedIDError) Error() string {
	return fmt.Sprintf("malformed identifier %q", e.Value)
}

// Unwrap returns the parse error
func (e *MalformedIDError) Unwrap() error {
	return e.Err
}

// Kind implements kinded
func (e *MalformedIDError) Kind() Kind { return KindMalformedID }

// InternalError represents an internal server error with context
type InternalError struct {
	Message string
	Err     error
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *InternalError {
	return &InternalError{
		Message: message,
		Err:     err,
	}
}

// Error implements the error interface
func (e *InternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *InternalError) Unwrap() error {
	return e.Err
}

// Kind implements kinded
func (e *InternalError) Kind() Kind { return KindInternal }
