// Package apperror defines the error kinds shared by the repository, service
// and handler layers. Lower layers return them; handlers map each kind to an
// HTTP status with errors.Is, so callers never compare messages.
package apperror

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Match with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation error")
	ErrConflict         = errors.New("conflict")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrLocationRequired = errors.New("location required")
)

// AppError carries a kind plus a message that is safe to show to the client.
// Field names the offending input for validation and location errors.
type AppError struct {
	Err     error
	Message string
	Field   string
}

func (e *AppError) Error() string { return e.Message }

func (e *AppError) Unwrap() error { return e.Err }

func newError(kind error, field, message string) *AppError {
	return &AppError{Err: kind, Message: message, Field: field}
}

// NotFound reports a missing resource. It is also used when the resource
// exists but the caller's state may not see it.
func NotFound(resource, id string) *AppError {
	return newError(ErrNotFound, "", fmt.Sprintf("%s %s not found", resource, id))
}

func ValidationFailed(field, message string) *AppError {
	return newError(ErrValidation, field, message)
}

// Conflict reports an operation that is invalid for the resource's current
// state, e.g. closing a request that is already closed.
func Conflict(message string) *AppError {
	return newError(ErrConflict, "", message)
}

func Forbidden(message string) *AppError {
	return newError(ErrForbidden, "", message)
}

func Unauthorized(message string) *AppError {
	return newError(ErrUnauthorized, "", message)
}

// LocationRequired is returned when a caller without a stored state asks
// for state-scoped data. It is a profile precondition, not a permission.
func LocationRequired() *AppError {
	return newError(ErrLocationRequired, "zipcode", "set your zipcode in your profile to see requests near you")
}
