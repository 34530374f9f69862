package application

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when a request carries no resolvable identity.
	ErrUnauthenticated = errors.New("application: unauthenticated")
	// ErrForbidden is returned when the acting principal lacks permission for an operation.
	ErrForbidden = errors.New("application: forbidden")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrConflict matches every ConflictError regardless of reason.
	ErrConflict = &ConflictError{}
)

// Conflict reasons surfaced by the admission controller.
var (
	ErrNotApproved   = &ConflictError{Reason: "not approved"}
	ErrEventFull     = &ConflictError{Reason: "full"}
	ErrDuplicateRSVP = &ConflictError{Reason: "duplicate"}
	ErrNoRSVP        = &ConflictError{Reason: "no rsvp found"}
)

// ConflictError reports that the current state of a resource forbids the
// requested change.
type ConflictError struct {
	Reason string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e == nil || e.Reason == "" {
		return "application: conflict"
	}
	return "application: conflict: " + e.Reason
}

// Is matches conflicts with the same reason. A target without a reason matches
// any conflict.
func (e *ConflictError) Is(target error) bool {
	var other *ConflictError
	if !errors.As(target, &other) || other == nil {
		return false
	}
	return other.Reason == "" || e != nil && other.Reason == e.Reason
}

// ChannelError describes a push delivery failure. It is recorded in delivery
// results and never returned from a business operation.
type ChannelError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ChannelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("push channel: %s: %v", e.Reason, e.Err)
	}
	return "push channel: " + e.Reason
}

// Unwrap exposes the underlying transport error.
func (e *ChannelError) Unwrap() error {
	return e.Err
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 1 {
		for field, msg := range v.FieldErrors {
			return fmt.Sprintf("validation failed: %s %s", field, msg)
		}
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error. The first message for a field wins.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	if _, exists := v.FieldErrors[field]; exists {
		return
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func singleFieldError(field, message string) *ValidationError {
	v := &ValidationError{}
	v.add(field, message)
	return v
}
