package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("persistence: duplicate")
	// ErrConstraintViolation is returned when a record violates a storage constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")

	// ErrEventNotApproved is returned by conditional attendee writes on events that are not approved.
	ErrEventNotApproved = errors.New("persistence: event not approved")
	// ErrEventFull is returned when the attendee list already reached the capacity.
	ErrEventFull = errors.New("persistence: event full")
	// ErrAlreadyRegistered is returned when the user already holds an attendee record.
	ErrAlreadyRegistered = errors.New("persistence: already registered")
	// ErrNotRegistered is returned when the user holds no attendee record.
	ErrNotRegistered = errors.New("persistence: not registered")
)
