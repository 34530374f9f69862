package application

import (
	"errors"
	"fmt"

	"github.com/example/campus-events/internal/persistence"
)

// mapRepoError converts persistence sentinels into application errors.
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrEventNotApproved):
		return ErrNotApproved
	case errors.Is(err, persistence.ErrEventFull):
		return ErrEventFull
	case errors.Is(err, persistence.ErrAlreadyRegistered):
		return ErrDuplicateRSVP
	case errors.Is(err, persistence.ErrNotRegistered):
		return ErrNoRSVP
	case errors.Is(err, persistence.ErrDuplicate):
		return &ConflictError{Reason: "already exists"}
	case errors.Is(err, persistence.ErrConstraintViolation):
		return singleFieldError("event", "violates a storage constraint")
	}
	return fmt.Errorf("repository: %w", err)
}
