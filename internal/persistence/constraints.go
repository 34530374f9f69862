package persistence

import "fmt"

var validStatuses = map[string]struct{}{
	"pending":   {},
	"approved":  {},
	"rejected":  {},
	"cancelled": {},
	"completed": {},
}

// CheckEvent enforces the event constraints that the SQLite schema expresses
// as CHECK clauses, for stores without a schema.
func CheckEvent(event Event) error {
	if _, ok := validStatuses[event.Status]; !ok {
		return fmt.Errorf("%w: status %q", ErrConstraintViolation, event.Status)
	}
	if event.MaxAttendees < 1 || event.MaxAttendees > 10000 {
		return fmt.Errorf("%w: max attendees %d", ErrConstraintViolation, event.MaxAttendees)
	}
	if event.CurrentAttendees > event.MaxAttendees {
		return fmt.Errorf("%w: %d attendees exceed capacity %d", ErrConstraintViolation, event.CurrentAttendees, event.MaxAttendees)
	}
	for _, a := range event.Attendees {
		if err := CheckAttendee(a); err != nil {
			return err
		}
	}
	return nil
}

// CheckAttendee requires check-in data to be present exactly when attended.
func CheckAttendee(a Attendee) error {
	if a.Attended && a.AttendedAt == nil {
		return fmt.Errorf("%w: attended without timestamp", ErrConstraintViolation)
	}
	if !a.Attended && (a.AttendedAt != nil || a.CheckInMethod != nil) {
		return fmt.Errorf("%w: check-in data without attendance", ErrConstraintViolation)
	}
	return nil
}
