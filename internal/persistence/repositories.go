package persistence

import (
	"context"
	"time"
)

// EventFilter narrows event queries. Zero values do not constrain.
type EventFilter struct {
	Statuses []string
	// OwnerID additionally matches events created by this user regardless of Statuses.
	OwnerID    string
	CreatorID  string
	AttendeeID string
	Category   string
	Search     string
	DateFrom   *time.Time
	DateBefore *time.Time
}

// Sort fields accepted by FindEvents.
const (
	SortByDate      = "date"
	SortByCreatedAt = "created_at"
	SortByTitle     = "title"
)

// EventSort orders event queries.
type EventSort struct {
	Field      string
	Descending bool
}

// Page bounds a listing. A zero Limit returns every match.
type Page struct {
	Limit  int
	Offset int
}

// EventMutator edits an event in place during a read-modify-write update.
type EventMutator func(*Event) error

// AttendeeMutator edits a single attendee record in place.
type AttendeeMutator func(*Attendee) error

// EventRepository stores events and their attendee lists.
//
// AddAttendee and RemoveAttendee are conditional writes: the precondition
// check and the write happen atomically.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) (Event, error)
	GetEvent(ctx context.Context, id string) (Event, error)
	FindEvents(ctx context.Context, filter EventFilter, sort EventSort, page Page) ([]Event, error)
	CountEvents(ctx context.Context, filter EventFilter) (int, error)
	UpdateEvent(ctx context.Context, id string, mutate EventMutator) (Event, error)
	DeleteEvent(ctx context.Context, id string) (Event, error)
	AddAttendee(ctx context.Context, eventID string, attendee Attendee, at time.Time) (Event, error)
	RemoveAttendee(ctx context.Context, eventID, userID string, at time.Time) (Event, error)
	UpdateAttendee(ctx context.Context, eventID, userID string, mutate AttendeeMutator) (Attendee, error)
}

// UserRepository exposes the user directory.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	FindUsersByIDs(ctx context.Context, ids []string) ([]User, error)
	SetPushToken(ctx context.Context, userID string, token *string) error
	AddRegistration(ctx context.Context, userID, eventID string) error
	RemoveRegistration(ctx context.Context, userID, eventID string) error
}

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	CreateNotifications(ctx context.Context, notifications []Notification) error
	ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, page Page) ([]Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, recipientID, id string, at time.Time) (Notification, error)
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error)
	DeleteNotification(ctx context.Context, recipientID, id string) error
}

// ReminderRepository records which reminder milestones were already sent.
type ReminderRepository interface {
	// ClaimReminder reports true when this call created the marker.
	ClaimReminder(ctx context.Context, eventID, milestone string, at time.Time) (bool, error)
	ReleaseReminder(ctx context.Context, eventID, milestone string) error
}
