package application

import (
	"context"
	"time"
)

// EventMutator edits an event during a read-modify-write update.
type EventMutator func(*Event) error

// AttendeeMutator edits one attendee record.
type AttendeeMutator func(*Attendee) error

// EventRepository captures the event store operations needed by the services.
//
// AddAttendee must check status, capacity and absence of the user and append
// the record in one atomic step, returning persistence.ErrEventNotApproved,
// ErrEventFull or ErrAlreadyRegistered when a precondition fails.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) (Event, error)
	GetEvent(ctx context.Context, id string) (Event, error)
	FindEvents(ctx context.Context, query EventQuery) ([]Event, error)
	CountEvents(ctx context.Context, query EventQuery) (int, error)
	UpdateEvent(ctx context.Context, id string, mutate EventMutator) (Event, error)
	DeleteEvent(ctx context.Context, id string) (Event, error)
	AddAttendee(ctx context.Context, eventID string, attendee Attendee, at time.Time) (Event, error)
	RemoveAttendee(ctx context.Context, eventID, userID string, at time.Time) (Event, error)
	UpdateAttendee(ctx context.Context, eventID, userID string, mutate AttendeeMutator) (Attendee, error)
}

// UserDirectory resolves users and maintains their registration lists.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (User, error)
	FindUsersByIDs(ctx context.Context, ids []string) ([]User, error)
	AddRegistration(ctx context.Context, userID, eventID string) error
	RemoveRegistration(ctx context.Context, userID, eventID string) error
	SetPushToken(ctx context.Context, userID string, token *string) error
}

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	CreateNotifications(ctx context.Context, notifications []Notification) error
	ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit, offset int) ([]Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, recipientID, id string, at time.Time) (Notification, error)
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error)
	DeleteNotification(ctx context.Context, recipientID, id string) error
}

// ReminderMarkers records which reminder milestones were already delivered.
type ReminderMarkers interface {
	ClaimReminder(ctx context.Context, eventID, milestone string, at time.Time) (bool, error)
	ReleaseReminder(ctx context.Context, eventID, milestone string) error
}

// PushMessage is one message for the external push channel.
type PushMessage struct {
	To       string
	Title    string
	Body     string
	Data     map[string]string
	ImageURL *string
}

// PushTicket is the channel's per-message receipt.
type PushTicket struct {
	ID      string
	OK      bool
	Message string
}

// PushChannel is the external push delivery service.
type PushChannel interface {
	IsValidToken(token string) bool
	MaxBatchSize() int
	SendBatch(ctx context.Context, messages []PushMessage) ([]PushTicket, error)
}
