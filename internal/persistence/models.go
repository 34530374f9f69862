package persistence

import "time"

// User represents a campus directory entry.
type User struct {
	ID                 string
	Name               string
	Email              string
	Role               string
	PushToken          *string
	RegisteredEventIDs []string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Event represents a campus event record including its attendee list.
type Event struct {
	ID               string
	Title            string
	Description      string
	Date             time.Time
	Time             string
	Location         string
	Organizer        string
	Category         string
	ImageURL         *string
	Tags             []string
	MaxAttendees     int
	CurrentAttendees int
	Attendees        []Attendee
	Status           string
	ApprovedBy       *string
	ApprovedAt       *time.Time
	RejectionReason  *string
	RejectedBy       *string
	RejectedAt       *time.Time
	CreatorID        string
	RSVPRequired     bool
	IsPublic         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Attendee is a single registration on an event.
type Attendee struct {
	UserID        string
	RSVPAt        time.Time
	Attended      bool
	AttendedAt    *time.Time
	CheckInMethod *string
}

// Notification is an in-app inbox entry.
type Notification struct {
	ID          string
	RecipientID string
	Type        string
	Title       string
	Body        string
	EventID     *string
	Data        map[string]string
	IsRead      bool
	ReadAt      *time.Time
	CreatedAt   time.Time
}
