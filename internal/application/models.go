package application

import "time"

// Role identifies the directory role of a user.
type Role string

const (
	RoleStudent Role = "student"
	// RoleCR is a class representative.
	RoleCR    Role = "cr"
	RoleAdmin Role = "admin"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID string
	Role   Role
}

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	StatusPending   EventStatus = "pending"
	StatusApproved  EventStatus = "approved"
	StatusRejected  EventStatus = "rejected"
	StatusCancelled EventStatus = "cancelled"
	StatusCompleted EventStatus = "completed"
)

// AllStatuses lists every lifecycle state in display order.
var AllStatuses = []EventStatus{StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusCompleted}

// Categories accepted for events.
var Categories = []string{"academic", "cultural", "sports", "technical", "social", "workshop", "seminar", "other"}

// CheckInMethod records how an attendee was checked in.
type CheckInMethod string

const (
	CheckInScan   CheckInMethod = "scan"
	CheckInManual CheckInMethod = "manual"
)

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotificationReminder         NotificationType = "reminder"
	NotificationUpdate           NotificationType = "update"
	NotificationCancellation     NotificationType = "cancellation"
	NotificationRSVPConfirmation NotificationType = "rsvp_confirmation"
	NotificationApproval         NotificationType = "approval"
	NotificationRejection        NotificationType = "rejection"
	NotificationGeneral          NotificationType = "general"
)

// DefaultRejectionReason is recorded when a moderator rejects without a reason.
const DefaultRejectionReason = "No reason provided"

// Attendee is one registration on an event.
type Attendee struct {
	UserID        string
	RSVPAt        time.Time
	Attended      bool
	AttendedAt    *time.Time
	CheckInMethod *CheckInMethod
}

// Event is a moderated campus activity with a capacity-limited attendee list.
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
	Status           EventStatus
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

// HasAttendee reports whether userID holds an attendee record.
func (e Event) HasAttendee(userID string) bool {
	return e.attendeeIndex(userID) >= 0
}

func (e Event) attendeeIndex(userID string) int {
	for i, a := range e.Attendees {
		if a.UserID == userID {
			return i
		}
	}
	return -1
}

// AttendeeIDs returns the user IDs of every attendee in list order.
func (e Event) AttendeeIDs() []string {
	ids := make([]string, len(e.Attendees))
	for i, a := range e.Attendees {
		ids[i] = a.UserID
	}
	return ids
}

// User is a directory entry.
type User struct {
	ID                 string
	Name               string
	Email              string
	Role               Role
	PushToken          *string
	RegisteredEventIDs []string
}

// UserSummary is the public projection of a user embedded in responses.
type UserSummary struct {
	ID    string
	Name  string
	Email string
	Role  Role
}

// Summary projects the user for embedding in read models.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// Notification is an in-app inbox entry.
type Notification struct {
	ID          string
	RecipientID string
	Type        NotificationType
	Title       string
	Body        string
	EventID     *string
	Data        map[string]string
	IsRead      bool
	ReadAt      *time.Time
	CreatedAt   time.Time
}

// EventInput captures caller supplied fields for a new event.
type EventInput struct {
	Title        string    `json:"title" validate:"required,max=200"`
	Description  string    `json:"description" validate:"required,max=5000"`
	Date         time.Time `json:"date"`
	Time         string    `json:"time" validate:"required,max=50"`
	Location     string    `json:"location" validate:"required,max=200"`
	Organizer    string    `json:"organizer" validate:"required,max=200"`
	Category     string    `json:"category" validate:"required,category"`
	ImageURL     *string   `json:"imageUrl" validate:"omitempty,url"`
	Tags         []string  `json:"tags" validate:"max=20,dive,required,max=50"`
	MaxAttendees int       `json:"maxAttendees" validate:"min=1,max=10000"`
	RSVPRequired *bool     `json:"rsvpRequired"`
	IsPublic     *bool     `json:"isPublic"`
}

// EventPatch captures the allow-listed fields an update may change. Nil
// fields are left untouched.
type EventPatch struct {
	Title        *string    `json:"title" validate:"omitnil,min=1,max=200"`
	Description  *string    `json:"description" validate:"omitnil,min=1,max=5000"`
	Date         *time.Time `json:"date"`
	Time         *string    `json:"time" validate:"omitnil,min=1,max=50"`
	Location     *string    `json:"location" validate:"omitnil,min=1,max=200"`
	Organizer    *string    `json:"organizer" validate:"omitnil,min=1,max=200"`
	Category     *string    `json:"category" validate:"omitnil,category"`
	ImageURL     *string    `json:"imageUrl" validate:"omitnil,url"`
	Tags         *[]string  `json:"tags" validate:"omitnil,max=20,dive,required,max=50"`
	MaxAttendees *int       `json:"maxAttendees" validate:"omitnil,min=1,max=10000"`
	RSVPRequired *bool      `json:"rsvpRequired"`
	IsPublic     *bool      `json:"isPublic"`
}

// CreateEventParams wraps the data required to create an event.
type CreateEventParams struct {
	Principal Principal
	Input     EventInput
}

// UpdateEventParams wraps the data required to update an event.
type UpdateEventParams struct {
	Principal Principal
	EventID   string
	Patch     EventPatch
}

// TransitionParams wraps a moderation status change.
type TransitionParams struct {
	Principal Principal
	EventID   string
	Status    EventStatus
	Reason    *string
}

// Sort fields accepted by ListEvents.
const (
	SortDate      = "date"
	SortCreatedAt = "createdAt"
	SortTitle     = "title"
)

// Listing limits.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ListEventsParams wraps the filters of an event listing.
type ListEventsParams struct {
	Principal  Principal
	Status     *EventStatus
	Category   string
	Search     string
	Upcoming   bool
	CreatedBy  bool
	SortField  string
	Descending bool
	Limit      int
	Offset     int
}

// EventQuery is the storage-facing form of a listing.
type EventQuery struct {
	Statuses   []EventStatus
	OwnerID    string
	CreatorID  string
	AttendeeID string
	Category   string
	Search     string
	From       *time.Time
	Before     *time.Time
	SortField  string
	Descending bool
	Limit      int
	Offset     int
}

// EventPage is one page of an event listing.
type EventPage struct {
	Events []Event
	Total  int
	Limit  int
	Offset int
}

// EventDetail joins an event with its creator summary.
type EventDetail struct {
	Event   Event
	Creator *UserSummary
}

// MarkAttendanceParams wraps a check-in change. A nil Attended toggles.
type MarkAttendanceParams struct {
	Principal Principal
	EventID   string
	UserID    string
	Attended  *bool
	Method    *CheckInMethod
}

// AttendeeDetail joins an attendee record with its user.
type AttendeeDetail struct {
	Attendee Attendee
	User     UserSummary
}

// AttendanceStats summarises the attendee list.
type AttendanceStats struct {
	TotalRSVPs     int
	AttendedCount  int
	PendingCount   int
	AttendanceRate float64
}

// AttendeeReport is the result of GetAttendees.
type AttendeeReport struct {
	EventID   string
	Attendees []AttendeeDetail
	Stats     AttendanceStats
}

// ListNotificationsParams wraps an inbox listing.
type ListNotificationsParams struct {
	Principal  Principal
	UnreadOnly bool
	Limit      int
	Offset     int
}
