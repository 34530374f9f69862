package mongo

import (
	"time"

	"github.com/example/campus-events/internal/persistence"
)

type attendeeDoc struct {
	UserID        string     `bson:"userId"`
	RSVPAt        time.Time  `bson:"rsvpAt"`
	Attended      bool       `bson:"attended"`
	AttendedAt    *time.Time `bson:"attendedAt,omitempty"`
	CheckInMethod *string    `bson:"checkInMethod,omitempty"`
}

type eventDoc struct {
	ID               string        `bson:"_id"`
	Title            string        `bson:"title"`
	Description      string        `bson:"description"`
	Date             time.Time     `bson:"date"`
	Time             string        `bson:"time"`
	Location         string        `bson:"location"`
	Organizer        string        `bson:"organizer"`
	Category         string        `bson:"category"`
	ImageURL         *string       `bson:"imageUrl,omitempty"`
	Tags             []string      `bson:"tags"`
	MaxAttendees     int           `bson:"maxAttendees"`
	CurrentAttendees int           `bson:"currentAttendees"`
	Attendees        []attendeeDoc `bson:"attendees"`
	Status           string        `bson:"status"`
	ApprovedBy       *string       `bson:"approvedBy,omitempty"`
	ApprovedAt       *time.Time    `bson:"approvedAt,omitempty"`
	RejectionReason  *string       `bson:"rejectionReason,omitempty"`
	RejectedBy       *string       `bson:"rejectedBy,omitempty"`
	RejectedAt       *time.Time    `bson:"rejectedAt,omitempty"`
	CreatorID        string        `bson:"creatorId"`
	RSVPRequired     bool          `bson:"rsvpRequired"`
	IsPublic         bool          `bson:"isPublic"`
	CreatedAt        time.Time     `bson:"createdAt"`
	UpdatedAt        time.Time     `bson:"updatedAt"`
	// Version increases on every write and guards read-modify-write updates.
	Version int64 `bson:"version"`
}

type userDoc struct {
	ID               string    `bson:"_id"`
	Name             string    `bson:"name"`
	Email            string    `bson:"email"`
	Role             string    `bson:"role"`
	PushToken        *string   `bson:"pushToken,omitempty"`
	RegisteredEvents []string  `bson:"registeredEvents"`
	CreatedAt        time.Time `bson:"createdAt"`
	UpdatedAt        time.Time `bson:"updatedAt"`
}

type notificationDoc struct {
	ID          string            `bson:"_id"`
	RecipientID string            `bson:"recipientId"`
	Type        string            `bson:"type"`
	Title       string            `bson:"title"`
	Body        string            `bson:"message"`
	EventID     *string           `bson:"eventId,omitempty"`
	Data        map[string]string `bson:"data,omitempty"`
	IsRead      bool              `bson:"isRead"`
	ReadAt      *time.Time        `bson:"readAt,omitempty"`
	CreatedAt   time.Time         `bson:"createdAt"`
	Seq         int64             `bson:"seq"`
}

type reminderDoc struct {
	ID        string    `bson:"_id"`
	EventID   string    `bson:"eventId"`
	Milestone string    `bson:"milestone"`
	ClaimedAt time.Time `bson:"claimedAt"`
}

func reminderID(eventID, milestone string) string {
	return eventID + "|" + milestone
}

// BSON dates carry millisecond precision; times are truncated on the way in
// so that a round trip is lossless.
func utcMillis(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func utcMillisPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := utcMillis(*t)
	return &v
}

func toAttendeeDoc(a persistence.Attendee) attendeeDoc {
	return attendeeDoc{
		UserID:        a.UserID,
		RSVPAt:        utcMillis(a.RSVPAt),
		Attended:      a.Attended,
		AttendedAt:    utcMillisPtr(a.AttendedAt),
		CheckInMethod: a.CheckInMethod,
	}
}

func fromAttendeeDoc(d attendeeDoc) persistence.Attendee {
	return persistence.Attendee{
		UserID:        d.UserID,
		RSVPAt:        d.RSVPAt.UTC(),
		Attended:      d.Attended,
		AttendedAt:    utcMillisPtr(d.AttendedAt),
		CheckInMethod: d.CheckInMethod,
	}
}

func toEventDoc(e persistence.Event, version int64) eventDoc {
	doc := eventDoc{
		ID:               e.ID,
		Title:            e.Title,
		Description:      e.Description,
		Date:             utcMillis(e.Date),
		Time:             e.Time,
		Location:         e.Location,
		Organizer:        e.Organizer,
		Category:         e.Category,
		ImageURL:         e.ImageURL,
		Tags:             e.Tags,
		MaxAttendees:     e.MaxAttendees,
		CurrentAttendees: len(e.Attendees),
		Attendees:        make([]attendeeDoc, len(e.Attendees)),
		Status:           e.Status,
		ApprovedBy:       e.ApprovedBy,
		ApprovedAt:       utcMillisPtr(e.ApprovedAt),
		RejectionReason:  e.RejectionReason,
		RejectedBy:       e.RejectedBy,
		RejectedAt:       utcMillisPtr(e.RejectedAt),
		CreatorID:        e.CreatorID,
		RSVPRequired:     e.RSVPRequired,
		IsPublic:         e.IsPublic,
		CreatedAt:        utcMillis(e.CreatedAt),
		UpdatedAt:        utcMillis(e.UpdatedAt),
		Version:          version,
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	for i, a := range e.Attendees {
		doc.Attendees[i] = toAttendeeDoc(a)
	}
	return doc
}

func fromEventDoc(d eventDoc) persistence.Event {
	e := persistence.Event{
		ID:               d.ID,
		Title:            d.Title,
		Description:      d.Description,
		Date:             d.Date.UTC(),
		Time:             d.Time,
		Location:         d.Location,
		Organizer:        d.Organizer,
		Category:         d.Category,
		ImageURL:         d.ImageURL,
		Tags:             d.Tags,
		MaxAttendees:     d.MaxAttendees,
		CurrentAttendees: d.CurrentAttendees,
		Status:           d.Status,
		ApprovedBy:       d.ApprovedBy,
		ApprovedAt:       utcMillisPtr(d.ApprovedAt),
		RejectionReason:  d.RejectionReason,
		RejectedBy:       d.RejectedBy,
		RejectedAt:       utcMillisPtr(d.RejectedAt),
		CreatorID:        d.CreatorID,
		RSVPRequired:     d.RSVPRequired,
		IsPublic:         d.IsPublic,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	for _, a := range d.Attendees {
		e.Attendees = append(e.Attendees, fromAttendeeDoc(a))
	}
	return e
}

func toUserDoc(u persistence.User) userDoc {
	doc := userDoc{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Role:             u.Role,
		PushToken:        u.PushToken,
		RegisteredEvents: u.RegisteredEventIDs,
		CreatedAt:        utcMillis(u.CreatedAt),
		UpdatedAt:        utcMillis(u.UpdatedAt),
	}
	if doc.RegisteredEvents == nil {
		doc.RegisteredEvents = []string{}
	}
	return doc
}

func fromUserDoc(d userDoc) persistence.User {
	return persistence.User{
		ID:                 d.ID,
		Name:               d.Name,
		Email:              d.Email,
		Role:               d.Role,
		PushToken:          d.PushToken,
		RegisteredEventIDs: d.RegisteredEvents,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
}

func toNotificationDoc(n persistence.Notification, seq int64) notificationDoc {
	return notificationDoc{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Type:        n.Type,
		Title:       n.Title,
		Body:        n.Body,
		EventID:     n.EventID,
		Data:        n.Data,
		IsRead:      n.IsRead,
		ReadAt:      utcMillisPtr(n.ReadAt),
		CreatedAt:   utcMillis(n.CreatedAt),
		Seq:         seq,
	}
}

func fromNotificationDoc(d notificationDoc) persistence.Notification {
	return persistence.Notification{
		ID:          d.ID,
		RecipientID: d.RecipientID,
		Type:        d.Type,
		Title:       d.Title,
		Body:        d.Body,
		EventID:     d.EventID,
		Data:        d.Data,
		IsRead:      d.IsRead,
		ReadAt:      utcMillisPtr(d.ReadAt),
		CreatedAt:   d.CreatedAt.UTC(),
	}
}
