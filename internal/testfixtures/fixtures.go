package testfixtures

import (
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/example/campus-events/internal/application"
	"github.com/example/campus-events/internal/persistence"
)

var (
	userCounter  uint64
	eventCounter uint64
)

// ----------------------------- User fixtures -----------------------------

// UserFixture is a deterministic directory entry.
type UserFixture struct {
	ID        string
	Name      string
	Email     string
	Role      application.Role
	PushToken *string
	CreatedAt time.Time
}

// UserOption configures a UserFixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a student with a generated ID and e-mail.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	fixture := UserFixture{
		ID:        id,
		Name:      fmt.Sprintf("Student %03d", idx),
		Email:     id + "@campus.example.edu",
		Role:      application.RoleStudent,
		CreatedAt: referenceTime.Add(-time.Duration(idx) * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
		f.Email = id + "@campus.example.edu"
	}
}

func WithUserName(name string) UserOption {
	return func(f *UserFixture) { f.Name = name }
}

func WithUserRole(role application.Role) UserOption {
	return func(f *UserFixture) { f.Role = role }
}

// WithPushToken gives the user a device token.
func WithPushToken(token string) UserOption {
	return func(f *UserFixture) { f.PushToken = &token }
}

// Application returns the fixture as an application.User.
func (f UserFixture) Application() application.User {
	return application.User{
		ID:        f.ID,
		Name:      f.Name,
		Email:     f.Email,
		Role:      f.Role,
		PushToken: cloneString(f.PushToken),
	}
}

// Principal returns the principal acting as this user.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, Role: f.Role}
}

// Persistence returns the fixture as a persistence.User.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:        f.ID,
		Name:      f.Name,
		Email:     f.Email,
		Role:      string(f.Role),
		PushToken: cloneString(f.PushToken),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.CreatedAt,
	}
}

// ----------------------------- Event fixtures -----------------------------

// EventFixture is a deterministic event. It starts approved, three days after
// ReferenceTime, with room for 50 attendees.
type EventFixture struct {
	ID           string
	Title        string
	Date         time.Time
	Category     string
	MaxAttendees int
	AttendeeIDs  []string
	Attended     []string
	Status       application.EventStatus
	CreatorID    string
	ImageURL     *string
	CreatedAt    time.Time
}

// EventOption configures an EventFixture.
type EventOption func(*EventFixture)

func NewEventFixture(opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	fixture := EventFixture{
		ID:           fmt.Sprintf("event-%03d", idx),
		Title:        fmt.Sprintf("Campus Event %03d", idx),
		Date:         referenceTime.Add(72 * time.Hour),
		Category:     "social",
		MaxAttendees: 50,
		Status:       application.StatusApproved,
		CreatorID:    "creator-001",
		CreatedAt:    referenceTime.Add(-24 * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

func WithEventID(id string) EventOption {
	return func(f *EventFixture) { f.ID = id }
}

func WithEventTitle(title string) EventOption {
	return func(f *EventFixture) { f.Title = title }
}

// WithEventDate sets the start instant.
func WithEventDate(date time.Time) EventOption {
	return func(f *EventFixture) { f.Date = date }
}

// WithEventStartingIn sets the start instant relative to ReferenceTime.
func WithEventStartingIn(d time.Duration) EventOption {
	return func(f *EventFixture) { f.Date = referenceTime.Add(d) }
}

func WithEventCategory(category string) EventOption {
	return func(f *EventFixture) { f.Category = category }
}

func WithEventCapacity(maxAttendees int) EventOption {
	return func(f *EventFixture) { f.MaxAttendees = maxAttendees }
}

func WithEventStatus(status application.EventStatus) EventOption {
	return func(f *EventFixture) { f.Status = status }
}

func WithEventCreator(id string) EventOption {
	return func(f *EventFixture) { f.CreatorID = id }
}

func WithEventImage(url string) EventOption {
	return func(f *EventFixture) { f.ImageURL = &url }
}

// WithAttendees registers the users in order, one minute apart.
func WithAttendees(ids ...string) EventOption {
	return func(f *EventFixture) { f.AttendeeIDs = append(f.AttendeeIDs, ids...) }
}

// WithAttended marks registered users as checked in.
func WithAttended(ids ...string) EventOption {
	return func(f *EventFixture) { f.Attended = append(f.Attended, ids...) }
}

// Application returns the fixture as an application.Event.
func (f EventFixture) Application() application.Event {
	event := application.Event{
		ID:           f.ID,
		Title:        f.Title,
		Description:  f.Title + " description",
		Date:         f.Date,
		Time:         f.Date.Format("15:04"),
		Location:     "Main Hall",
		Organizer:    "Student Council",
		Category:     f.Category,
		ImageURL:     cloneString(f.ImageURL),
		MaxAttendees: f.MaxAttendees,
		Status:       f.Status,
		CreatorID:    f.CreatorID,
		RSVPRequired: true,
		IsPublic:     true,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.CreatedAt,
	}
	manual := application.CheckInManual
	for i, id := range f.AttendeeIDs {
		a := application.Attendee{UserID: id, RSVPAt: f.CreatedAt.Add(time.Duration(i+1) * time.Minute)}
		if slices.Contains(f.Attended, id) {
			at := f.Date
			a.Attended = true
			a.AttendedAt = &at
			a.CheckInMethod = &manual
		}
		event.Attendees = append(event.Attendees, a)
	}
	event.CurrentAttendees = len(event.Attendees)
	return event
}

// Persistence returns the fixture as a persistence.Event.
func (f EventFixture) Persistence() persistence.Event {
	app := f.Application()
	event := persistence.Event{
		ID:               app.ID,
		Title:            app.Title,
		Description:      app.Description,
		Date:             app.Date,
		Time:             app.Time,
		Location:         app.Location,
		Organizer:        app.Organizer,
		Category:         app.Category,
		ImageURL:         app.ImageURL,
		MaxAttendees:     app.MaxAttendees,
		CurrentAttendees: app.CurrentAttendees,
		Status:           string(app.Status),
		CreatorID:        app.CreatorID,
		RSVPRequired:     app.RSVPRequired,
		IsPublic:         app.IsPublic,
		CreatedAt:        app.CreatedAt,
		UpdatedAt:        app.UpdatedAt,
	}
	for _, a := range app.Attendees {
		pa := persistence.Attendee{UserID: a.UserID, RSVPAt: a.RSVPAt, Attended: a.Attended, AttendedAt: a.AttendedAt}
		if a.CheckInMethod != nil {
			method := string(*a.CheckInMethod)
			pa.CheckInMethod = &method
		}
		event.Attendees = append(event.Attendees, pa)
	}
	return event
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
