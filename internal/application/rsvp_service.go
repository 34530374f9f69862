package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RSVPService admits users to capacity-limited events and releases their seats.
type RSVPService struct {
	events EventRepository
	users  UserDirectory
	notify notifier
	now    func() time.Time
	logger *slog.Logger
}

// NewRSVPService constructs an RSVP service with the provided dependencies.
func NewRSVPService(events EventRepository, users UserDirectory, dispatcher *Dispatcher, now func() time.Time) *RSVPService {
	return NewRSVPServiceWithLogger(events, users, dispatcher, now, nil)
}

// NewRSVPServiceWithLogger constructs an RSVP service with a specified logger.
func NewRSVPServiceWithLogger(events EventRepository, users UserDirectory, dispatcher *Dispatcher, now func() time.Time, logger *slog.Logger) *RSVPService {
	if now == nil {
		now = time.Now
	}
	return &RSVPService{
		events: events,
		users:  users,
		notify: notifier{users: users, dispatcher: dispatcher},
		now:    now,
		logger: defaultLogger(logger),
	}
}

func (s *RSVPService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RSVPService", operation, attrs...)
}

// RSVP reserves a seat for the principal. The store checks approval, capacity
// and duplicate registration in the same atomic write that appends the
// attendee, so concurrent calls cannot overbook.
func (s *RSVPService) RSVP(ctx context.Context, principal Principal, eventID string) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("RSVPService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "RSVP",
		"principal_id", principal.UserID,
		"event_id", eventID,
	)
	defer func() {
		logOutcome(ctx, logger.With("current_attendees", event.CurrentAttendees), err, "rsvp rejected", "rsvp accepted")
	}()

	if principal.UserID == "" {
		err = ErrUnauthenticated
		return
	}

	now := s.now()
	event, err = s.events.AddAttendee(ctx, eventID, Attendee{UserID: principal.UserID, RSVPAt: now}, now)
	if err != nil {
		err = mapRepoError(err)
		return
	}

	if s.users == nil {
		return
	}
	if regErr := s.users.AddRegistration(ctx, principal.UserID, eventID); regErr != nil {
		logger.WarnContext(ctx, "failed to add registration", "error", regErr)
	}

	registrant, lookupErr := s.users.GetUser(ctx, principal.UserID)
	if lookupErr != nil {
		logger.WarnContext(ctx, "failed to load registrant for notifications", "error", lookupErr)
		registrant = User{ID: principal.UserID}
	}

	s.notify.notifyUsers(ctx, logger, []User{registrant}, OutboundMessage{
		Type:     NotificationRSVPConfirmation,
		Title:    "RSVP Confirmed",
		Body:     fmt.Sprintf("You're registered for %q on %s at %s.", event.Title, event.Date.Format("Jan 2, 2006"), event.Time),
		EventID:  stringPtr(event.ID),
		ImageURL: event.ImageURL,
	})

	if event.CreatorID != principal.UserID {
		name := registrant.Name
		if name == "" {
			name = "Someone"
		}
		s.notify.notifyIDs(ctx, logger, []string{event.CreatorID}, OutboundMessage{
			Type:    NotificationGeneral,
			Title:   "New RSVP",
			Body:    fmt.Sprintf("%s registered for %q.", name, event.Title),
			EventID: stringPtr(event.ID),
			Data:    map[string]string{"userId": principal.UserID},
		})
	}
	return
}

// CancelRSVP releases the principal's seat. No notification is sent.
func (s *RSVPService) CancelRSVP(ctx context.Context, principal Principal, eventID string) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("RSVPService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "CancelRSVP",
		"principal_id", principal.UserID,
		"event_id", eventID,
	)
	defer func() {
		logOutcome(ctx, logger, err, "rsvp cancellation rejected", "rsvp cancelled")
	}()

	if principal.UserID == "" {
		err = ErrUnauthenticated
		return
	}

	event, err = s.events.RemoveAttendee(ctx, eventID, principal.UserID, s.now())
	if err != nil {
		err = mapRepoError(err)
		return
	}

	if s.users != nil {
		if regErr := s.users.RemoveRegistration(ctx, principal.UserID, eventID); regErr != nil {
			logger.WarnContext(ctx, "failed to remove registration", "error", regErr)
		}
	}
	return
}
