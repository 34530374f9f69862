package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// EventService drives the event lifecycle: creation, edits, deletion and
// moderation transitions.
type EventService struct {
	events      EventRepository
	users       UserDirectory
	notify      notifier
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewEventService constructs an event service with the provided dependencies.
func NewEventService(events EventRepository, users UserDirectory, dispatcher *Dispatcher, idGenerator func() string, now func() time.Time) *EventService {
	return NewEventServiceWithLogger(events, users, dispatcher, idGenerator, now, nil)
}

// NewEventServiceWithLogger constructs an event service with a specified logger.
func NewEventServiceWithLogger(events EventRepository, users UserDirectory, dispatcher *Dispatcher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EventService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &EventService{
		events:      events,
		users:       users,
		notify:      notifier{users: users, dispatcher: dispatcher},
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

// CreateEvent validates input and stores a new pending event owned by the principal.
func (s *EventService) CreateEvent(ctx context.Context, params CreateEventParams) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateEvent", "principal_id", params.Principal.UserID)
	defer func() {
		logOutcome(ctx, logger.With("event_id", event.ID), err, "failed to create event", "event created")
	}()

	if params.Principal.UserID == "" {
		err = ErrUnauthenticated
		return
	}

	now := s.now()
	input := trimInput(params.Input)
	vErr := validateStruct(input)
	vErr.merge(validateFutureDate("date", input.Date, now))
	if vErr.HasErrors() {
		err = vErr
		return
	}

	event = Event{
		ID:           s.idGenerator(),
		Title:        input.Title,
		Description:  input.Description,
		Date:         input.Date.UTC(),
		Time:         input.Time,
		Location:     input.Location,
		Organizer:    input.Organizer,
		Category:     input.Category,
		ImageURL:     input.ImageURL,
		Tags:         normalizeTags(input.Tags),
		MaxAttendees: input.MaxAttendees,
		Status:       StatusPending,
		CreatorID:    params.Principal.UserID,
		RSVPRequired: boolOr(input.RSVPRequired, true),
		IsPublic:     boolOr(input.IsPublic, true),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if s.events == nil {
		return
	}

	var persisted Event
	persisted, err = s.events.CreateEvent(ctx, event)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	event = persisted
	return
}

// UpdateEvent applies an allow-listed patch for the creator or a moderator and
// tells current attendees about the change.
func (s *EventService) UpdateEvent(ctx context.Context, params UpdateEventParams) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateEvent",
		"principal_id", params.Principal.UserID,
		"event_id", params.EventID,
	)
	defer func() {
		logOutcome(ctx, logger, err, "failed to update event", "event updated")
	}()

	var existing Event
	existing, err = s.events.GetEvent(ctx, params.EventID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if !canManage(params.Principal, existing) {
		err = ErrForbidden
		return
	}

	now := s.now()
	patch := trimPatch(params.Patch)
	vErr := validatePatch(patch)
	if patch.Date != nil {
		vErr.merge(validateFutureDate("date", *patch.Date, now))
	}
	if patch.MaxAttendees != nil {
		vErr.merge(validateCapacity(*patch.MaxAttendees, existing.CurrentAttendees))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	event, err = s.events.UpdateEvent(ctx, params.EventID, func(e *Event) error {
		if patch.MaxAttendees != nil {
			if capErr := validateCapacity(*patch.MaxAttendees, e.CurrentAttendees); capErr.HasErrors() {
				return capErr
			}
		}
		applyPatch(e, patch)
		e.UpdatedAt = now
		return nil
	})
	if err != nil {
		var capErr *ValidationError
		if !errors.As(err, &capErr) {
			err = mapRepoError(err)
		}
		return
	}

	if event.CurrentAttendees > 0 {
		s.notify.notifyIDs(ctx, logger, event.AttendeeIDs(), OutboundMessage{
			Type:    NotificationUpdate,
			Title:   "Event Updated",
			Body:    fmt.Sprintf("%q has been updated. Check the latest details.", event.Title),
			EventID: stringPtr(event.ID),
		})
	}
	return
}

// DeleteEvent removes an event for the creator or a moderator. Attendees are
// told before deletion and the event is stripped from their registration
// lists afterwards. Anyone who registered between the read and the delete is
// taken from the removed event and notified late.
func (s *EventService) DeleteEvent(ctx context.Context, principal Principal, eventID string) (err error) {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return fmt.Errorf("event repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteEvent",
		"principal_id", principal.UserID,
		"event_id", eventID,
	)
	defer func() {
		logOutcome(ctx, logger, err, "failed to delete event", "event deleted")
	}()

	existing, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return mapRepoError(err)
	}
	if !canManage(principal, existing) {
		return ErrForbidden
	}

	cancellation := func(userIDs []string) {
		if len(userIDs) == 0 {
			return
		}
		s.notify.notifyIDs(ctx, logger, userIDs, OutboundMessage{
			Type:    NotificationCancellation,
			Title:   "Event Cancelled",
			Body:    fmt.Sprintf("%q has been cancelled.", existing.Title),
			EventID: stringPtr(existing.ID),
		})
	}
	cancellation(existing.AttendeeIDs())

	removed, err := s.events.DeleteEvent(ctx, eventID)
	if err != nil {
		return mapRepoError(err)
	}

	var late []string
	for _, userID := range removed.AttendeeIDs() {
		if !existing.HasAttendee(userID) {
			late = append(late, userID)
		}
	}
	cancellation(late)

	if s.users != nil {
		for _, userID := range removed.AttendeeIDs() {
			if cleanupErr := s.users.RemoveRegistration(ctx, userID, eventID); cleanupErr != nil {
				logger.WarnContext(ctx, "failed to remove registration after delete", "user_id", userID, "error", cleanupErr)
			}
		}
	}
	return nil
}

// TransitionEvent moves an event to pending, approved or rejected. Only
// moderators may transition; the creator is notified when the status changed.
func (s *EventService) TransitionEvent(ctx context.Context, params TransitionParams) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "TransitionEvent",
		"principal_id", params.Principal.UserID,
		"event_id", params.EventID,
		"target_status", params.Status,
	)
	defer func() {
		logOutcome(ctx, logger, err, "failed to transition event", "event transitioned")
	}()

	if !HasModeratorCapability(params.Principal) {
		err = ErrForbidden
		return
	}
	switch params.Status {
	case StatusPending, StatusApproved, StatusRejected:
	default:
		err = singleFieldError("status", "must be one of pending, approved, rejected")
		return
	}

	now := s.now()
	var previous EventStatus
	event, err = s.events.UpdateEvent(ctx, params.EventID, func(e *Event) error {
		previous = e.Status
		applyTransition(e, params.Status, params.Principal.UserID, params.Reason, now)
		return nil
	})
	if err != nil {
		err = mapRepoError(err)
		return
	}

	if previous != event.Status {
		s.notifyCreator(ctx, logger, event)
	}
	return
}

func (s *EventService) notifyCreator(ctx context.Context, logger *slog.Logger, event Event) {
	msg := OutboundMessage{EventID: stringPtr(event.ID), ImageURL: event.ImageURL}
	switch event.Status {
	case StatusApproved:
		msg.Type = NotificationApproval
		msg.Title = "Event Approved"
		msg.Body = fmt.Sprintf("Your event %q has been approved.", event.Title)
	case StatusRejected:
		reason := DefaultRejectionReason
		if event.RejectionReason != nil {
			reason = *event.RejectionReason
		}
		msg.Type = NotificationRejection
		msg.Title = "Event Rejected"
		msg.Body = fmt.Sprintf("Your event %q was rejected. Reason: %s", event.Title, reason)
	default:
		msg.Type = NotificationGeneral
		msg.Title = "Event Status Updated"
		msg.Body = fmt.Sprintf("Your event %q is now %s.", event.Title, event.Status)
	}
	s.notify.notifyIDs(ctx, logger, []string{event.CreatorID}, msg)
}

// GetEvent returns an event with its creator summary. Events that are not
// approved are visible only to their creator and moderators.
func (s *EventService) GetEvent(ctx context.Context, principal Principal, eventID string) (detail EventDetail, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = ErrNotFound
		return
	}

	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if !canView(principal, event) {
		err = ErrNotFound
		return
	}

	detail.Event = event
	if s.users != nil {
		creator, lookupErr := s.users.GetUser(ctx, event.CreatorID)
		if lookupErr == nil {
			summary := creator.Summary()
			detail.Creator = &summary
		}
	}
	return detail, nil
}

// ListEvents returns one page of the events visible to the principal.
// Non-moderators see approved events plus their own.
func (s *EventService) ListEvents(ctx context.Context, params ListEventsParams) (page EventPage, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListEvents", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list events", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	query, vErr := s.buildListQuery(params)
	if vErr.HasErrors() {
		err = vErr
		return
	}
	page = EventPage{Limit: query.Limit, Offset: query.Offset}
	if s.events == nil {
		return
	}

	page.Events, err = s.events.FindEvents(ctx, query)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	page.Total, err = s.events.CountEvents(ctx, query)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	return
}

func (s *EventService) buildListQuery(params ListEventsParams) (EventQuery, *ValidationError) {
	vErr := &ValidationError{}
	query := EventQuery{
		Category:   strings.ToLower(strings.TrimSpace(params.Category)),
		Search:     strings.TrimSpace(params.Search),
		SortField:  params.SortField,
		Descending: params.Descending,
		Limit:      params.Limit,
		Offset:     params.Offset,
	}

	switch query.SortField {
	case "", SortDate, SortCreatedAt, SortTitle:
	default:
		vErr.add("sort", "must be one of date, createdAt, title")
	}
	if query.Limit == 0 {
		query.Limit = DefaultPageLimit
	}
	if query.Limit < 0 || query.Limit > MaxPageLimit {
		vErr.add("limit", fmt.Sprintf("must be between 1 and %d", MaxPageLimit))
	}
	if query.Offset < 0 {
		vErr.add("offset", "must not be negative")
	}
	if query.Category != "" && !slices.Contains(Categories, query.Category) {
		vErr.add("category", "must be one of "+strings.Join(Categories, ", "))
	}

	moderator := HasModeratorCapability(params.Principal)
	if params.Status != nil {
		if !slices.Contains(AllStatuses, *params.Status) {
			vErr.add("status", "is not a known status")
		}
		query.Statuses = []EventStatus{*params.Status}
		if !moderator && *params.Status != StatusApproved {
			query.CreatorID = params.Principal.UserID
		}
	} else if !moderator {
		query.Statuses = []EventStatus{StatusApproved}
		query.OwnerID = params.Principal.UserID
	}
	if params.CreatedBy {
		query.CreatorID = params.Principal.UserID
	}
	if params.Upcoming {
		from := s.now()
		query.From = &from
	}
	return query, vErr
}

// ListRegisteredEvents returns the events the principal holds an RSVP for,
// soonest first.
func (s *EventService) ListRegisteredEvents(ctx context.Context, principal Principal, upcoming bool) (events []Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if principal.UserID == "" {
		err = ErrUnauthenticated
		return
	}
	if s.events == nil {
		return nil, nil
	}

	query := EventQuery{AttendeeID: principal.UserID, SortField: SortDate}
	if upcoming {
		from := s.now()
		query.From = &from
	}
	events, err = s.events.FindEvents(ctx, query)
	if err != nil {
		err = mapRepoError(err)
		s.loggerWith(ctx, "ListRegisteredEvents", "principal_id", principal.UserID).
			ErrorContext(ctx, "failed to list registered events", "error", err, "error_kind", ErrorKind(err))
	}
	return
}

// CountByStatus returns the number of events per status for moderators.
func (s *EventService) CountByStatus(ctx context.Context, principal Principal) (counts map[EventStatus]int, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if !HasModeratorCapability(principal) {
		err = ErrForbidden
		return
	}

	counts = make(map[EventStatus]int, len(AllStatuses))
	if s.events == nil {
		return counts, nil
	}
	for _, status := range AllStatuses {
		n, countErr := s.events.CountEvents(ctx, EventQuery{Statuses: []EventStatus{status}})
		if countErr != nil {
			err = mapRepoError(countErr)
			return nil, err
		}
		counts[status] = n
	}
	return counts, nil
}

// applyTransition sets the status and keeps moderation metadata mutually
// exclusive.
func applyTransition(e *Event, status EventStatus, actorID string, reason *string, now time.Time) {
	e.Status = status
	e.UpdatedAt = now
	switch status {
	case StatusApproved:
		e.ApprovedBy = stringPtr(actorID)
		e.ApprovedAt = &now
		e.RejectionReason, e.RejectedBy, e.RejectedAt = nil, nil, nil
	case StatusRejected:
		r := DefaultRejectionReason
		if reason != nil && strings.TrimSpace(*reason) != "" {
			r = strings.TrimSpace(*reason)
		}
		e.RejectionReason = &r
		e.RejectedBy = stringPtr(actorID)
		e.RejectedAt = &now
		e.ApprovedBy, e.ApprovedAt = nil, nil
	default:
		e.ApprovedBy, e.ApprovedAt = nil, nil
		e.RejectionReason, e.RejectedBy, e.RejectedAt = nil, nil, nil
	}
}

func applyPatch(e *Event, patch EventPatch) {
	if patch.Title != nil {
		e.Title = *patch.Title
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.Date != nil {
		e.Date = patch.Date.UTC()
	}
	if patch.Time != nil {
		e.Time = *patch.Time
	}
	if patch.Location != nil {
		e.Location = *patch.Location
	}
	if patch.Organizer != nil {
		e.Organizer = *patch.Organizer
	}
	if patch.Category != nil {
		e.Category = *patch.Category
	}
	if patch.ImageURL != nil {
		e.ImageURL = normalizeOptionalString(patch.ImageURL)
	}
	if patch.Tags != nil {
		e.Tags = normalizeTags(*patch.Tags)
	}
	if patch.MaxAttendees != nil {
		e.MaxAttendees = *patch.MaxAttendees
	}
	if patch.RSVPRequired != nil {
		e.RSVPRequired = *patch.RSVPRequired
	}
	if patch.IsPublic != nil {
		e.IsPublic = *patch.IsPublic
	}
}

func validateFutureDate(field string, date, now time.Time) *ValidationError {
	switch {
	case date.IsZero():
		return singleFieldError(field, "is required")
	case !date.After(now):
		return singleFieldError(field, "must be in the future")
	}
	return nil
}

func validateCapacity(maxAttendees, current int) *ValidationError {
	if maxAttendees < current {
		return singleFieldError("maxAttendees", fmt.Sprintf("cannot be below the current attendee count (%d)", current))
	}
	return nil
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}
