package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Milestone is one reminder checkpoint before an event starts. A check at
// instant now matches events dated in [now+Lead, now+Lead+Window).
type Milestone struct {
	Name   string
	Lead   time.Duration
	Window time.Duration
	Title  string
	body   func(Event) string
}

// DayMilestone is the day-before reminder, checked hourly.
var DayMilestone = Milestone{
	Name:   "24h",
	Lead:   24 * time.Hour,
	Window: time.Hour,
	Title:  "Event Tomorrow",
	body: func(e Event) string {
		return fmt.Sprintf("%q starts tomorrow at %s, %s.", e.Title, e.Time, e.Location)
	},
}

// HourMilestone is the hour-before reminder, checked every ten minutes.
var HourMilestone = Milestone{
	Name:   "60m",
	Lead:   time.Hour,
	Window: 10 * time.Minute,
	Title:  "Event Starting Soon",
	body: func(e Event) string {
		return fmt.Sprintf("%q starts in 1 hour at %s.", e.Title, e.Location)
	},
}

// Milestones lists every reminder checkpoint.
var Milestones = []Milestone{DayMilestone, HourMilestone}

// MilestoneByName looks up a milestone.
func MilestoneByName(name string) (Milestone, bool) {
	for _, m := range Milestones {
		if m.Name == name {
			return m, true
		}
	}
	return Milestone{}, false
}

func (m Milestone) message(e Event) string {
	if m.body == nil {
		return fmt.Sprintf("%q starts soon.", e.Title)
	}
	return m.body(e)
}

// ReminderReport summarises one reminder check.
type ReminderReport struct {
	Milestone      string
	WindowStart    time.Time
	WindowEnd      time.Time
	EventsMatched  int
	EventsNotified int
	EventsSkipped  int
	InAppCreated   int
	PushAttempted  int
	PushFailed     int
}

// ReminderService finds approved events entering a milestone window and fans
// reminders out to their attendees.
type ReminderService struct {
	events     EventRepository
	users      UserDirectory
	markers    ReminderMarkers
	dispatcher *Dispatcher
	now        func() time.Time
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewReminderService constructs a reminder service. A nil markers repository
// disables de-duplication: every tick re-derives its events from the window.
func NewReminderService(events EventRepository, users UserDirectory, markers ReminderMarkers, dispatcher *Dispatcher, now func() time.Time) *ReminderService {
	return NewReminderServiceWithLogger(events, users, markers, dispatcher, now, nil)
}

// NewReminderServiceWithLogger constructs a reminder service with a specified logger.
func NewReminderServiceWithLogger(events EventRepository, users UserDirectory, markers ReminderMarkers, dispatcher *Dispatcher, now func() time.Time, logger *slog.Logger) *ReminderService {
	if now == nil {
		now = time.Now
	}
	return &ReminderService{
		events:     events,
		users:      users,
		markers:    markers,
		dispatcher: dispatcher,
		now:        now,
		logger:     defaultLogger(logger),
		tracer:     otel.Tracer(tracerName),
	}
}

// RunCheck performs one check for the milestone. Failures for one event are
// logged and do not stop the others.
func (s *ReminderService) RunCheck(ctx context.Context, m Milestone) (report ReminderReport, err error) {
	if s == nil {
		err = fmt.Errorf("ReminderService is nil")
		return
	}
	if s.events == nil || s.dispatcher == nil {
		err = fmt.Errorf("reminder service not configured")
		return
	}

	ctx, span := s.tracer.Start(ctx, "ReminderService.RunCheck", trace.WithAttributes(attribute.String("reminder.milestone", m.Name)))
	defer span.End()

	now := s.now()
	from := now.Add(m.Lead)
	before := from.Add(m.Window)
	report = ReminderReport{Milestone: m.Name, WindowStart: from, WindowEnd: before}

	logger := serviceLogger(ctx, s.logger, "ReminderService", "RunCheck",
		"milestone", m.Name,
		"window_start", from,
		"window_end", before,
	)
	defer func() {
		span.SetAttributes(
			attribute.Int("reminder.events_matched", report.EventsMatched),
			attribute.Int("reminder.in_app", report.InAppCreated),
			attribute.Int("reminder.push_failed", report.PushFailed),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			logger.ErrorContext(ctx, "reminder check failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "reminder check completed",
			"events_matched", report.EventsMatched,
			"events_notified", report.EventsNotified,
			"events_skipped", report.EventsSkipped,
			"in_app_created", report.InAppCreated,
			"push_attempted", report.PushAttempted,
			"push_failed", report.PushFailed,
		)
	}()

	events, err := s.events.FindEvents(ctx, EventQuery{
		Statuses:  []EventStatus{StatusApproved},
		From:      &from,
		Before:    &before,
		SortField: SortDate,
	})
	if err != nil {
		err = mapRepoError(err)
		return
	}
	report.EventsMatched = len(events)

	for _, event := range events {
		if ctx.Err() != nil {
			err = ctx.Err()
			return
		}
		if len(event.Attendees) == 0 {
			continue
		}
		s.remindEvent(ctx, logger.With("event_id", event.ID), m, event, now, &report)
	}
	return report, nil
}

func (s *ReminderService) remindEvent(ctx context.Context, logger *slog.Logger, m Milestone, event Event, now time.Time, report *ReminderReport) {
	if s.markers != nil {
		claimed, err := s.markers.ClaimReminder(ctx, event.ID, m.Name, now)
		if err != nil {
			logger.WarnContext(ctx, "failed to claim reminder marker", "error", err)
			report.EventsSkipped++
			return
		}
		if !claimed {
			report.EventsSkipped++
			return
		}
	}

	eventID := stringPtr(event.ID)
	body := m.message(event)
	data := map[string]string{"eventId": event.ID, "milestone": m.Name}

	inApp := make([]InAppRequest, len(event.Attendees))
	for i, a := range event.Attendees {
		inApp[i] = InAppRequest{
			RecipientID: a.UserID,
			Type:        NotificationReminder,
			Title:       m.Title,
			Body:        body,
			EventID:     eventID,
			Data:        data,
		}
	}
	created, err := s.dispatcher.RecordInAppMany(ctx, inApp)
	if err != nil {
		logger.WarnContext(ctx, "failed to record reminders", "error", err)
		if s.markers != nil {
			if relErr := s.markers.ReleaseReminder(ctx, event.ID, m.Name); relErr != nil {
				logger.WarnContext(ctx, "failed to release reminder marker", "error", relErr)
			}
		}
		report.EventsSkipped++
		return
	}
	report.InAppCreated += len(created)
	report.EventsNotified++

	if s.users == nil {
		return
	}
	users, err := s.users.FindUsersByIDs(ctx, event.AttendeeIDs())
	if err != nil {
		logger.WarnContext(ctx, "failed to resolve reminder push tokens", "error", err)
		return
	}
	pushData := map[string]string{"eventId": event.ID, "milestone": m.Name, "type": string(NotificationReminder)}
	var pushes []PushRequest
	for _, u := range users {
		if u.PushToken == nil || *u.PushToken == "" {
			continue
		}
		pushes = append(pushes, PushRequest{
			Token:    *u.PushToken,
			Title:    m.Title,
			Body:     body,
			Data:     pushData,
			ImageURL: event.ImageURL,
		})
	}
	if len(pushes) == 0 {
		return
	}
	results := s.dispatcher.DispatchBulk(ctx, pushes)
	report.PushAttempted += len(results)
	for _, r := range results {
		if !r.Delivered {
			report.PushFailed++
		}
	}
}
