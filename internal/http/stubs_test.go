package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/campus-events/internal/application"
)

var testNow = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type resolverStub struct {
	principals map[string]application.Principal
	err        error
}

func (r resolverStub) ResolvePrincipal(ctx context.Context, userID string) (application.Principal, error) {
	if r.err != nil {
		return application.Principal{}, r.err
	}
	p, ok := r.principals[userID]
	if !ok {
		return application.Principal{}, application.ErrUnauthenticated
	}
	return p, nil
}

func defaultResolver() resolverStub {
	return resolverStub{principals: map[string]application.Principal{
		"student-1": {UserID: "student-1", Role: application.RoleStudent},
		"admin-1":   {UserID: "admin-1", Role: application.RoleAdmin},
	}}
}

type eventServiceStub struct {
	err error

	created    application.CreateEventParams
	updated    application.UpdateEventParams
	deleted    string
	transition application.TransitionParams
	listed     application.ListEventsParams
	upcoming   bool

	event  application.Event
	detail application.EventDetail
	page   application.EventPage
	counts map[application.EventStatus]int
}

func (s *eventServiceStub) CreateEvent(ctx context.Context, params application.CreateEventParams) (application.Event, error) {
	s.created = params
	if s.err != nil {
		return application.Event{}, s.err
	}
	e := s.event
	e.Title = params.Input.Title
	e.Date = params.Input.Date
	e.CreatorID = params.Principal.UserID
	return e, nil
}

func (s *eventServiceStub) UpdateEvent(ctx context.Context, params application.UpdateEventParams) (application.Event, error) {
	s.updated = params
	return s.event, s.err
}

func (s *eventServiceStub) DeleteEvent(ctx context.Context, principal application.Principal, eventID string) error {
	s.deleted = eventID
	return s.err
}

func (s *eventServiceStub) TransitionEvent(ctx context.Context, params application.TransitionParams) (application.Event, error) {
	s.transition = params
	e := s.event
	e.Status = params.Status
	return e, s.err
}

func (s *eventServiceStub) GetEvent(ctx context.Context, principal application.Principal, eventID string) (application.EventDetail, error) {
	return s.detail, s.err
}

func (s *eventServiceStub) ListEvents(ctx context.Context, params application.ListEventsParams) (application.EventPage, error) {
	s.listed = params
	return s.page, s.err
}

func (s *eventServiceStub) ListRegisteredEvents(ctx context.Context, principal application.Principal, upcoming bool) ([]application.Event, error) {
	s.upcoming = upcoming
	return s.page.Events, s.err
}

func (s *eventServiceStub) CountByStatus(ctx context.Context, principal application.Principal) (map[application.EventStatus]int, error) {
	return s.counts, s.err
}

type rsvpServiceStub struct {
	err    error
	event  application.Event
	caller application.Principal
}

func (s *rsvpServiceStub) RSVP(ctx context.Context, principal application.Principal, eventID string) (application.Event, error) {
	s.caller = principal
	return s.event, s.err
}

func (s *rsvpServiceStub) CancelRSVP(ctx context.Context, principal application.Principal, eventID string) (application.Event, error) {
	s.caller = principal
	return s.event, s.err
}

type attendanceServiceStub struct {
	err    error
	marked application.MarkAttendanceParams
	report application.AttendeeReport
}

func (s *attendanceServiceStub) MarkAttendance(ctx context.Context, params application.MarkAttendanceParams) (application.Attendee, error) {
	s.marked = params
	if s.err != nil {
		return application.Attendee{}, s.err
	}
	a := application.Attendee{UserID: params.UserID, RSVPAt: testNow}
	if params.Attended == nil || *params.Attended {
		a.Attended = true
		a.AttendedAt = &testNow
		a.CheckInMethod = params.Method
	}
	return a, nil
}

func (s *attendanceServiceStub) GetAttendees(ctx context.Context, principal application.Principal, eventID string) (application.AttendeeReport, error) {
	return s.report, s.err
}

type notificationServiceStub struct {
	err      error
	listed   application.ListNotificationsParams
	list     []application.Notification
	unread   int
	token    *string
	tokenSet bool
}

func (s *notificationServiceStub) ListNotifications(ctx context.Context, params application.ListNotificationsParams) ([]application.Notification, error) {
	s.listed = params
	return s.list, s.err
}

func (s *notificationServiceStub) UnreadCount(ctx context.Context, principal application.Principal) (int, error) {
	return s.unread, s.err
}

func (s *notificationServiceStub) MarkRead(ctx context.Context, principal application.Principal, id string) (application.Notification, error) {
	if s.err != nil {
		return application.Notification{}, s.err
	}
	return application.Notification{ID: id, RecipientID: principal.UserID, IsRead: true, ReadAt: &testNow, CreatedAt: testNow}, nil
}

func (s *notificationServiceStub) MarkAllRead(ctx context.Context, principal application.Principal) (int, error) {
	return s.unread, s.err
}

func (s *notificationServiceStub) DeleteNotification(ctx context.Context, principal application.Principal, id string) error {
	return s.err
}

func (s *notificationServiceStub) RegisterPushToken(ctx context.Context, principal application.Principal, token *string) error {
	s.token = token
	s.tokenSet = true
	return s.err
}

type pingerStub struct {
	err error
}

func (p pingerStub) Ping(context.Context) error { return p.err }

type testServer struct {
	events        *eventServiceStub
	rsvps         *rsvpServiceStub
	attendance    *attendanceServiceStub
	notifications *notificationServiceStub
	pinger        *pingerStub
	handler       http.Handler
}

func newTestServer() *testServer {
	ts := &testServer{
		events:        &eventServiceStub{event: application.Event{ID: "evt-1", Status: application.StatusPending, CreatedAt: testNow, UpdatedAt: testNow}},
		rsvps:         &rsvpServiceStub{},
		attendance:    &attendanceServiceStub{},
		notifications: &notificationServiceStub{},
		pinger:        &pingerStub{},
	}
	logger := quietLogger()
	ts.handler = NewRouter(RouterConfig{
		Events:        NewEventHandler(ts.events, logger),
		RSVPs:         NewRSVPHandler(ts.rsvps, ts.attendance, logger),
		Notifications: NewNotificationHandler(ts.notifications, logger),
		Health:        NewHealthHandler(ts.pinger, logger),
		Identity:      RequireIdentity(defaultResolver(), logger),
		Middleware:    []func(http.Handler) http.Handler{RequestLogger(logger)},
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, userID, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("response is not an envelope: %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

// dataMap decodes the envelope data of the last response.
func dataMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var raw struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	return raw.Data
}

var errStoreDown = errors.New("store down")
