package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/campus-events/internal/application"
	"github.com/example/campus-events/internal/config"
	httptransport "github.com/example/campus-events/internal/http"
	"github.com/example/campus-events/internal/persistence"
	"github.com/example/campus-events/internal/persistence/memory"
	"github.com/example/campus-events/internal/push"
	"github.com/example/campus-events/internal/testfixtures"
)

const studentToken = "ExponentPushToken[student-device]"

type pushRecorder struct {
	mu       sync.Mutex
	messages []push.Message
}

func (p *pushRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var batch []push.Message
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	p.messages = append(p.messages, batch...)
	p.mu.Unlock()

	tickets := make([]push.Ticket, len(batch))
	for i := range batch {
		tickets[i] = push.Ticket{Status: "ok", ID: "ticket"}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": tickets})
}

func (p *pushRecorder) sentTo(token string) []push.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []push.Message
	for _, m := range p.messages {
		if m.To == token {
			out = append(out, m)
		}
	}
	return out
}

type testApp struct {
	*app
	clock *testfixtures.Clock
	store *memory.Storage
	push  *pushRecorder
}

func newTestApp(t *testing.T, vars map[string]string) *testApp {
	t.Helper()

	recorder := &pushRecorder{}
	server := httptest.NewServer(recorder)
	t.Cleanup(server.Close)

	env := map[string]string{
		"CAMPUS_EVENTS_STORE":         config.StoreMemory,
		"CAMPUS_EVENTS_PUSH_ENDPOINT": server.URL,
	}
	for k, v := range vars {
		env[k] = v
	}
	cfg, err := config.LoadFrom(env)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	store := memory.Open()
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	users := []testfixtures.UserFixture{
		testfixtures.NewUserFixture(testfixtures.WithUserID("cr-1"), testfixtures.WithUserName("Casey"), testfixtures.WithUserRole(application.RoleCR)),
		testfixtures.NewUserFixture(testfixtures.WithUserID("admin-1"), testfixtures.WithUserRole(application.RoleAdmin)),
		testfixtures.NewUserFixture(testfixtures.WithUserID("student-1"), testfixtures.WithPushToken(studentToken)),
		testfixtures.NewUserFixture(testfixtures.WithUserID("student-2")),
	}
	for _, u := range users {
		if err := store.CreateUser(ctx, u.Persistence()); err != nil {
			t.Fatalf("seed user %s: %v", u.ID, err)
		}
	}

	clock := testfixtures.NewClock(time.Time{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApp(cfg, store, logger, clock.NowFunc())
	if err != nil {
		t.Fatalf("newApp returned error: %v", err)
	}
	return &testApp{app: a, clock: clock, store: store, push: recorder}
}

type response struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	ErrorCode string            `json:"error_code"`
	Errors    map[string]string `json:"errors"`
	Data      json.RawMessage   `json:"data"`
}

func (ta *testApp) call(t *testing.T, method, path, userID, body string) (int, response) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set(httptransport.UserIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)

	var resp response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: invalid response %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, resp
}

type eventView struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	CurrentAttendees int    `json:"currentAttendees"`
	CreatedBy        string `json:"createdBy"`
	Attendees        []struct {
		UserID   string `json:"userId"`
		Attended bool   `json:"attended"`
	} `json:"attendees"`
}

func decodeData[T any](t *testing.T, resp response) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		t.Fatalf("failed to decode data %s: %v", resp.Data, err)
	}
	return out
}

func eventBody(date time.Time, capacity int) string {
	return `{"title":"Hack Night","description":"Build something","date":"` + date.Format(time.RFC3339) +
		`","time":"7:00 PM","location":"Lab 3","organizer":"Coding Club","category":"technical","maxAttendees":` +
		strconv.Itoa(capacity) + `}`
}

func TestEventLifecycleEndToEnd(t *testing.T) {
	ta := newTestApp(t, nil)
	start := ta.clock.Now().Add(24*time.Hour + 30*time.Minute)

	status, resp := ta.call(t, http.MethodPost, "/events", "cr-1", eventBody(start, 1))
	if status != http.StatusCreated {
		t.Fatalf("create: got %d %+v", status, resp)
	}
	created := decodeData[eventView](t, resp)
	if created.Status != string(application.StatusPending) || created.CreatedBy != "cr-1" {
		t.Fatalf("unexpected created event %+v", created)
	}
	path := "/events/" + created.ID

	status, _ = ta.call(t, http.MethodPost, path+"/rsvp", "student-1", "")
	if status != http.StatusConflict {
		t.Fatalf("rsvp on pending event: got %d, want 409", status)
	}

	status, resp = ta.call(t, http.MethodPost, path+"/approve", "admin-1", "")
	if status != http.StatusOK || decodeData[eventView](t, resp).Status != string(application.StatusApproved) {
		t.Fatalf("approve: got %d %+v", status, resp)
	}

	status, resp = ta.call(t, http.MethodPost, path+"/rsvp", "student-1", "")
	if status != http.StatusOK {
		t.Fatalf("rsvp: got %d %+v", status, resp)
	}
	if got := decodeData[eventView](t, resp); got.CurrentAttendees != 1 {
		t.Fatalf("expected one attendee, got %+v", got)
	}

	status, resp = ta.call(t, http.MethodPost, path+"/rsvp", "student-2", "")
	if status != http.StatusConflict || resp.Message != "event is full" {
		t.Fatalf("rsvp on full event: got %d %q", status, resp.Message)
	}

	// Capacity is checked before duplicates, so a repeat RSVP on a full event
	// reports the event as full.
	status, resp = ta.call(t, http.MethodPost, path+"/rsvp", "student-1", "")
	if status != http.StatusConflict || resp.Message != "event is full" {
		t.Fatalf("duplicate rsvp on full event: got %d %q", status, resp.Message)
	}

	if sent := ta.push.sentTo(studentToken); len(sent) == 0 {
		t.Fatalf("expected an rsvp confirmation push to the student")
	}

	status, resp = ta.call(t, http.MethodGet, "/notifications", "student-1", "")
	if status != http.StatusOK {
		t.Fatalf("notifications: got %d", status)
	}
	inbox := decodeData[[]struct {
		Type string `json:"type"`
	}](t, resp)
	if len(inbox) == 0 || inbox[0].Type != string(application.NotificationRSVPConfirmation) {
		t.Fatalf("unexpected inbox %+v", inbox)
	}

	status, resp = ta.call(t, http.MethodPost, path+"/attendance", "admin-1", `{"userId":"student-1","checkInMethod":"scan"}`)
	if status != http.StatusOK || resp.Message != "Attendance marked" {
		t.Fatalf("attendance: got %d %+v", status, resp)
	}

	status, resp = ta.call(t, http.MethodGet, path+"/attendees", "cr-1", "")
	if status != http.StatusOK {
		t.Fatalf("attendees: got %d", status)
	}
	report := decodeData[struct {
		Stats struct {
			TotalRSVPs    int `json:"totalRSVPs"`
			AttendedCount int `json:"attendedCount"`
		} `json:"stats"`
	}](t, resp)
	if report.Stats.AttendedCount != 1 {
		t.Fatalf("unexpected attendance report %s", resp.Data)
	}

	status, _ = ta.call(t, http.MethodGet, path+"/attendees", "student-2", "")
	if status != http.StatusForbidden {
		t.Fatalf("attendees as student: got %d, want 403", status)
	}

	status, resp = ta.call(t, http.MethodDelete, path+"/rsvp", "student-1", "")
	if status != http.StatusOK || decodeData[eventView](t, resp).CurrentAttendees != 0 {
		t.Fatalf("cancel: got %d %+v", status, resp)
	}
	stored, err := ta.store.GetUser(context.Background(), "student-1")
	if err != nil {
		t.Fatalf("GetUser returned error: %v", err)
	}
	if len(stored.RegisteredEventIDs) != 0 {
		t.Fatalf("registration was not removed: %v", stored.RegisteredEventIDs)
	}
}

func TestRemindersEndToEnd(t *testing.T) {
	ta := newTestApp(t, nil)
	if ta.runner == nil {
		t.Fatalf("expected reminders to be enabled by default")
	}
	start := ta.clock.Now().Add(24*time.Hour + 30*time.Minute)

	_, resp := ta.call(t, http.MethodPost, "/events", "cr-1", eventBody(start, 10))
	id := decodeData[eventView](t, resp).ID
	ta.call(t, http.MethodPost, "/events/"+id+"/approve", "admin-1", "")
	ta.call(t, http.MethodPost, "/events/"+id+"/rsvp", "student-1", "")

	report, err := ta.runner.RunNow(context.Background(), application.DayMilestone.Name)
	if err != nil {
		t.Fatalf("RunNow returned error: %v", err)
	}
	if report.EventsNotified != 1 || report.InAppCreated != 1 || report.PushAttempted != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	report, err = ta.runner.RunNow(context.Background(), application.DayMilestone.Name)
	if err != nil {
		t.Fatalf("second RunNow returned error: %v", err)
	}
	if report.EventsNotified != 0 || report.EventsSkipped != 1 {
		t.Fatalf("expected the marker to suppress a repeat, got %+v", report)
	}

	reminders := 0
	for _, m := range ta.push.sentTo(studentToken) {
		if m.Data["milestone"] == application.DayMilestone.Name {
			reminders++
		}
	}
	if reminders != 1 {
		t.Fatalf("expected one reminder push, got %d", reminders)
	}
}

func TestNewAppWithoutDedupe(t *testing.T) {
	ta := newTestApp(t, map[string]string{"CAMPUS_EVENTS_REMINDER_DEDUPE": "false"})
	start := ta.clock.Now().Add(time.Hour + 5*time.Minute)

	_, resp := ta.call(t, http.MethodPost, "/events", "cr-1", eventBody(start, 10))
	id := decodeData[eventView](t, resp).ID
	ta.call(t, http.MethodPost, "/events/"+id+"/approve", "admin-1", "")
	ta.call(t, http.MethodPost, "/events/"+id+"/rsvp", "student-2", "")

	for i := 0; i < 2; i++ {
		report, err := ta.reminders.RunCheck(context.Background(), application.HourMilestone)
		if err != nil {
			t.Fatalf("RunCheck returned error: %v", err)
		}
		if report.EventsNotified != 1 {
			t.Fatalf("run %d: expected a reminder every tick, got %+v", i, report)
		}
	}
}

func TestNewAppRemindersDisabled(t *testing.T) {
	ta := newTestApp(t, map[string]string{"CAMPUS_EVENTS_REMINDERS_ENABLED": "false"})
	if ta.runner != nil {
		t.Fatalf("expected no reminder runner")
	}
}

func TestNewAppRejectsBadSchedule(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"CAMPUS_EVENTS_STORE":             config.StoreMemory,
		"CAMPUS_EVENTS_DAY_REMINDER_SPEC": "every now and then",
	})
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if _, err := newApp(cfg, memory.Open(), nil, nil); err == nil {
		t.Fatalf("expected an invalid schedule to be rejected")
	}
}

func TestHealthRouteIsPublic(t *testing.T) {
	ta := newTestApp(t, nil)
	status, resp := ta.call(t, http.MethodGet, "/healthz", "", "")
	if status != http.StatusOK || !resp.Success {
		t.Fatalf("got %d %+v", status, resp)
	}
	status, _ = ta.call(t, http.MethodGet, "/events", "", "")
	if status != http.StatusUnauthorized {
		t.Fatalf("events without identity: got %d, want 401", status)
	}
}

func TestOpenStorage(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{name: "memory", cfg: config.Config{Store: config.StoreMemory}},
		{name: "sqlite", cfg: config.Config{Store: config.StoreSQLite, SQLitePath: filepath.Join(t.TempDir(), "campus.db")}},
		{name: "unknown", cfg: config.Config{Store: "cassandra"}, wantErr: true},
		{name: "mongo without uri", cfg: config.Config{Store: config.StoreMongo}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := openStorage(context.Background(), tc.cfg, nil)
			if tc.wantErr {
				if err == nil {
					_ = store.Close()
					t.Fatalf("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("openStorage returned error: %v", err)
			}
			defer store.Close()
			if err := store.Ping(context.Background()); err != nil {
				t.Fatalf("Ping returned error: %v", err)
			}
		})
	}
}

func TestEventSortMapping(t *testing.T) {
	tests := map[string]string{
		"":                        persistence.SortByDate,
		application.SortDate:      persistence.SortByDate,
		application.SortCreatedAt: persistence.SortByCreatedAt,
		application.SortTitle:     persistence.SortByTitle,
	}
	for in, want := range tests {
		if got := toEventSort(application.EventQuery{SortField: in}).Field; got != want {
			t.Fatalf("toEventSort(%q) = %q, want %q", in, got, want)
		}
	}
}
