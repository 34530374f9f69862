package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/example/campus-events/internal/persistence"
)

var testNow = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func moderator() Principal { return Principal{UserID: "admin-1", Role: RoleAdmin} }

func student(id string) Principal { return Principal{UserID: id, Role: RoleStudent} }

// eventStoreStub keeps events in memory and performs admission under one
// mutex, the way the real stores do it in one conditional write.
type eventStoreStub struct {
	mu       sync.Mutex
	events   map[string]Event
	err      error
	queries  []EventQuery
	found    []Event
	count    int
	deleted  []string
	createFn func(Event) error
	// onDelete runs against the stored event just before it is removed.
	onDelete func(*Event)
}

func newEventStoreStub(events ...Event) *eventStoreStub {
	s := &eventStoreStub{events: make(map[string]Event)}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *eventStoreStub) CreateEvent(ctx context.Context, event Event) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Event{}, s.err
	}
	if s.createFn != nil {
		if err := s.createFn(event); err != nil {
			return Event{}, err
		}
	}
	if _, exists := s.events[event.ID]; exists {
		return Event{}, persistence.ErrDuplicate
	}
	s.events[event.ID] = event
	return event, nil
}

func (s *eventStoreStub) GetEvent(ctx context.Context, id string) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Event{}, s.err
	}
	e, ok := s.events[id]
	if !ok {
		return Event{}, persistence.ErrNotFound
	}
	return cloneTestEvent(e), nil
}

func (s *eventStoreStub) FindEvents(ctx context.Context, query EventQuery) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	if s.found != nil {
		return s.found, nil
	}
	var out []Event
	for _, e := range s.events {
		if len(query.Statuses) > 0 && !slices.Contains(query.Statuses, e.Status) {
			continue
		}
		if query.From != nil && e.Date.Before(*query.From) {
			continue
		}
		if query.Before != nil && !e.Date.Before(*query.Before) {
			continue
		}
		if query.AttendeeID != "" && !e.HasAttendee(query.AttendeeID) {
			continue
		}
		out = append(out, cloneTestEvent(e))
	}
	slices.SortFunc(out, func(a, b Event) int { return a.Date.Compare(b.Date) })
	return out, nil
}

func (s *eventStoreStub) CountEvents(ctx context.Context, query EventQuery) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.count != 0 {
		return s.count, nil
	}
	events, err := s.FindEvents(ctx, query)
	return len(events), err
}

func (s *eventStoreStub) UpdateEvent(ctx context.Context, id string, mutate EventMutator) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Event{}, s.err
	}
	e, ok := s.events[id]
	if !ok {
		return Event{}, persistence.ErrNotFound
	}
	e = cloneTestEvent(e)
	if err := mutate(&e); err != nil {
		return Event{}, err
	}
	s.events[id] = e
	return cloneTestEvent(e), nil
}

func (s *eventStoreStub) DeleteEvent(ctx context.Context, id string) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Event{}, s.err
	}
	e, ok := s.events[id]
	if !ok {
		return Event{}, persistence.ErrNotFound
	}
	e = cloneTestEvent(e)
	if s.onDelete != nil {
		s.onDelete(&e)
	}
	delete(s.events, id)
	s.deleted = append(s.deleted, id)
	return e, nil
}

func (s *eventStoreStub) AddAttendee(ctx context.Context, eventID string, attendee Attendee, at time.Time) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Event{}, s.err
	}
	e, ok := s.events[eventID]
	switch {
	case !ok:
		return Event{}, persistence.ErrNotFound
	case e.Status != StatusApproved:
		return Event{}, persistence.ErrEventNotApproved
	case e.CurrentAttendees >= e.MaxAttendees:
		return Event{}, persistence.ErrEventFull
	case e.HasAttendee(attendee.UserID):
		return Event{}, persistence.ErrAlreadyRegistered
	}
	e = cloneTestEvent(e)
	e.Attendees = append(e.Attendees, attendee)
	e.CurrentAttendees++
	e.UpdatedAt = at
	s.events[eventID] = e
	return cloneTestEvent(e), nil
}

func (s *eventStoreStub) RemoveAttendee(ctx context.Context, eventID, userID string, at time.Time) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return Event{}, persistence.ErrNotFound
	}
	idx := e.attendeeIndex(userID)
	if idx < 0 {
		return Event{}, persistence.ErrNotRegistered
	}
	e = cloneTestEvent(e)
	e.Attendees = slices.Delete(e.Attendees, idx, idx+1)
	e.CurrentAttendees--
	e.UpdatedAt = at
	s.events[eventID] = e
	return cloneTestEvent(e), nil
}

func (s *eventStoreStub) UpdateAttendee(ctx context.Context, eventID, userID string, mutate AttendeeMutator) (Attendee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return Attendee{}, persistence.ErrNotFound
	}
	idx := e.attendeeIndex(userID)
	if idx < 0 {
		return Attendee{}, persistence.ErrNotRegistered
	}
	e = cloneTestEvent(e)
	if err := mutate(&e.Attendees[idx]); err != nil {
		return Attendee{}, err
	}
	s.events[eventID] = e
	return e.Attendees[idx], nil
}

func (s *eventStoreStub) get(id string) Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTestEvent(s.events[id])
}

func cloneTestEvent(e Event) Event {
	e.Attendees = slices.Clone(e.Attendees)
	e.Tags = slices.Clone(e.Tags)
	return e
}

type userDirectoryStub struct {
	mu            sync.Mutex
	users         map[string]User
	err           error
	registrations map[string][]string
	tokens        map[string]*string
}

func newUserDirectoryStub(users ...User) *userDirectoryStub {
	d := &userDirectoryStub{
		users:         make(map[string]User),
		registrations: make(map[string][]string),
		tokens:        make(map[string]*string),
	}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *userDirectoryStub) GetUser(ctx context.Context, id string) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return User{}, d.err
	}
	u, ok := d.users[id]
	if !ok {
		return User{}, persistence.ErrNotFound
	}
	return u, nil
}

func (d *userDirectoryStub) FindUsersByIDs(ctx context.Context, ids []string) ([]User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	var out []User
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *userDirectoryStub) AddRegistration(ctx context.Context, userID, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !slices.Contains(d.registrations[userID], eventID) {
		d.registrations[userID] = append(d.registrations[userID], eventID)
	}
	return nil
}

func (d *userDirectoryStub) RemoveRegistration(ctx context.Context, userID, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.registrations[userID]
	if idx := slices.Index(list, eventID); idx >= 0 {
		d.registrations[userID] = slices.Delete(list, idx, idx+1)
	}
	return nil
}

func (d *userDirectoryStub) SetPushToken(ctx context.Context, userID string, token *string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[userID]; !ok {
		return persistence.ErrNotFound
	}
	d.tokens[userID] = token
	return nil
}

type notificationStoreStub struct {
	mu       sync.Mutex
	created  []Notification
	inserts  int
	err      error
	list     []Notification
	unread   int
	marked   int
	readErr  error
	deleteID string
}

func (n *notificationStoreStub) CreateNotifications(ctx context.Context, notifications []Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.inserts++
	n.created = append(n.created, notifications...)
	return nil
}

func (n *notificationStoreStub) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit, offset int) ([]Notification, error) {
	if n.err != nil {
		return nil, n.err
	}
	return n.list, nil
}

func (n *notificationStoreStub) CountUnread(ctx context.Context, recipientID string) (int, error) {
	return n.unread, n.err
}

func (n *notificationStoreStub) MarkRead(ctx context.Context, recipientID, id string, at time.Time) (Notification, error) {
	if n.readErr != nil {
		return Notification{}, n.readErr
	}
	return Notification{ID: id, RecipientID: recipientID, IsRead: true, ReadAt: &at}, nil
}

func (n *notificationStoreStub) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error) {
	return n.marked, n.err
}

func (n *notificationStoreStub) DeleteNotification(ctx context.Context, recipientID, id string) error {
	if n.readErr != nil {
		return n.readErr
	}
	n.deleteID = id
	return nil
}

func (n *notificationStoreStub) recipients(t NotificationType) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var ids []string
	for _, c := range n.created {
		if c.Type == t {
			ids = append(ids, c.RecipientID)
		}
	}
	slices.Sort(ids)
	return ids
}

type markerStub struct {
	mu       sync.Mutex
	claimed  map[string]bool
	released []string
}

func newMarkerStub() *markerStub { return &markerStub{claimed: make(map[string]bool)} }

func (m *markerStub) ClaimReminder(ctx context.Context, eventID, milestone string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := eventID + "/" + milestone
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *markerStub) ReleaseReminder(ctx context.Context, eventID, milestone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := eventID + "/" + milestone
	delete(m.claimed, key)
	m.released = append(m.released, key)
	return nil
}

var errChannelDown = errors.New("channel unavailable")

// pushChannelStub accepts tokens with the "tok-" prefix. A batch containing a
// token listed in failTokens fails as a whole.
type pushChannelStub struct {
	mu         sync.Mutex
	maxBatch   int
	batches    [][]PushMessage
	failTokens map[string]bool
	rejected   map[string]string
}

func (p *pushChannelStub) IsValidToken(token string) bool {
	return strings.HasPrefix(token, "tok-")
}

func (p *pushChannelStub) MaxBatchSize() int { return p.maxBatch }

func (p *pushChannelStub) SendBatch(ctx context.Context, messages []PushMessage) ([]PushTicket, error) {
	p.mu.Lock()
	p.batches = append(p.batches, slices.Clone(messages))
	p.mu.Unlock()

	tickets := make([]PushTicket, len(messages))
	for i, m := range messages {
		if p.failTokens[m.To] {
			return nil, errChannelDown
		}
		if reason, ok := p.rejected[m.To]; ok {
			tickets[i] = PushTicket{Message: reason}
			continue
		}
		tickets[i] = PushTicket{ID: "ticket-" + m.To, OK: true}
	}
	return tickets, nil
}

func (p *pushChannelStub) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func approvedEvent(id string, maxAttendees int) Event {
	return Event{
		ID:           id,
		Title:        "Hack Night",
		Description:  "Build things",
		Date:         testNow.Add(72 * time.Hour),
		Time:         "18:00",
		Location:     "Lab 3",
		Organizer:    "CS Club",
		Category:     "technical",
		MaxAttendees: maxAttendees,
		Status:       StatusApproved,
		CreatorID:    "creator-1",
		RSVPRequired: true,
		IsPublic:     true,
		CreatedAt:    testNow.Add(-time.Hour),
		UpdatedAt:    testNow.Add(-time.Hour),
	}
}

func withAttendees(e Event, ids ...string) Event {
	for _, id := range ids {
		e.Attendees = append(e.Attendees, Attendee{UserID: id, RSVPAt: testNow.Add(-time.Minute)})
	}
	e.CurrentAttendees = len(e.Attendees)
	return e
}

func tokenPtr(s string) *string { return &s }
