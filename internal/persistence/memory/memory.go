// Package memory provides a process-local persistence implementation used by
// tests and single-instance development deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/campus-events/internal/persistence"
)

// Storage keeps every repository in maps guarded by a single lock. Conditional
// writes such as AddAttendee hold the write lock across check and write.
type Storage struct {
	mu            sync.RWMutex
	users         map[string]persistence.User
	events        map[string]persistence.Event
	notifications map[string]persistence.Notification
	reminders     map[reminderKey]time.Time
	// insertion order breaks ties between notifications created in the same instant.
	sequence map[string]int
	next     int
}

type reminderKey struct {
	eventID   string
	milestone string
}

var (
	_ persistence.EventRepository        = (*Storage)(nil)
	_ persistence.UserRepository         = (*Storage)(nil)
	_ persistence.NotificationRepository = (*Storage)(nil)
	_ persistence.ReminderRepository     = (*Storage)(nil)
)

// Open returns an empty Storage.
func Open() *Storage {
	return &Storage{
		users:         make(map[string]persistence.User),
		events:        make(map[string]persistence.Event),
		notifications: make(map[string]persistence.Notification),
		reminders:     make(map[reminderKey]time.Time),
		sequence:      make(map[string]int),
	}
}

// Close is a no-op.
func (s *Storage) Close() error {
	return nil
}

// Ping always succeeds.
func (s *Storage) Ping(context.Context) error {
	return nil
}

// Migrate is a no-op.
func (s *Storage) Migrate(context.Context) error {
	return nil
}

// --- EventRepository implementation ---

// CreateEvent stores a new event.
func (s *Storage) CreateEvent(ctx context.Context, event persistence.Event) (persistence.Event, error) {
	if strings.TrimSpace(event.ID) == "" {
		return persistence.Event{}, persistence.ErrConstraintViolation
	}
	event.CurrentAttendees = len(event.Attendees)
	if err := persistence.CheckEvent(event); err != nil {
		return persistence.Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; ok {
		return persistence.Event{}, fmt.Errorf("%w: event %s", persistence.ErrDuplicate, event.ID)
	}
	if event.Tags == nil {
		event.Tags = []string{}
	}
	s.events[event.ID] = cloneEvent(event)
	return cloneEvent(event), nil
}

// GetEvent retrieves an event by ID.
func (s *Storage) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.events[id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	return cloneEvent(event), nil
}

// FindEvents lists events matching the filter.
func (s *Storage) FindEvents(ctx context.Context, filter persistence.EventFilter, order persistence.EventSort, page persistence.Page) ([]persistence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]persistence.Event, 0, len(s.events))
	for _, event := range s.events {
		if matchesFilter(event, filter) {
			events = append(events, cloneEvent(event))
		}
	}
	sortEvents(events, order)
	return paginate(events, page), nil
}

// CountEvents counts events matching the filter.
func (s *Storage) CountEvents(ctx context.Context, filter persistence.EventFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, event := range s.events {
		if matchesFilter(event, filter) {
			count++
		}
	}
	return count, nil
}

// UpdateEvent applies mutate to a copy of the stored event. The attendee list
// and counter are never changed here.
func (s *Storage) UpdateEvent(ctx context.Context, id string, mutate persistence.EventMutator) (persistence.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.events[id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	next := cloneEvent(current)
	if mutate != nil {
		if err := mutate(&next); err != nil {
			return persistence.Event{}, err
		}
	}
	next.ID = current.ID
	next.CreatorID = current.CreatorID
	next.CreatedAt = current.CreatedAt
	next.Attendees = current.Attendees
	next.CurrentAttendees = current.CurrentAttendees
	if next.Tags == nil {
		next.Tags = []string{}
	}
	if err := persistence.CheckEvent(next); err != nil {
		return persistence.Event{}, err
	}

	s.events[id] = cloneEvent(next)
	return cloneEvent(next), nil
}

// DeleteEvent removes an event and its reminder markers.
func (s *Storage) DeleteEvent(ctx context.Context, id string) (persistence.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[id]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	delete(s.events, id)
	for key := range s.reminders {
		if key.eventID == id {
			delete(s.reminders, key)
		}
	}
	return cloneEvent(event), nil
}

// AddAttendee admits the attendee when the event is approved, has a free
// seat, and does not already list the user.
func (s *Storage) AddAttendee(ctx context.Context, eventID string, attendee persistence.Attendee, at time.Time) (persistence.Event, error) {
	if attendee.UserID == "" {
		return persistence.Event{}, persistence.ErrConstraintViolation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	switch {
	case !ok:
		return persistence.Event{}, persistence.ErrNotFound
	case event.Status != "approved":
		return persistence.Event{}, persistence.ErrEventNotApproved
	case event.CurrentAttendees >= event.MaxAttendees:
		return persistence.Event{}, persistence.ErrEventFull
	case attendeeIndex(event.Attendees, attendee.UserID) >= 0:
		return persistence.Event{}, persistence.ErrAlreadyRegistered
	}

	event = cloneEvent(event)
	event.Attendees = append(event.Attendees, cloneAttendee(attendee))
	event.CurrentAttendees++
	event.UpdatedAt = at
	s.events[eventID] = event
	return cloneEvent(event), nil
}

// RemoveAttendee removes the user's attendee record.
func (s *Storage) RemoveAttendee(ctx context.Context, eventID, userID string, at time.Time) (persistence.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return persistence.Event{}, persistence.ErrNotFound
	}
	idx := attendeeIndex(event.Attendees, userID)
	if idx < 0 {
		return persistence.Event{}, persistence.ErrNotRegistered
	}

	event = cloneEvent(event)
	event.Attendees = append(event.Attendees[:idx], event.Attendees[idx+1:]...)
	event.CurrentAttendees--
	event.UpdatedAt = at
	s.events[eventID] = event
	return cloneEvent(event), nil
}

// UpdateAttendee applies mutate to one attendee record.
func (s *Storage) UpdateAttendee(ctx context.Context, eventID, userID string, mutate persistence.AttendeeMutator) (persistence.Attendee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return persistence.Attendee{}, persistence.ErrNotFound
	}
	idx := attendeeIndex(event.Attendees, userID)
	if idx < 0 {
		return persistence.Attendee{}, persistence.ErrNotRegistered
	}

	current := event.Attendees[idx]
	next := cloneAttendee(current)
	if mutate != nil {
		if err := mutate(&next); err != nil {
			return persistence.Attendee{}, err
		}
	}
	next.UserID = current.UserID
	next.RSVPAt = current.RSVPAt
	if err := persistence.CheckAttendee(next); err != nil {
		return persistence.Attendee{}, err
	}

	event = cloneEvent(event)
	event.Attendees[idx] = cloneAttendee(next)
	s.events[eventID] = event
	return next, nil
}

// --- UserRepository implementation ---

// CreateUser stores a new user. Emails are unique case-insensitively.
func (s *Storage) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || strings.TrimSpace(user.Email) == "" {
		return persistence.ErrConstraintViolation
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("%w: user %s", persistence.ErrDuplicate, user.ID)
	}
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return fmt.Errorf("%w: email %s", persistence.ErrDuplicate, user.Email)
		}
	}
	user.RegisteredEventIDs = uniqueStrings(user.RegisteredEventIDs)
	s.users[user.ID] = cloneUser(user)
	return nil
}

// GetUser retrieves a user by ID.
func (s *Storage) GetUser(ctx context.Context, id string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return cloneUser(user), nil
}

// FindUsersByIDs returns the known users among ids, in the order given.
func (s *Storage) FindUsersByIDs(ctx context.Context, ids []string) ([]persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []persistence.User
	for _, id := range uniqueStrings(ids) {
		if user, ok := s.users[id]; ok {
			users = append(users, cloneUser(user))
		}
	}
	return users, nil
}

// SetPushToken stores or clears the user's push token.
func (s *Storage) SetPushToken(ctx context.Context, userID string, token *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return persistence.ErrNotFound
	}
	user.PushToken = cloneString(token)
	user.UpdatedAt = time.Now().UTC()
	s.users[userID] = user
	return nil
}

// AddRegistration appends eventID to the user's registrations once.
func (s *Storage) AddRegistration(ctx context.Context, userID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return persistence.ErrNotFound
	}
	for _, id := range user.RegisteredEventIDs {
		if id == eventID {
			return nil
		}
	}
	user = cloneUser(user)
	user.RegisteredEventIDs = append(user.RegisteredEventIDs, eventID)
	s.users[userID] = user
	return nil
}

// RemoveRegistration removes eventID from the user's registrations.
func (s *Storage) RemoveRegistration(ctx context.Context, userID, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil
	}
	user = cloneUser(user)
	user.RegisteredEventIDs = removeString(user.RegisteredEventIDs, eventID)
	s.users[userID] = user
	return nil
}

// --- NotificationRepository implementation ---

// CreateNotifications stores all notifications or none.
func (s *Storage) CreateNotifications(ctx context.Context, notifications []persistence.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range notifications {
		if n.ID == "" || n.RecipientID == "" {
			return persistence.ErrConstraintViolation
		}
		if _, ok := s.notifications[n.ID]; ok {
			return fmt.Errorf("%w: notification %s", persistence.ErrDuplicate, n.ID)
		}
	}
	for _, n := range notifications {
		s.notifications[n.ID] = cloneNotification(n)
		s.next++
		s.sequence[n.ID] = s.next
	}
	return nil
}

// ListNotifications returns the recipient's notifications, newest first.
func (s *Storage) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, page persistence.Page) ([]persistence.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []persistence.Notification
	for _, n := range s.notifications {
		if n.RecipientID != recipientID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, cloneNotification(n))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.sequence[out[i].ID] > s.sequence[out[j].ID]
	})
	return paginate(out, page), nil
}

// CountUnread counts the recipient's unread notifications.
func (s *Storage) CountUnread(ctx context.Context, recipientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

// MarkRead marks one notification read, keeping the first read time.
func (s *Storage) MarkRead(ctx context.Context, recipientID, id string, at time.Time) (persistence.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return persistence.Notification{}, persistence.ErrNotFound
	}
	if !n.IsRead {
		n.IsRead = true
		n.ReadAt = &at
		s.notifications[id] = n
	}
	return cloneNotification(n), nil
}

// MarkAllRead marks every unread notification of the recipient read.
func (s *Storage) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, n := range s.notifications {
		if n.RecipientID != recipientID || n.IsRead {
			continue
		}
		readAt := at
		n.IsRead = true
		n.ReadAt = &readAt
		s.notifications[id] = n
		count++
	}
	return count, nil
}

// DeleteNotification removes a notification owned by the recipient.
func (s *Storage) DeleteNotification(ctx context.Context, recipientID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return persistence.ErrNotFound
	}
	delete(s.notifications, id)
	delete(s.sequence, id)
	return nil
}

// --- ReminderRepository implementation ---

// ClaimReminder records the marker and reports whether this call created it.
func (s *Storage) ClaimReminder(ctx context.Context, eventID, milestone string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reminderKey{eventID: eventID, milestone: milestone}
	if _, ok := s.reminders[key]; ok {
		return false, nil
	}
	s.reminders[key] = at
	return true, nil
}

// ReleaseReminder deletes the marker.
func (s *Storage) ReleaseReminder(ctx context.Context, eventID, milestone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.reminders, reminderKey{eventID: eventID, milestone: milestone})
	return nil
}

func matchesFilter(event persistence.Event, filter persistence.EventFilter) bool {
	if len(filter.Statuses) > 0 {
		matched := false
		for _, status := range filter.Statuses {
			if event.Status == status {
				matched = true
				break
			}
		}
		if !matched && (filter.OwnerID == "" || event.CreatorID != filter.OwnerID) {
			return false
		}
	}
	if filter.CreatorID != "" && event.CreatorID != filter.CreatorID {
		return false
	}
	if filter.AttendeeID != "" && attendeeIndex(event.Attendees, filter.AttendeeID) < 0 {
		return false
	}
	if filter.Category != "" && event.Category != filter.Category {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(filter.Search)); term != "" {
		if !strings.Contains(strings.ToLower(event.Title), term) &&
			!strings.Contains(strings.ToLower(event.Description), term) &&
			!strings.Contains(strings.ToLower(event.Location), term) {
			return false
		}
	}
	if filter.DateFrom != nil && event.Date.Before(*filter.DateFrom) {
		return false
	}
	if filter.DateBefore != nil && !event.Date.Before(*filter.DateBefore) {
		return false
	}
	return true
}

func sortEvents(events []persistence.Event, order persistence.EventSort) {
	less := func(a, b persistence.Event) int {
		switch order.Field {
		case persistence.SortByCreatedAt:
			return a.CreatedAt.Compare(b.CreatedAt)
		case persistence.SortByTitle:
			return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		default:
			return a.Date.Compare(b.Date)
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		c := less(events[i], events[j])
		if c == 0 {
			c = strings.Compare(events[i].ID, events[j].ID)
		}
		if order.Descending {
			return c > 0
		}
		return c < 0
	})
}

func paginate[T any](items []T, page persistence.Page) []T {
	if page.Offset > 0 {
		if page.Offset >= len(items) {
			return items[:0]
		}
		items = items[page.Offset:]
	}
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}

func attendeeIndex(attendees []persistence.Attendee, userID string) int {
	for i, a := range attendees {
		if a.UserID == userID {
			return i
		}
	}
	return -1
}

func cloneEvent(event persistence.Event) persistence.Event {
	clone := event
	clone.ImageURL = cloneString(event.ImageURL)
	clone.ApprovedBy = cloneString(event.ApprovedBy)
	clone.ApprovedAt = cloneTime(event.ApprovedAt)
	clone.RejectionReason = cloneString(event.RejectionReason)
	clone.RejectedBy = cloneString(event.RejectedBy)
	clone.RejectedAt = cloneTime(event.RejectedAt)
	if event.Tags != nil {
		clone.Tags = append([]string(nil), event.Tags...)
	}
	if event.Attendees != nil {
		clone.Attendees = make([]persistence.Attendee, len(event.Attendees))
		for i, a := range event.Attendees {
			clone.Attendees[i] = cloneAttendee(a)
		}
	}
	return clone
}

func cloneAttendee(a persistence.Attendee) persistence.Attendee {
	clone := a
	clone.AttendedAt = cloneTime(a.AttendedAt)
	clone.CheckInMethod = cloneString(a.CheckInMethod)
	return clone
}

func cloneUser(user persistence.User) persistence.User {
	clone := user
	clone.PushToken = cloneString(user.PushToken)
	if user.RegisteredEventIDs != nil {
		clone.RegisteredEventIDs = append([]string(nil), user.RegisteredEventIDs...)
	}
	return clone
}

func cloneNotification(n persistence.Notification) persistence.Notification {
	clone := n
	clone.EventID = cloneString(n.EventID)
	clone.ReadAt = cloneTime(n.ReadAt)
	if n.Data != nil {
		clone.Data = make(map[string]string, len(n.Data))
		for k, v := range n.Data {
			clone.Data[k] = v
		}
	}
	return clone
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func removeString(values []string, target string) []string {
	out := values[:0]
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
