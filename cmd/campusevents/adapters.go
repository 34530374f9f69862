package main

import (
	"context"
	"time"

	"github.com/example/campus-events/internal/application"
	"github.com/example/campus-events/internal/persistence"
	"github.com/example/campus-events/internal/push"
)

type eventRepositoryAdapter struct {
	repo persistence.EventRepository
}

func newEventRepositoryAdapter(repo persistence.EventRepository) *eventRepositoryAdapter {
	return &eventRepositoryAdapter{repo: repo}
}

func (a *eventRepositoryAdapter) CreateEvent(ctx context.Context, event application.Event) (application.Event, error) {
	stored, err := a.repo.CreateEvent(ctx, toPersistenceEvent(event))
	if err != nil {
		return application.Event{}, err
	}
	return toApplicationEvent(stored), nil
}

func (a *eventRepositoryAdapter) GetEvent(ctx context.Context, id string) (application.Event, error) {
	stored, err := a.repo.GetEvent(ctx, id)
	if err != nil {
		return application.Event{}, err
	}
	return toApplicationEvent(stored), nil
}

func (a *eventRepositoryAdapter) FindEvents(ctx context.Context, query application.EventQuery) ([]application.Event, error) {
	models, err := a.repo.FindEvents(ctx, toEventFilter(query), toEventSort(query), persistence.Page{Limit: query.Limit, Offset: query.Offset})
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	events := make([]application.Event, 0, len(models))
	for _, model := range models {
		events = append(events, toApplicationEvent(model))
	}
	return events, nil
}

func (a *eventRepositoryAdapter) CountEvents(ctx context.Context, query application.EventQuery) (int, error) {
	return a.repo.CountEvents(ctx, toEventFilter(query))
}

// UpdateEvent runs mutate on the application view of the stored record and
// copies the result back, so the store's retry loop sees every change.
func (a *eventRepositoryAdapter) UpdateEvent(ctx context.Context, id string, mutate application.EventMutator) (application.Event, error) {
	stored, err := a.repo.UpdateEvent(ctx, id, func(model *persistence.Event) error {
		event := toApplicationEvent(*model)
		if err := mutate(&event); err != nil {
			return err
		}
		*model = toPersistenceEvent(event)
		return nil
	})
	if err != nil {
		return application.Event{}, err
	}
	return toApplicationEvent(stored), nil
}

func (a *eventRepositoryAdapter) DeleteEvent(ctx context.Context, id string) (application.Event, error) {
	removed, err := a.repo.DeleteEvent(ctx, id)
	if err != nil {
		return application.Event{}, err
	}
	return toApplicationEvent(removed), nil
}

func (a *eventRepositoryAdapter) AddAttendee(ctx context.Context, eventID string, attendee application.Attendee, at time.Time) (application.Event, error) {
	stored, err := a.repo.AddAttendee(ctx, eventID, toPersistenceAttendee(attendee), at)
	if err != nil {
		return application.Event{}, err
	}
	return toApplicationEvent(stored), nil
}

func (a *eventRepositoryAdapter) RemoveAttendee(ctx context.Context, eventID, userID string, at time.Time) (application.Event, error) {
	stored, err := a.repo.RemoveAttendee(ctx, eventID, userID, at)
	if err != nil {
		return application.Event{}, err
	}
	return toApplicationEvent(stored), nil
}

func (a *eventRepositoryAdapter) UpdateAttendee(ctx context.Context, eventID, userID string, mutate application.AttendeeMutator) (application.Attendee, error) {
	stored, err := a.repo.UpdateAttendee(ctx, eventID, userID, func(model *persistence.Attendee) error {
		attendee := toApplicationAttendee(*model)
		if err := mutate(&attendee); err != nil {
			return err
		}
		*model = toPersistenceAttendee(attendee)
		return nil
	})
	if err != nil {
		return application.Attendee{}, err
	}
	return toApplicationAttendee(stored), nil
}

type userDirectoryAdapter struct {
	repo persistence.UserRepository
}

func newUserDirectoryAdapter(repo persistence.UserRepository) *userDirectoryAdapter {
	return &userDirectoryAdapter{repo: repo}
}

func (a *userDirectoryAdapter) GetUser(ctx context.Context, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userDirectoryAdapter) FindUsersByIDs(ctx context.Context, ids []string) ([]application.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	models, err := a.repo.FindUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	users := make([]application.User, 0, len(models))
	for _, model := range models {
		users = append(users, toApplicationUser(model))
	}
	return users, nil
}

func (a *userDirectoryAdapter) AddRegistration(ctx context.Context, userID, eventID string) error {
	return a.repo.AddRegistration(ctx, userID, eventID)
}

func (a *userDirectoryAdapter) RemoveRegistration(ctx context.Context, userID, eventID string) error {
	return a.repo.RemoveRegistration(ctx, userID, eventID)
}

func (a *userDirectoryAdapter) SetPushToken(ctx context.Context, userID string, token *string) error {
	return a.repo.SetPushToken(ctx, userID, token)
}

type notificationRepositoryAdapter struct {
	repo persistence.NotificationRepository
}

func newNotificationRepositoryAdapter(repo persistence.NotificationRepository) *notificationRepositoryAdapter {
	return &notificationRepositoryAdapter{repo: repo}
}

func (a *notificationRepositoryAdapter) CreateNotifications(ctx context.Context, notifications []application.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	models := make([]persistence.Notification, 0, len(notifications))
	for _, n := range notifications {
		models = append(models, toPersistenceNotification(n))
	}
	return a.repo.CreateNotifications(ctx, models)
}

func (a *notificationRepositoryAdapter) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit, offset int) ([]application.Notification, error) {
	models, err := a.repo.ListNotifications(ctx, recipientID, unreadOnly, persistence.Page{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	out := make([]application.Notification, 0, len(models))
	for _, model := range models {
		out = append(out, toApplicationNotification(model))
	}
	return out, nil
}

func (a *notificationRepositoryAdapter) CountUnread(ctx context.Context, recipientID string) (int, error) {
	return a.repo.CountUnread(ctx, recipientID)
}

func (a *notificationRepositoryAdapter) MarkRead(ctx context.Context, recipientID, id string, at time.Time) (application.Notification, error) {
	stored, err := a.repo.MarkRead(ctx, recipientID, id, at)
	if err != nil {
		return application.Notification{}, err
	}
	return toApplicationNotification(stored), nil
}

func (a *notificationRepositoryAdapter) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error) {
	return a.repo.MarkAllRead(ctx, recipientID, at)
}

func (a *notificationRepositoryAdapter) DeleteNotification(ctx context.Context, recipientID, id string) error {
	return a.repo.DeleteNotification(ctx, recipientID, id)
}

// pushChannelAdapter exposes the HTTP push client as an application channel.
type pushChannelAdapter struct {
	client *push.Client
}

func newPushChannelAdapter(client *push.Client) *pushChannelAdapter {
	return &pushChannelAdapter{client: client}
}

func (a *pushChannelAdapter) IsValidToken(token string) bool {
	return a.client.IsValidToken(token)
}

func (a *pushChannelAdapter) MaxBatchSize() int {
	return a.client.MaxBatchSize()
}

func (a *pushChannelAdapter) SendBatch(ctx context.Context, messages []application.PushMessage) ([]application.PushTicket, error) {
	batch := make([]push.Message, 0, len(messages))
	for _, m := range messages {
		image := ""
		if m.ImageURL != nil {
			image = *m.ImageURL
		}
		batch = append(batch, push.NewMessage(m.To, m.Title, m.Body, m.Data, image))
	}
	tickets, err := a.client.SendBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	out := make([]application.PushTicket, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, application.PushTicket{ID: t.ID, OK: t.OK(), Message: t.Message})
	}
	return out, nil
}

func toEventFilter(query application.EventQuery) persistence.EventFilter {
	filter := persistence.EventFilter{
		OwnerID:    query.OwnerID,
		CreatorID:  query.CreatorID,
		AttendeeID: query.AttendeeID,
		Category:   query.Category,
		Search:     query.Search,
		DateFrom:   cloneTime(query.From),
		DateBefore: cloneTime(query.Before),
	}
	if len(query.Statuses) > 0 {
		filter.Statuses = make([]string, 0, len(query.Statuses))
		for _, s := range query.Statuses {
			filter.Statuses = append(filter.Statuses, string(s))
		}
	}
	return filter
}

func toEventSort(query application.EventQuery) persistence.EventSort {
	field := persistence.SortByDate
	switch query.SortField {
	case application.SortCreatedAt:
		field = persistence.SortByCreatedAt
	case application.SortTitle:
		field = persistence.SortByTitle
	}
	return persistence.EventSort{Field: field, Descending: query.Descending}
}

func toApplicationEvent(model persistence.Event) application.Event {
	event := application.Event{
		ID:               model.ID,
		Title:            model.Title,
		Description:      model.Description,
		Date:             model.Date,
		Time:             model.Time,
		Location:         model.Location,
		Organizer:        model.Organizer,
		Category:         model.Category,
		ImageURL:         cloneString(model.ImageURL),
		Tags:             append([]string(nil), model.Tags...),
		MaxAttendees:     model.MaxAttendees,
		CurrentAttendees: model.CurrentAttendees,
		Status:           application.EventStatus(model.Status),
		ApprovedBy:       cloneString(model.ApprovedBy),
		ApprovedAt:       cloneTime(model.ApprovedAt),
		RejectionReason:  cloneString(model.RejectionReason),
		RejectedBy:       cloneString(model.RejectedBy),
		RejectedAt:       cloneTime(model.RejectedAt),
		CreatorID:        model.CreatorID,
		RSVPRequired:     model.RSVPRequired,
		IsPublic:         model.IsPublic,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
	if len(model.Attendees) > 0 {
		event.Attendees = make([]application.Attendee, 0, len(model.Attendees))
		for _, a := range model.Attendees {
			event.Attendees = append(event.Attendees, toApplicationAttendee(a))
		}
	}
	return event
}

func toPersistenceEvent(event application.Event) persistence.Event {
	model := persistence.Event{
		ID:               event.ID,
		Title:            event.Title,
		Description:      event.Description,
		Date:             event.Date,
		Time:             event.Time,
		Location:         event.Location,
		Organizer:        event.Organizer,
		Category:         event.Category,
		ImageURL:         cloneString(event.ImageURL),
		Tags:             append([]string(nil), event.Tags...),
		MaxAttendees:     event.MaxAttendees,
		CurrentAttendees: event.CurrentAttendees,
		Status:           string(event.Status),
		ApprovedBy:       cloneString(event.ApprovedBy),
		ApprovedAt:       cloneTime(event.ApprovedAt),
		RejectionReason:  cloneString(event.RejectionReason),
		RejectedBy:       cloneString(event.RejectedBy),
		RejectedAt:       cloneTime(event.RejectedAt),
		CreatorID:        event.CreatorID,
		RSVPRequired:     event.RSVPRequired,
		IsPublic:         event.IsPublic,
		CreatedAt:        event.CreatedAt,
		UpdatedAt:        event.UpdatedAt,
	}
	if len(event.Attendees) > 0 {
		model.Attendees = make([]persistence.Attendee, 0, len(event.Attendees))
		for _, a := range event.Attendees {
			model.Attendees = append(model.Attendees, toPersistenceAttendee(a))
		}
	}
	return model
}

func toApplicationAttendee(model persistence.Attendee) application.Attendee {
	attendee := application.Attendee{
		UserID:     model.UserID,
		RSVPAt:     model.RSVPAt,
		Attended:   model.Attended,
		AttendedAt: cloneTime(model.AttendedAt),
	}
	if model.CheckInMethod != nil {
		m := application.CheckInMethod(*model.CheckInMethod)
		attendee.CheckInMethod = &m
	}
	return attendee
}

func toPersistenceAttendee(attendee application.Attendee) persistence.Attendee {
	model := persistence.Attendee{
		UserID:     attendee.UserID,
		RSVPAt:     attendee.RSVPAt,
		Attended:   attendee.Attended,
		AttendedAt: cloneTime(attendee.AttendedAt),
	}
	if attendee.CheckInMethod != nil {
		m := string(*attendee.CheckInMethod)
		model.CheckInMethod = &m
	}
	return model
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:                 model.ID,
		Name:               model.Name,
		Email:              model.Email,
		Role:               application.Role(model.Role),
		PushToken:          cloneString(model.PushToken),
		RegisteredEventIDs: append([]string(nil), model.RegisteredEventIDs...),
	}
}

func toApplicationNotification(model persistence.Notification) application.Notification {
	return application.Notification{
		ID:          model.ID,
		RecipientID: model.RecipientID,
		Type:        application.NotificationType(model.Type),
		Title:       model.Title,
		Body:        model.Body,
		EventID:     cloneString(model.EventID),
		Data:        cloneData(model.Data),
		IsRead:      model.IsRead,
		ReadAt:      cloneTime(model.ReadAt),
		CreatedAt:   model.CreatedAt,
	}
}

func toPersistenceNotification(n application.Notification) persistence.Notification {
	return persistence.Notification{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Type:        string(n.Type),
		Title:       n.Title,
		Body:        n.Body,
		EventID:     cloneString(n.EventID),
		Data:        cloneData(n.Data),
		IsRead:      n.IsRead,
		ReadAt:      cloneTime(n.ReadAt),
		CreatedAt:   n.CreatedAt,
	}
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneData(data map[string]string) map[string]string {
	if data == nil {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
