package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/campus-events/internal/persistence"
)

// CreateNotifications inserts the batch with one InsertMany. The write is
// ordered, so a failure leaves the earlier documents in place; callers
// generate fresh IDs and never retry a partial batch.
func (s *Storage) CreateNotifications(ctx context.Context, notifications []persistence.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	docs := make([]any, len(notifications))
	for i, n := range notifications {
		if n.ID == "" || n.RecipientID == "" {
			return persistence.ErrConstraintViolation
		}
		docs[i] = toNotificationDoc(n, s.seq.Add(1))
	}
	if _, err := s.notifications.InsertMany(ctx, docs); err != nil {
		return mapError(err)
	}
	return nil
}

// ListNotifications returns the recipient's notifications, newest first.
func (s *Storage) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, page persistence.Page) ([]persistence.Notification, error) {
	filter := bson.M{"recipientId": recipientID}
	if unreadOnly {
		filter["isRead"] = false
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "seq", Value: -1}})
	if page.Offset > 0 {
		opts.SetSkip(int64(page.Offset))
	}
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}

	cursor, err := s.notifications.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapError(err)
	}
	var docs []notificationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapError(err)
	}
	out := make([]persistence.Notification, len(docs))
	for i, d := range docs {
		out[i] = fromNotificationDoc(d)
	}
	return out, nil
}

// CountUnread counts the recipient's unread notifications.
func (s *Storage) CountUnread(ctx context.Context, recipientID string) (int, error) {
	n, err := s.notifications.CountDocuments(ctx, bson.M{"recipientId": recipientID, "isRead": false})
	if err != nil {
		return 0, mapError(err)
	}
	return int(n), nil
}

// MarkRead marks one notification read, keeping the first read time.
func (s *Storage) MarkRead(ctx context.Context, recipientID, id string, at time.Time) (persistence.Notification, error) {
	var doc notificationDoc
	err := s.notifications.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "recipientId": recipientID, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true, "readAt": utcMillis(at)}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, driver.ErrNoDocuments) {
		// Already read, or not the recipient's.
		err = s.notifications.FindOne(ctx, bson.M{"_id": id, "recipientId": recipientID}).Decode(&doc)
	}
	if err != nil {
		return persistence.Notification{}, mapError(err)
	}
	return fromNotificationDoc(doc), nil
}

// MarkAllRead marks every unread notification of the recipient read.
func (s *Storage) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error) {
	res, err := s.notifications.UpdateMany(ctx,
		bson.M{"recipientId": recipientID, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true, "readAt": utcMillis(at)}},
	)
	if err != nil {
		return 0, mapError(err)
	}
	return int(res.ModifiedCount), nil
}

// DeleteNotification removes a notification owned by the recipient.
func (s *Storage) DeleteNotification(ctx context.Context, recipientID, id string) error {
	res, err := s.notifications.DeleteOne(ctx, bson.M{"_id": id, "recipientId": recipientID})
	if err != nil {
		return mapError(err)
	}
	if res.DeletedCount == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// ClaimReminder inserts the marker; the _id collision of a second claim
// reports false.
func (s *Storage) ClaimReminder(ctx context.Context, eventID, milestone string, at time.Time) (bool, error) {
	_, err := s.reminders.InsertOne(ctx, reminderDoc{
		ID:        reminderID(eventID, milestone),
		EventID:   eventID,
		Milestone: milestone,
		ClaimedAt: utcMillis(at),
	})
	if driver.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}

// ReleaseReminder deletes the marker.
func (s *Storage) ReleaseReminder(ctx context.Context, eventID, milestone string) error {
	_, err := s.reminders.DeleteOne(ctx, bson.M{"_id": reminderID(eventID, milestone)})
	return mapError(err)
}
