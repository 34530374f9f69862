package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/campus-events/internal/persistence"
)

// errStale reports that a versioned write lost a race and should be retried.
var errStale = errors.New("mongo: document changed concurrently")

const maxWriteAttempts = 5

// CreateEvent inserts the event together with any initial attendees.
func (s *Storage) CreateEvent(ctx context.Context, event persistence.Event) (persistence.Event, error) {
	if strings.TrimSpace(event.ID) == "" {
		return persistence.Event{}, persistence.ErrConstraintViolation
	}
	event.CurrentAttendees = len(event.Attendees)
	if err := persistence.CheckEvent(event); err != nil {
		return persistence.Event{}, err
	}
	doc := toEventDoc(event, 1)
	if _, err := s.events.InsertOne(ctx, doc); err != nil {
		return persistence.Event{}, mapError(err)
	}
	return fromEventDoc(doc), nil
}

// GetEvent loads an event by ID.
func (s *Storage) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	doc, err := s.loadEvent(ctx, id)
	if err != nil {
		return persistence.Event{}, err
	}
	return fromEventDoc(doc), nil
}

func (s *Storage) loadEvent(ctx context.Context, id string) (eventDoc, error) {
	var doc eventDoc
	if err := s.events.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return eventDoc{}, mapError(err)
	}
	return doc, nil
}

// FindEvents returns the events matching filter in the requested order.
func (s *Storage) FindEvents(ctx context.Context, filter persistence.EventFilter, order persistence.EventSort, page persistence.Page) ([]persistence.Event, error) {
	opts := options.Find().SetSort(sortSpec(order))
	if order.Field == persistence.SortByTitle {
		opts.SetCollation(&options.Collation{Locale: "en", Strength: 2})
	}
	if page.Offset > 0 {
		opts.SetSkip(int64(page.Offset))
	}
	if page.Limit > 0 {
		opts.SetLimit(int64(page.Limit))
	}

	cursor, err := s.events.Find(ctx, eventFilter(filter), opts)
	if err != nil {
		return nil, mapError(err)
	}
	var docs []eventDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapError(err)
	}
	events := make([]persistence.Event, len(docs))
	for i, d := range docs {
		events[i] = fromEventDoc(d)
	}
	return events, nil
}

// CountEvents counts the events matching filter.
func (s *Storage) CountEvents(ctx context.Context, filter persistence.EventFilter) (int, error) {
	n, err := s.events.CountDocuments(ctx, eventFilter(filter))
	if err != nil {
		return 0, mapError(err)
	}
	return int(n), nil
}

// UpdateEvent applies mutate and writes the result back only if the document
// version is unchanged, retrying on a lost race. The attendee list and
// counter always come from the stored document.
func (s *Storage) UpdateEvent(ctx context.Context, id string, mutate persistence.EventMutator) (persistence.Event, error) {
	return retryStale(ctx, func() (persistence.Event, error) {
		current, err := s.loadEvent(ctx, id)
		if err != nil {
			return persistence.Event{}, backoff.Permanent(err)
		}
		stored := fromEventDoc(current)
		next := fromEventDoc(current)
		if mutate != nil {
			if err := mutate(&next); err != nil {
				return persistence.Event{}, backoff.Permanent(err)
			}
		}
		next.ID = stored.ID
		next.CreatorID = stored.CreatorID
		next.CreatedAt = stored.CreatedAt
		next.Attendees = stored.Attendees
		next.CurrentAttendees = stored.CurrentAttendees
		if err := persistence.CheckEvent(next); err != nil {
			return persistence.Event{}, backoff.Permanent(err)
		}

		doc := toEventDoc(next, current.Version+1)
		res, err := s.events.ReplaceOne(ctx, bson.M{"_id": id, "version": current.Version}, doc)
		if err != nil {
			return persistence.Event{}, backoff.Permanent(mapError(err))
		}
		if res.MatchedCount == 0 {
			return persistence.Event{}, errStale
		}
		return fromEventDoc(doc), nil
	})
}

// DeleteEvent removes the event and its reminder markers, returning the
// document as it was when removed.
func (s *Storage) DeleteEvent(ctx context.Context, id string) (persistence.Event, error) {
	var doc eventDoc
	if err := s.events.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return persistence.Event{}, mapError(err)
	}
	if _, err := s.reminders.DeleteMany(ctx, bson.M{"eventId": id}); err != nil {
		s.logger.WarnContext(ctx, "failed to remove reminder markers", "event_id", id, "error", err)
	}
	return fromEventDoc(doc), nil
}

// AddAttendee admits the attendee with one conditional FindOneAndUpdate: the
// filter re-checks status, capacity and absence of the user, so the push and
// the counter increment happen only when every precondition still holds.
func (s *Storage) AddAttendee(ctx context.Context, eventID string, attendee persistence.Attendee, at time.Time) (persistence.Event, error) {
	if attendee.UserID == "" {
		return persistence.Event{}, persistence.ErrConstraintViolation
	}
	if err := persistence.CheckAttendee(attendee); err != nil {
		return persistence.Event{}, err
	}

	update := bson.M{
		"$push": bson.M{"attendees": toAttendeeDoc(attendee)},
		"$inc":  bson.M{"currentAttendees": 1, "version": 1},
		"$set":  bson.M{"updatedAt": utcMillis(at)},
	}
	return retryStale(ctx, func() (persistence.Event, error) {
		var doc eventDoc
		err := s.events.FindOneAndUpdate(ctx, admissionFilter(eventID, attendee.UserID), update,
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&doc)
		if errors.Is(err, driver.ErrNoDocuments) {
			return persistence.Event{}, s.diagnoseAdmission(ctx, eventID, attendee.UserID)
		}
		if err != nil {
			return persistence.Event{}, backoff.Permanent(mapError(err))
		}
		return fromEventDoc(doc), nil
	})
}

func admissionFilter(eventID, userID string) bson.M {
	return bson.M{
		"_id":              eventID,
		"status":           "approved",
		"$expr":            bson.M{"$lt": bson.A{"$currentAttendees", "$maxAttendees"}},
		"attendees.userId": bson.M{"$ne": userID},
	}
}

func (s *Storage) diagnoseAdmission(ctx context.Context, eventID, userID string) error {
	current, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return backoff.Permanent(err)
	}
	if err := admissionFailure(current, userID); err != nil {
		return backoff.Permanent(err)
	}
	// Every precondition holds again: a concurrent cancellation freed a seat
	// between the update and this read.
	return errStale
}

// admissionFailure explains a rejected admission in precondition order, or
// returns nil when the document would be admitted as stored.
func admissionFailure(doc eventDoc, userID string) error {
	switch {
	case doc.Status != "approved":
		return persistence.ErrEventNotApproved
	case doc.CurrentAttendees >= doc.MaxAttendees:
		return persistence.ErrEventFull
	}
	for _, a := range doc.Attendees {
		if a.UserID == userID {
			return persistence.ErrAlreadyRegistered
		}
	}
	return nil
}

// RemoveAttendee pulls the user's record and decrements the counter in one
// conditional update.
func (s *Storage) RemoveAttendee(ctx context.Context, eventID, userID string, at time.Time) (persistence.Event, error) {
	update := bson.M{
		"$pull": bson.M{"attendees": bson.M{"userId": userID}},
		"$inc":  bson.M{"currentAttendees": -1, "version": 1},
		"$set":  bson.M{"updatedAt": utcMillis(at)},
	}
	var doc eventDoc
	err := s.events.FindOneAndUpdate(ctx, bson.M{"_id": eventID, "attendees.userId": userID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, driver.ErrNoDocuments) {
		if _, loadErr := s.loadEvent(ctx, eventID); loadErr != nil {
			return persistence.Event{}, loadErr
		}
		return persistence.Event{}, persistence.ErrNotRegistered
	}
	if err != nil {
		return persistence.Event{}, mapError(err)
	}
	return fromEventDoc(doc), nil
}

// UpdateAttendee rewrites one attendee entry guarded by the document version.
func (s *Storage) UpdateAttendee(ctx context.Context, eventID, userID string, mutate persistence.AttendeeMutator) (persistence.Attendee, error) {
	return retryStale(ctx, func() (persistence.Attendee, error) {
		current, err := s.loadEvent(ctx, eventID)
		if err != nil {
			return persistence.Attendee{}, backoff.Permanent(err)
		}
		idx := -1
		for i, a := range current.Attendees {
			if a.UserID == userID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return persistence.Attendee{}, backoff.Permanent(persistence.ErrNotRegistered)
		}

		next := fromAttendeeDoc(current.Attendees[idx])
		if mutate != nil {
			if err := mutate(&next); err != nil {
				return persistence.Attendee{}, backoff.Permanent(err)
			}
		}
		next.UserID = userID
		next.RSVPAt = current.Attendees[idx].RSVPAt
		if err := persistence.CheckAttendee(next); err != nil {
			return persistence.Attendee{}, backoff.Permanent(err)
		}

		res, err := s.events.UpdateOne(ctx,
			bson.M{"_id": eventID, "version": current.Version, "attendees.userId": userID},
			bson.M{"$set": bson.M{"attendees.$": toAttendeeDoc(next)}, "$inc": bson.M{"version": 1}},
		)
		if err != nil {
			return persistence.Attendee{}, backoff.Permanent(mapError(err))
		}
		if res.MatchedCount == 0 {
			return persistence.Attendee{}, errStale
		}
		return fromAttendeeDoc(toAttendeeDoc(next)), nil
	})
}

func retryStale[T any](ctx context.Context, op func() (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond

	out, err := backoff.Retry(ctx, op, backoff.WithBackOff(policy), backoff.WithMaxTries(maxWriteAttempts))
	if errors.Is(err, errStale) {
		return out, fmt.Errorf("gave up after %d attempts: %w", maxWriteAttempts, err)
	}
	return out, err
}

func eventFilter(filter persistence.EventFilter) bson.M {
	var clauses []bson.M

	if len(filter.Statuses) > 0 {
		status := bson.M{"status": bson.M{"$in": filter.Statuses}}
		if filter.OwnerID != "" {
			status = bson.M{"$or": bson.A{status, bson.M{"creatorId": filter.OwnerID}}}
		}
		clauses = append(clauses, status)
	}
	if filter.CreatorID != "" {
		clauses = append(clauses, bson.M{"creatorId": filter.CreatorID})
	}
	if filter.AttendeeID != "" {
		clauses = append(clauses, bson.M{"attendees.userId": filter.AttendeeID})
	}
	if filter.Category != "" {
		clauses = append(clauses, bson.M{"category": filter.Category})
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(term), "$options": "i"}
		clauses = append(clauses, bson.M{"$or": bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
			bson.M{"location": pattern},
		}})
	}
	if filter.DateFrom != nil || filter.DateBefore != nil {
		date := bson.M{}
		if filter.DateFrom != nil {
			date["$gte"] = utcMillis(*filter.DateFrom)
		}
		if filter.DateBefore != nil {
			date["$lt"] = utcMillis(*filter.DateBefore)
		}
		clauses = append(clauses, bson.M{"date": date})
	}

	switch len(clauses) {
	case 0:
		return bson.M{}
	case 1:
		return clauses[0]
	}
	all := make(bson.A, len(clauses))
	for i, c := range clauses {
		all[i] = c
	}
	return bson.M{"$and": all}
}

func sortSpec(order persistence.EventSort) bson.D {
	field := "date"
	switch order.Field {
	case persistence.SortByCreatedAt:
		field = "createdAt"
	case persistence.SortByTitle:
		field = "title"
	}
	direction := 1
	if order.Descending {
		direction = -1
	}
	return bson.D{{Key: field, Value: direction}, {Key: "_id", Value: direction}}
}
