package mongo

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/example/campus-events/internal/persistence"
)

// CreateUser stores a new user. The unique email index rejects duplicates.
func (s *Storage) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || strings.TrimSpace(user.Email) == "" {
		return persistence.ErrConstraintViolation
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.RegisteredEventIDs = dedupe(user.RegisteredEventIDs)
	if _, err := s.users.InsertOne(ctx, toUserDoc(user)); err != nil {
		return mapError(err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Storage) GetUser(ctx context.Context, id string) (persistence.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return persistence.User{}, mapError(err)
	}
	return fromUserDoc(doc), nil
}

// FindUsersByIDs returns the known users among ids, in the order given.
func (s *Storage) FindUsersByIDs(ctx context.Context, ids []string) ([]persistence.User, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, mapError(err)
	}
	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapError(err)
	}

	byID := make(map[string]userDoc, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	var users []persistence.User
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			users = append(users, fromUserDoc(d))
		}
	}
	return users, nil
}

// SetPushToken stores or clears the user's push token.
func (s *Storage) SetPushToken(ctx context.Context, userID string, token *string) error {
	update := bson.M{"$set": bson.M{"updatedAt": utcMillis(time.Now())}}
	if token == nil {
		update["$unset"] = bson.M{"pushToken": ""}
	} else {
		update["$set"].(bson.M)["pushToken"] = *token
	}
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// AddRegistration appends eventID to the user's registrations once.
func (s *Storage) AddRegistration(ctx context.Context, userID, eventID string) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": userID},
		bson.M{"$addToSet": bson.M{"registeredEvents": eventID}})
	if err != nil {
		return mapError(err)
	}
	if res.MatchedCount == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// RemoveRegistration removes eventID from the user's registrations. An
// unknown user is not an error.
func (s *Storage) RemoveRegistration(ctx context.Context, userID, eventID string) error {
	_, err := s.users.UpdateOne(ctx, bson.M{"_id": userID},
		bson.M{"$pull": bson.M{"registeredEvents": eventID}})
	return mapError(err)
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
