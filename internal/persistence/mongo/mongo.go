// Package mongo stores campus events in MongoDB. Events embed their attendee
// list so that admission is a single-document conditional update.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/campus-events/internal/persistence"
)

// Collection names.
const (
	eventsCollection        = "events"
	usersCollection         = "users"
	notificationsCollection = "notifications"
	remindersCollection     = "reminder_markers"
)

// Storage implements every persistence repository on one MongoDB database.
type Storage struct {
	client        *driver.Client
	db            *driver.Database
	events        *driver.Collection
	users         *driver.Collection
	notifications *driver.Collection
	reminders     *driver.Collection
	logger        *slog.Logger

	// seq orders notifications created in the same millisecond.
	seq atomic.Int64
}

var (
	_ persistence.EventRepository        = (*Storage)(nil)
	_ persistence.UserRepository         = (*Storage)(nil)
	_ persistence.NotificationRepository = (*Storage)(nil)
	_ persistence.ReminderRepository     = (*Storage)(nil)
)

// Config holds connection settings.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// Open connects to the server and verifies it answers a ping.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Storage, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo: uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = "campus_events"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := driver.Connect(connectCtx, options.Client().ApplyURI(cfg.URI).SetConnectTimeout(cfg.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &Storage{
		client:        client,
		db:            db,
		events:        db.Collection(eventsCollection),
		users:         db.Collection(usersCollection),
		notifications: db.Collection(notificationsCollection),
		reminders:     db.Collection(remindersCollection),
		logger:        logger,
	}
	s.seq.Store(time.Now().UnixNano())
	return s, nil
}

// Close disconnects the client.
func (s *Storage) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks the server connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Drop deletes the whole database. Tests use it to discard scratch databases.
func (s *Storage) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

// Migrate creates the indexes the repositories rely on. It is idempotent.
func (s *Storage) Migrate(ctx context.Context) error {
	for _, spec := range indexSpecs() {
		coll := s.collection(spec.collection)
		if _, err := coll.Indexes().CreateMany(ctx, spec.models); err != nil {
			return fmt.Errorf("mongo: create %s indexes: %w", spec.collection, err)
		}
		s.logger.InfoContext(ctx, "mongo indexes ensured", "collection", spec.collection, "count", len(spec.models))
	}
	return nil
}

type indexSpec struct {
	collection string
	models     []driver.IndexModel
}

func indexSpecs() []indexSpec {
	return []indexSpec{
		{collection: usersCollection, models: []driver.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		}},
		{collection: eventsCollection, models: []driver.IndexModel{
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "date", Value: 1}}},
			{Keys: bson.D{{Key: "creatorId", Value: 1}}},
			{Keys: bson.D{{Key: "attendees.userId", Value: 1}}},
		}},
		{collection: notificationsCollection, models: []driver.IndexModel{
			{Keys: bson.D{{Key: "recipientId", Value: 1}, {Key: "createdAt", Value: -1}, {Key: "seq", Value: -1}}},
		}},
		{collection: remindersCollection, models: []driver.IndexModel{
			{Keys: bson.D{{Key: "eventId", Value: 1}}},
		}},
	}
}

func (s *Storage) collection(name string) *driver.Collection {
	switch name {
	case eventsCollection:
		return s.events
	case usersCollection:
		return s.users
	case notificationsCollection:
		return s.notifications
	default:
		return s.reminders
	}
}

// mapError converts driver errors into persistence sentinels.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, driver.ErrNoDocuments):
		return persistence.ErrNotFound
	case driver.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
	}
	return err
}
