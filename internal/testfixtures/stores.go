package testfixtures

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/example/campus-events/internal/persistence"
	"github.com/example/campus-events/internal/persistence/memory"
	"github.com/example/campus-events/internal/persistence/mongo"
	"github.com/example/campus-events/internal/persistence/sqlite"
)

// Stores groups the repositories of one storage backend.
type Stores struct {
	Events        persistence.EventRepository
	Users         persistence.UserRepository
	Notifications persistence.NotificationRepository
	Reminders     persistence.ReminderRepository
}

// Backend names a storage implementation and opens a fresh instance of it.
type Backend struct {
	Name string
	Open func(tb testing.TB) Stores
}

// MongoURIEnv names the variable that enables the MongoDB backend in tests.
const MongoURIEnv = "CAMPUS_EVENTS_TEST_MONGO_URI"

// Backends lists every store that runs without external services, plus
// MongoDB when MongoURIEnv is set. Contract tests iterate over it.
func Backends() []Backend {
	backends := []Backend{
		{Name: "memory", Open: NewMemoryStores},
		{Name: "sqlite", Open: NewSQLiteStores},
	}
	if strings.TrimSpace(os.Getenv(MongoURIEnv)) != "" {
		backends = append(backends, Backend{Name: "mongo", Open: NewMongoStores})
	}
	return backends
}

// NewMongoStores opens a scratch database on the server named by MongoURIEnv
// and drops it when the test ends. The test is skipped when the variable is
// unset.
func NewMongoStores(tb testing.TB) Stores {
	tb.Helper()

	uri := strings.TrimSpace(os.Getenv(MongoURIEnv))
	if uri == "" {
		tb.Skipf("%s not set", MongoURIEnv)
	}
	ctx := context.Background()
	storage, err := mongo.Open(ctx, mongo.Config{
		URI:            uri,
		Database:       "campus_test_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		ConnectTimeout: 5 * time.Second,
	}, nil)
	if err != nil {
		tb.Fatalf("failed to open mongo storage: %v", err)
	}
	tb.Cleanup(func() {
		_ = storage.Drop(context.Background())
		_ = storage.Close()
	})
	if err := storage.Migrate(ctx); err != nil {
		tb.Fatalf("failed to migrate mongo storage: %v", err)
	}
	return Stores{Events: storage, Users: storage, Notifications: storage, Reminders: storage}
}

// NewSQLiteStores opens a migrated SQLite file in a temporary directory. It is
// closed when the test ends.
func NewSQLiteStores(tb testing.TB) Stores {
	tb.Helper()

	storage, err := sqlite.Open(context.Background(), filepath.Join(tb.TempDir(), "campus.db"), nil)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() {
		_ = storage.Close()
	})
	if err := storage.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}
	return Stores{Events: storage, Users: storage, Notifications: storage, Reminders: storage}
}

// NewMemoryStores returns an empty in-memory store.
func NewMemoryStores(tb testing.TB) Stores {
	tb.Helper()
	storage := memory.Open()
	tb.Cleanup(func() {
		_ = storage.Close()
	})
	return Stores{Events: storage, Users: storage, Notifications: storage, Reminders: storage}
}

// Seed inserts users then events, failing the test on the first error.
func (s Stores) Seed(tb testing.TB, users []UserFixture, events []EventFixture) {
	tb.Helper()
	ctx := context.Background()
	for _, u := range users {
		if err := s.Users.CreateUser(ctx, u.Persistence()); err != nil {
			tb.Fatalf("seed user %s: %v", u.ID, err)
		}
	}
	for _, e := range events {
		if _, err := s.Events.CreateEvent(ctx, e.Persistence()); err != nil {
			tb.Fatalf("seed event %s: %v", e.ID, err)
		}
	}
}
