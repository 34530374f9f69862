package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/campus-events/internal/persistence"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	storage, err := Open(context.Background(), filepath.Join(t.TempDir(), "events.db"), nil)
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() {
		_ = storage.Close()
	})

	if err := storage.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return storage
}

func ptr[T any](v T) *T {
	return &v
}

var baseTime = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	user := persistence.User{
		ID:        "user-1",
		Name:      "Alice",
		Email:     " Alice@Example.com ",
		Role:      "student",
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
	if err := storage.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := storage.CreateUser(ctx, persistence.User{ID: "user-2", Name: "Dup", Email: "alice@example.com", Role: "student"}); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for duplicate email, got %v", err)
	}

	fetched, err := storage.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if fetched.Email != "alice@example.com" || fetched.PushToken != nil {
		t.Fatalf("unexpected user %#v", fetched)
	}

	if err := storage.SetPushToken(ctx, "user-1", ptr("ExponentPushToken[abc]")); err != nil {
		t.Fatalf("SetPushToken failed: %v", err)
	}
	if err := storage.SetPushToken(ctx, "missing", nil); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := storage.AddRegistration(ctx, "user-1", "event-1"); err != nil {
		t.Fatalf("AddRegistration failed: %v", err)
	}
	if err := storage.AddRegistration(ctx, "user-1", "event-1"); err != nil {
		t.Fatalf("repeated AddRegistration failed: %v", err)
	}
	if err := storage.AddRegistration(ctx, "ghost", "event-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}

	users, err := storage.FindUsersByIDs(ctx, []string{"ghost", "user-1", "user-1"})
	if err != nil {
		t.Fatalf("FindUsersByIDs failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected one resolved user, got %d", len(users))
	}
	if users[0].PushToken == nil || *users[0].PushToken != "ExponentPushToken[abc]" {
		t.Fatalf("expected push token to be stored, got %v", users[0].PushToken)
	}
	if len(users[0].RegisteredEventIDs) != 1 || users[0].RegisteredEventIDs[0] != "event-1" {
		t.Fatalf("unexpected registrations %v", users[0].RegisteredEventIDs)
	}

	if err := storage.RemoveRegistration(ctx, "user-1", "event-1"); err != nil {
		t.Fatalf("RemoveRegistration failed: %v", err)
	}
	fetched, _ = storage.GetUser(ctx, "user-1")
	if len(fetched.RegisteredEventIDs) != 0 {
		t.Fatalf("expected registration removed, got %v", fetched.RegisteredEventIDs)
	}

	if _, err := storage.GetUser(ctx, "ghost"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNotificationRepository(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	notifications := []persistence.Notification{
		{ID: "n-1", RecipientID: "user-1", Type: "reminder", Title: "Soon", Body: "Starts soon", EventID: ptr("event-1"), Data: map[string]string{"eventId": "event-1"}, CreatedAt: baseTime},
		{ID: "n-2", RecipientID: "user-1", Type: "general", Title: "Hello", Body: "Hi", CreatedAt: baseTime.Add(time.Minute)},
		{ID: "n-3", RecipientID: "user-2", Type: "general", Title: "Other", Body: "Other", CreatedAt: baseTime},
	}
	if err := storage.CreateNotifications(ctx, notifications); err != nil {
		t.Fatalf("CreateNotifications failed: %v", err)
	}

	list, err := storage.ListNotifications(ctx, "user-1", false, persistence.Page{})
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "n-2" || list[1].ID != "n-1" {
		t.Fatalf("expected newest first for user-1, got %#v", list)
	}
	if list[1].Data["eventId"] != "event-1" || list[1].EventID == nil {
		t.Fatalf("expected data and event id round trip, got %#v", list[1])
	}

	count, err := storage.CountUnread(ctx, "user-1")
	if err != nil || count != 2 {
		t.Fatalf("expected 2 unread, got %d (%v)", count, err)
	}

	read, err := storage.MarkRead(ctx, "user-1", "n-1", baseTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if !read.IsRead || read.ReadAt == nil || !read.ReadAt.Equal(baseTime.Add(time.Hour)) {
		t.Fatalf("unexpected read notification %#v", read)
	}
	again, err := storage.MarkRead(ctx, "user-1", "n-1", baseTime.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("second MarkRead failed: %v", err)
	}
	if !again.ReadAt.Equal(baseTime.Add(time.Hour)) {
		t.Fatalf("expected first read time to be kept, got %v", again.ReadAt)
	}
	if _, err := storage.MarkRead(ctx, "user-2", "n-1", baseTime); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another recipient, got %v", err)
	}

	unread, err := storage.ListNotifications(ctx, "user-1", true, persistence.Page{Limit: 10})
	if err != nil || len(unread) != 1 || unread[0].ID != "n-2" {
		t.Fatalf("unexpected unread list %#v (%v)", unread, err)
	}

	marked, err := storage.MarkAllRead(ctx, "user-1", baseTime.Add(3*time.Hour))
	if err != nil || marked != 1 {
		t.Fatalf("expected 1 marked, got %d (%v)", marked, err)
	}

	if err := storage.DeleteNotification(ctx, "user-2", "n-2"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting another recipient's notification, got %v", err)
	}
	if err := storage.DeleteNotification(ctx, "user-1", "n-2"); err != nil {
		t.Fatalf("DeleteNotification failed: %v", err)
	}
	list, _ = storage.ListNotifications(ctx, "user-1", false, persistence.Page{})
	if len(list) != 1 {
		t.Fatalf("expected one notification left, got %d", len(list))
	}
}

func TestReminderRepository(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	event := newTestEvent("event-1", "approved", 10)
	if _, err := storage.CreateEvent(ctx, event); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	claimed, err := storage.ClaimReminder(ctx, "event-1", "24h", baseTime)
	if err != nil || !claimed {
		t.Fatalf("expected first claim to succeed, got %v (%v)", claimed, err)
	}
	claimed, err = storage.ClaimReminder(ctx, "event-1", "24h", baseTime.Add(time.Hour))
	if err != nil || claimed {
		t.Fatalf("expected second claim to be rejected, got %v (%v)", claimed, err)
	}
	claimed, err = storage.ClaimReminder(ctx, "event-1", "60m", baseTime)
	if err != nil || !claimed {
		t.Fatalf("expected other milestone claim to succeed, got %v (%v)", claimed, err)
	}

	if err := storage.ReleaseReminder(ctx, "event-1", "24h"); err != nil {
		t.Fatalf("ReleaseReminder failed: %v", err)
	}
	claimed, err = storage.ClaimReminder(ctx, "event-1", "24h", baseTime)
	if err != nil || !claimed {
		t.Fatalf("expected claim after release to succeed, got %v (%v)", claimed, err)
	}

	if _, err := storage.DeleteEvent(ctx, "event-1"); err != nil {
		t.Fatalf("DeleteEvent failed: %v", err)
	}
	var markers int
	if err := storage.pool.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM reminder_markers`).Scan(&markers); err != nil {
		t.Fatalf("count markers: %v", err)
	}
	if markers != 0 {
		t.Fatalf("expected markers to cascade with the event, got %d", markers)
	}
}

func TestErrorMapper(t *testing.T) {
	t.Parallel()

	mapper := NewErrorMapper()
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "unique", err: errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"), want: persistence.ErrDuplicate},
		{name: "check", err: errors.New("constraint failed: CHECK constraint failed: events (275)"), want: persistence.ErrConstraintViolation},
		{name: "busy", err: errors.New("database is locked (5) (SQLITE_BUSY)"), want: errBusy},
		{name: "sentinel passthrough", err: persistence.ErrEventFull, want: persistence.ErrEventFull},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mapper.MapError(tc.err); !errors.Is(got, tc.want) {
				t.Fatalf("MapError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRetryHelper(t *testing.T) {
	t.Parallel()

	helper := NewRetryHelper(RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1})

	t.Run("retries busy errors", func(t *testing.T) {
		attempts := 0
		err := helper.WithRetry(context.Background(), func() error {
			attempts++
			if attempts < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
		if err != nil || attempts != 3 {
			t.Fatalf("expected success on third attempt, got %v after %d attempts", err, attempts)
		}
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		attempts := 0
		err := helper.WithRetry(context.Background(), func() error {
			attempts++
			return persistence.ErrNotFound
		})
		if !errors.Is(err, persistence.ErrNotFound) || attempts != 1 {
			t.Fatalf("expected single attempt with ErrNotFound, got %v after %d attempts", err, attempts)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		attempts := 0
		err := helper.WithRetry(context.Background(), func() error {
			attempts++
			return errors.New("database is locked")
		})
		if !errors.Is(err, errBusy) || attempts != 3 {
			t.Fatalf("expected busy error after 3 attempts, got %v after %d", err, attempts)
		}
	})
}
