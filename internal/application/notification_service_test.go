package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/campus-events/internal/persistence"
)

func TestNotificationServiceInbox(t *testing.T) {
	notes := &notificationStoreStub{
		list:   []Notification{{ID: "n2"}, {ID: "n1"}},
		unread: 2,
		marked: 2,
	}
	svc := NewNotificationService(notes, newUserDirectoryStub(), fixedNow)
	ctx := context.Background()

	list, err := svc.ListNotifications(ctx, ListNotificationsParams{Principal: student("u1")})
	if err != nil || len(list) != 2 {
		t.Fatalf("ListNotifications returned %v, %v", list, err)
	}
	if n, err := svc.UnreadCount(ctx, student("u1")); err != nil || n != 2 {
		t.Fatalf("UnreadCount returned %d, %v", n, err)
	}
	read, err := svc.MarkRead(ctx, student("u1"), "n1")
	if err != nil || !read.IsRead || !read.ReadAt.Equal(testNow) {
		t.Fatalf("MarkRead returned %#v, %v", read, err)
	}
	if n, err := svc.MarkAllRead(ctx, student("u1")); err != nil || n != 2 {
		t.Fatalf("MarkAllRead returned %d, %v", n, err)
	}
	if err := svc.DeleteNotification(ctx, student("u1"), "n2"); err != nil || notes.deleteID != "n2" {
		t.Fatalf("DeleteNotification returned %v", err)
	}
}

func TestNotificationServiceErrors(t *testing.T) {
	notes := &notificationStoreStub{readErr: persistence.ErrNotFound}
	svc := NewNotificationService(notes, newUserDirectoryStub(), fixedNow)
	ctx := context.Background()

	if _, err := svc.MarkRead(ctx, student("u1"), "other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.DeleteNotification(ctx, student("u1"), "other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.ListNotifications(ctx, ListNotificationsParams{}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	_, err := svc.ListNotifications(ctx, ListNotificationsParams{Principal: student("u1"), Limit: -1})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.FieldErrors["limit"] == "" {
		t.Fatalf("expected limit validation error, got %v", err)
	}
}

func TestNotificationServiceRegisterPushToken(t *testing.T) {
	cases := []struct {
		name    string
		token   *string
		wantErr bool
		stored  bool
	}{
		{name: "valid token", token: tokenPtr("ExponentPushToken[abc123]"), stored: true},
		{name: "invalid token", token: tokenPtr("hello"), wantErr: true},
		{name: "clear with nil", token: nil},
		{name: "clear with blank", token: tokenPtr("   ")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			users := newUserDirectoryStub(User{ID: "u1"})
			svc := NewNotificationService(&notificationStoreStub{}, users, fixedNow)
			err := svc.RegisterPushToken(context.Background(), student("u1"), tc.token)
			if tc.wantErr {
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("RegisterPushToken returned error: %v", err)
			}
			stored, ok := users.tokens["u1"]
			if !ok {
				t.Fatalf("expected SetPushToken to be called")
			}
			if tc.stored != (stored != nil) {
				t.Fatalf("expected stored=%v, got %v", tc.stored, stored)
			}
		})
	}
}

func TestIdentityServiceResolvePrincipal(t *testing.T) {
	users := newUserDirectoryStub(User{ID: "u1", Role: RoleCR})
	svc := NewIdentityService(users, 0, fixedNow)
	ctx := context.Background()

	p, err := svc.ResolvePrincipal(ctx, " u1 ")
	if err != nil || p.UserID != "u1" || p.Role != RoleCR {
		t.Fatalf("ResolvePrincipal returned %#v, %v", p, err)
	}

	delete(users.users, "u1")
	if cached, err := svc.ResolvePrincipal(ctx, "u1"); err != nil || cached.Role != RoleCR {
		t.Fatalf("expected cached principal, got %#v, %v", cached, err)
	}

	for _, id := range []string{"", "ghost"} {
		if _, err := svc.ResolvePrincipal(ctx, id); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated for %q, got %v", id, err)
		}
	}

	users.err = errors.New("db down")
	if _, err := svc.ResolvePrincipal(ctx, "other"); err == nil || errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected repository error, got %v", err)
	}
}
