package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/campus-events/internal/push"
)

// NotificationService exposes the recipient's inbox and push token.
type NotificationService struct {
	notifications  NotificationRepository
	users          UserDirectory
	tokenValidator func(string) bool
	now            func() time.Time
	logger         *slog.Logger
}

// NewNotificationService constructs a notification service with the provided dependencies.
func NewNotificationService(notifications NotificationRepository, users UserDirectory, now func() time.Time) *NotificationService {
	return NewNotificationServiceWithLogger(notifications, users, now, nil)
}

// NewNotificationServiceWithLogger constructs a notification service with a specified logger.
func NewNotificationServiceWithLogger(notifications NotificationRepository, users UserDirectory, now func() time.Time, logger *slog.Logger) *NotificationService {
	if now == nil {
		now = time.Now
	}
	return &NotificationService{
		notifications:  notifications,
		users:          users,
		tokenValidator: push.IsValidToken,
		now:            now,
		logger:         defaultLogger(logger),
	}
}

func (s *NotificationService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "NotificationService", operation, attrs...)
}

func (s *NotificationService) ready(principal Principal) error {
	if s == nil {
		return fmt.Errorf("NotificationService is nil")
	}
	if s.notifications == nil {
		return fmt.Errorf("notification repository not configured")
	}
	if principal.UserID == "" {
		return ErrUnauthenticated
	}
	return nil
}

// ListNotifications returns the principal's notifications, newest first.
func (s *NotificationService) ListNotifications(ctx context.Context, params ListNotificationsParams) ([]Notification, error) {
	if err := s.ready(params.Principal); err != nil {
		return nil, err
	}
	limit := params.Limit
	if limit == 0 {
		limit = DefaultPageLimit
	}
	vErr := &ValidationError{}
	if limit < 0 || limit > MaxPageLimit {
		vErr.add("limit", fmt.Sprintf("must be between 1 and %d", MaxPageLimit))
	}
	if params.Offset < 0 {
		vErr.add("offset", "must not be negative")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	list, err := s.notifications.ListNotifications(ctx, params.Principal.UserID, params.UnreadOnly, limit, params.Offset)
	if err != nil {
		err = mapRepoError(err)
		s.loggerWith(ctx, "ListNotifications", "principal_id", params.Principal.UserID).
			ErrorContext(ctx, "failed to list notifications", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return list, nil
}

// UnreadCount returns how many of the principal's notifications are unread.
func (s *NotificationService) UnreadCount(ctx context.Context, principal Principal) (int, error) {
	if err := s.ready(principal); err != nil {
		return 0, err
	}
	n, err := s.notifications.CountUnread(ctx, principal.UserID)
	if err != nil {
		return 0, mapRepoError(err)
	}
	return n, nil
}

// MarkRead marks one of the principal's notifications read.
func (s *NotificationService) MarkRead(ctx context.Context, principal Principal, id string) (n Notification, err error) {
	if err = s.ready(principal); err != nil {
		return
	}
	logger := s.loggerWith(ctx, "MarkRead", "principal_id", principal.UserID, "notification_id", id)
	defer func() {
		logOutcome(ctx, logger, err, "failed to mark notification read", "notification marked read")
	}()

	n, err = s.notifications.MarkRead(ctx, principal.UserID, id, s.now())
	if err != nil {
		err = mapRepoError(err)
	}
	return
}

// MarkAllRead marks every unread notification of the principal read.
func (s *NotificationService) MarkAllRead(ctx context.Context, principal Principal) (count int, err error) {
	if err = s.ready(principal); err != nil {
		return
	}
	logger := s.loggerWith(ctx, "MarkAllRead", "principal_id", principal.UserID)
	defer func() {
		logOutcome(ctx, logger.With("count", count), err, "failed to mark notifications read", "notifications marked read")
	}()

	count, err = s.notifications.MarkAllRead(ctx, principal.UserID, s.now())
	if err != nil {
		err = mapRepoError(err)
	}
	return
}

// DeleteNotification removes one of the principal's notifications.
func (s *NotificationService) DeleteNotification(ctx context.Context, principal Principal, id string) (err error) {
	if err = s.ready(principal); err != nil {
		return
	}
	logger := s.loggerWith(ctx, "DeleteNotification", "principal_id", principal.UserID, "notification_id", id)
	defer func() {
		logOutcome(ctx, logger, err, "failed to delete notification", "notification deleted")
	}()

	if err = s.notifications.DeleteNotification(ctx, principal.UserID, id); err != nil {
		err = mapRepoError(err)
	}
	return
}

// RegisterPushToken stores the principal's device token. A nil or blank
// token clears it.
func (s *NotificationService) RegisterPushToken(ctx context.Context, principal Principal, token *string) (err error) {
	if s == nil {
		return fmt.Errorf("NotificationService is nil")
	}
	if s.users == nil {
		return fmt.Errorf("user directory not configured")
	}
	if principal.UserID == "" {
		return ErrUnauthenticated
	}

	token = normalizeOptionalString(token)
	logger := s.loggerWith(ctx, "RegisterPushToken",
		"principal_id", principal.UserID,
		"token_fingerprint", fingerprintOrEmpty(token),
	)
	defer func() {
		logOutcome(ctx, logger, err, "failed to register push token", "push token registered")
	}()

	if token != nil && !s.tokenValidator(strings.TrimSpace(*token)) {
		return singleFieldError("pushToken", "is not a valid device token")
	}
	if err = s.users.SetPushToken(ctx, principal.UserID, token); err != nil {
		err = mapRepoError(err)
	}
	return
}

func fingerprintOrEmpty(token *string) string {
	if token == nil {
		return ""
	}
	return push.Fingerprint(*token)
}
