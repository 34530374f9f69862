package application

import (
	"context"
	"log/slog"
)

// notifier fans a message out to users by ID. Failures on either channel are
// logged and never returned, since the triggering operation already committed.
type notifier struct {
	users      UserDirectory
	dispatcher *Dispatcher
}

func (n notifier) notifyIDs(ctx context.Context, logger *slog.Logger, userIDs []string, msg OutboundMessage) {
	if n.dispatcher == nil || n.users == nil || len(userIDs) == 0 {
		return
	}
	recipients, err := n.users.FindUsersByIDs(ctx, userIDs)
	if err != nil {
		logger.WarnContext(ctx, "failed to resolve notification recipients", "error", err, "notification_type", msg.Type)
		return
	}
	n.notifyUsers(ctx, logger, recipients, msg)
}

func (n notifier) notifyUsers(ctx context.Context, logger *slog.Logger, recipients []User, msg OutboundMessage) {
	if n.dispatcher == nil || len(recipients) == 0 {
		return
	}
	report := n.dispatcher.Notify(ctx, recipients, msg)
	if report.InAppErr != nil {
		logger.WarnContext(ctx, "in-app notification failed", "error", report.InAppErr, "notification_type", msg.Type)
	}
	failed := 0
	for _, r := range report.Push {
		if !r.Delivered {
			failed++
		}
	}
	if failed > 0 {
		logger.WarnContext(ctx, "push notification failed", "notification_type", msg.Type, "failed", failed, "attempted", len(report.Push))
	}
}

func stringPtr(s string) *string {
	return &s
}
