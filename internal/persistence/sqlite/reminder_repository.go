package sqlite

import (
	"context"
	"time"
)

// ReminderRepository implements persistence.ReminderRepository using SQLite.
type ReminderRepository struct {
	pool  *ConnectionPool
	retry *RetryHelper
}

// ClaimReminder inserts the (event, milestone) marker unless it already exists.
func (r *ReminderRepository) ClaimReminder(ctx context.Context, eventID, milestone string, at time.Time) (bool, error) {
	var claimed bool
	err := r.retry.WithRetry(ctx, func() error {
		res, err := r.pool.DB().ExecContext(ctx,
			`INSERT OR IGNORE INTO reminder_markers (event_id, milestone, sent_at) VALUES (?, ?, ?)`,
			eventID, milestone, toMillis(at))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		claimed = n == 1
		return nil
	})
	return claimed, err
}

// ReleaseReminder deletes the marker so a later check can send it again.
func (r *ReminderRepository) ReleaseReminder(ctx context.Context, eventID, milestone string) error {
	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx,
			`DELETE FROM reminder_markers WHERE event_id = ? AND milestone = ?`, eventID, milestone)
		return err
	})
}
