package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/campus-events/internal/persistence"
)

// NotificationRepository implements persistence.NotificationRepository using SQLite.
type NotificationRepository struct {
	pool  *ConnectionPool
	retry *RetryHelper
}

const notificationColumns = `id, recipient_id, type, title, body, event_id, data, is_read, read_at, created_at`

// CreateNotifications inserts all notifications in one transaction.
func (r *NotificationRepository) CreateNotifications(ctx context.Context, notifications []persistence.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	for _, n := range notifications {
		if n.ID == "" || n.RecipientID == "" {
			return persistence.ErrConstraintViolation
		}
	}

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			stmt, err := tx.PrepareContext(ctx, `INSERT INTO notifications (`+notificationColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
			if err != nil {
				return err
			}
			defer stmt.Close()

			for _, n := range notifications {
				var data sql.NullString
				if len(n.Data) > 0 {
					encoded, err := encodeJSON(n.Data)
					if err != nil {
						return fmt.Errorf("encode notification data: %w", err)
					}
					data = sql.NullString{String: encoded, Valid: true}
				}
				if _, err := stmt.ExecContext(ctx,
					n.ID,
					n.RecipientID,
					n.Type,
					n.Title,
					n.Body,
					nullableString(n.EventID),
					data,
					boolToInt(n.IsRead),
					nullableMillis(n.ReadAt),
					toMillis(n.CreatedAt),
				); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// ListNotifications returns the recipient's notifications, newest first.
func (r *NotificationRepository) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, page persistence.Page) ([]persistence.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = ?`
	args := []any{recipientID}
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	query, args = appendPage(query, args, page)

	var out []persistence.Notification
	err := r.retry.WithRetry(ctx, func() error {
		rows, err := r.pool.DB().QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			n, err := scanNotification(rows)
			if err != nil {
				return err
			}
			out = append(out, n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CountUnread counts the recipient's unread notifications.
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.DB().QueryRowContext(ctx,
			`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0`, recipientID,
		).Scan(&count)
	})
	return count, err
}

// MarkRead marks one notification read. The original read time is kept when
// the notification was already read.
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID, id string, at time.Time) (persistence.Notification, error) {
	var updated persistence.Notification
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `UPDATE notifications
				SET is_read = 1, read_at = COALESCE(read_at, ?)
				WHERE id = ? AND recipient_id = ?`, toMillis(at), id, recipientID)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return persistence.ErrNotFound
			}
			updated, err = scanNotification(tx.QueryRowContext(ctx,
				`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id))
			return err
		})
	})
	if err != nil {
		return persistence.Notification{}, err
	}
	return updated, nil
}

// MarkAllRead marks every unread notification of the recipient read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int, error) {
	var affected int64
	err := r.retry.WithRetry(ctx, func() error {
		res, err := r.pool.DB().ExecContext(ctx,
			`UPDATE notifications SET is_read = 1, read_at = ? WHERE recipient_id = ? AND is_read = 0`,
			toMillis(at), recipientID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return int(affected), err
}

// DeleteNotification removes a notification owned by the recipient.
func (r *NotificationRepository) DeleteNotification(ctx context.Context, recipientID, id string) error {
	return r.retry.WithRetry(ctx, func() error {
		res, err := r.pool.DB().ExecContext(ctx,
			`DELETE FROM notifications WHERE id = ? AND recipient_id = ?`, id, recipientID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

func scanNotification(row rowScanner) (persistence.Notification, error) {
	var (
		n         persistence.Notification
		eventID   sql.NullString
		data      sql.NullString
		isRead    int
		readAt    sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Body, &eventID, &data, &isRead, &readAt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Notification{}, persistence.ErrNotFound
		}
		return persistence.Notification{}, err
	}
	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &n.Data); err != nil {
			return persistence.Notification{}, fmt.Errorf("decode notification data: %w", err)
		}
	}
	n.EventID = stringFromNull(eventID)
	n.IsRead = isRead == 1
	n.ReadAt = timeFromNull(readAt)
	n.CreatedAt = fromMillis(createdAt)
	return n, nil
}
