package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/example/campus-events/internal/persistence"
)

// UserRepository implements persistence.UserRepository using SQLite.
type UserRepository struct {
	pool  *ConnectionPool
	retry *RetryHelper
}

// CreateUser inserts a new directory entry and its registrations.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || strings.TrimSpace(user.Email) == "" {
		return persistence.ErrConstraintViolation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `INSERT INTO users
				(id, name, email, role, push_token, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				user.ID,
				user.Name,
				normalizeEmail(user.Email),
				user.Role,
				nullableString(user.PushToken),
				toMillis(user.CreatedAt),
				toMillis(user.UpdatedAt),
			); err != nil {
				return err
			}
			for _, eventID := range uniqueIDs(user.RegisteredEventIDs) {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO user_registrations (user_id, event_id, registered_at) VALUES (?, ?, ?)`,
					user.ID, eventID, toMillis(user.CreatedAt),
				); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// GetUser retrieves a user by ID.
func (r *UserRepository) GetUser(ctx context.Context, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	users, err := r.FindUsersByIDs(ctx, []string{id})
	if err != nil {
		return persistence.User{}, err
	}
	if len(users) == 0 {
		return persistence.User{}, persistence.ErrNotFound
	}
	return users[0], nil
}

// FindUsersByIDs returns the users that exist among ids in the order given.
// Unknown ids are skipped.
func (r *UserRepository) FindUsersByIDs(ctx context.Context, ids []string) ([]persistence.User, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	var users []persistence.User
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			byID := make(map[string]*persistence.User, len(ids))

			rows, err := tx.QueryContext(ctx, `SELECT id, name, email, role, push_token, created_at, updated_at
				FROM users WHERE id IN (`+placeholders(len(ids))+`)`, args...)
			if err != nil {
				return err
			}
			for rows.Next() {
				var (
					u         persistence.User
					pushToken sql.NullString
					createdAt int64
					updatedAt int64
				)
				if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &pushToken, &createdAt, &updatedAt); err != nil {
					rows.Close()
					return err
				}
				u.PushToken = stringFromNull(pushToken)
				u.CreatedAt = fromMillis(createdAt)
				u.UpdatedAt = fromMillis(updatedAt)
				byID[u.ID] = &u
			}
			if err := rows.Close(); err != nil {
				return err
			}
			if err := rows.Err(); err != nil {
				return err
			}

			regs, err := tx.QueryContext(ctx, `SELECT user_id, event_id FROM user_registrations
				WHERE user_id IN (`+placeholders(len(ids))+`) ORDER BY registered_at, event_id`, args...)
			if err != nil {
				return err
			}
			defer regs.Close()
			for regs.Next() {
				var userID, eventID string
				if err := regs.Scan(&userID, &eventID); err != nil {
					return err
				}
				if u, ok := byID[userID]; ok {
					u.RegisteredEventIDs = append(u.RegisteredEventIDs, eventID)
				}
			}
			if err := regs.Err(); err != nil {
				return err
			}

			users = users[:0]
			for _, id := range ids {
				if u, ok := byID[id]; ok {
					users = append(users, *u)
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// SetPushToken stores or clears the user's push token.
func (r *UserRepository) SetPushToken(ctx context.Context, userID string, token *string) error {
	return r.retry.WithRetry(ctx, func() error {
		res, err := r.pool.DB().ExecContext(ctx,
			`UPDATE users SET push_token = ?, updated_at = ? WHERE id = ?`,
			nullableString(token), toMillis(time.Now()), userID,
		)
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

// AddRegistration adds eventID to the user's registration list. Adding an
// existing entry is a no-op.
func (r *UserRepository) AddRegistration(ctx context.Context, userID, eventID string) error {
	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var one int
			err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.ErrNotFound
			}
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO user_registrations (user_id, event_id, registered_at) VALUES (?, ?, ?)`,
				userID, eventID, toMillis(time.Now()),
			)
			return err
		})
	})
}

// RemoveRegistration removes eventID from the user's registration list.
func (r *UserRepository) RemoveRegistration(ctx context.Context, userID, eventID string) error {
	return r.retry.WithRetry(ctx, func() error {
		_, err := r.pool.DB().ExecContext(ctx,
			`DELETE FROM user_registrations WHERE user_id = ? AND event_id = ?`, userID, eventID)
		return err
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
