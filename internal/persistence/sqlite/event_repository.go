package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/campus-events/internal/persistence"
)

// EventRepository implements persistence.EventRepository using SQLite.
type EventRepository struct {
	pool  *ConnectionPool
	retry *RetryHelper
}

const eventColumns = `id, title, description, starts_at, time_label, location, organizer, category,
	image_url, tags, max_attendees, current_attendees, status, approved_by, approved_at,
	rejection_reason, rejected_by, rejected_at, creator_id, rsvp_required, is_public,
	created_at, updated_at`

// CreateEvent inserts the event together with any initial attendees.
func (r *EventRepository) CreateEvent(ctx context.Context, event persistence.Event) (persistence.Event, error) {
	if strings.TrimSpace(event.ID) == "" {
		return persistence.Event{}, persistence.ErrConstraintViolation
	}
	event.CurrentAttendees = len(event.Attendees)

	tags, err := encodeJSON(normalizeTags(event.Tags))
	if err != nil {
		return persistence.Event{}, fmt.Errorf("encode tags: %w", err)
	}

	var created persistence.Event
	err = r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO events (`+eventColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				event.ID,
				event.Title,
				event.Description,
				toMillis(event.Date),
				event.Time,
				event.Location,
				event.Organizer,
				event.Category,
				nullableString(event.ImageURL),
				tags,
				event.MaxAttendees,
				event.CurrentAttendees,
				event.Status,
				nullableString(event.ApprovedBy),
				nullableMillis(event.ApprovedAt),
				nullableString(event.RejectionReason),
				nullableString(event.RejectedBy),
				nullableMillis(event.RejectedAt),
				event.CreatorID,
				boolToInt(event.RSVPRequired),
				boolToInt(event.IsPublic),
				toMillis(event.CreatedAt),
				toMillis(event.UpdatedAt),
			)
			if err != nil {
				return err
			}
			for _, attendee := range event.Attendees {
				if err := insertAttendee(ctx, tx, event.ID, attendee); err != nil {
					return err
				}
			}
			created, err = loadEvent(ctx, tx, event.ID)
			return err
		})
	})
	if err != nil {
		return persistence.Event{}, err
	}
	return created, nil
}

// GetEvent loads an event and its attendees.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	if id == "" {
		return persistence.Event{}, persistence.ErrNotFound
	}
	var event persistence.Event
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			var err error
			event, err = loadEvent(ctx, tx, id)
			return err
		})
	})
	if err != nil {
		return persistence.Event{}, err
	}
	return event, nil
}

// FindEvents lists events matching the filter, including their attendees.
func (r *EventRepository) FindEvents(ctx context.Context, filter persistence.EventFilter, sort persistence.EventSort, page persistence.Page) ([]persistence.Event, error) {
	where, args := buildEventWhere(filter)
	query := `SELECT ` + eventColumns + ` FROM events` + where + orderBy(sort)
	query, args = appendPage(query, args, page)

	var events []persistence.Event
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			rows, err := tx.QueryContext(ctx, query, args...)
			if err != nil {
				return err
			}
			events = events[:0]
			for rows.Next() {
				event, err := scanEvent(rows)
				if err != nil {
					rows.Close()
					return err
				}
				events = append(events, event)
			}
			if err := rows.Close(); err != nil {
				return err
			}
			if err := rows.Err(); err != nil {
				return err
			}
			return attachAttendees(ctx, tx, events)
		})
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// CountEvents counts events matching the filter.
func (r *EventRepository) CountEvents(ctx context.Context, filter persistence.EventFilter) (int, error) {
	where, args := buildEventWhere(filter)
	var count int
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&count)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// UpdateEvent applies mutate to the stored event and persists the scalar
// fields. The attendee list and counter are owned by the attendee methods and
// are never written here.
func (r *EventRepository) UpdateEvent(ctx context.Context, id string, mutate persistence.EventMutator) (persistence.Event, error) {
	var updated persistence.Event
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			current, err := loadEvent(ctx, tx, id)
			if err != nil {
				return err
			}

			next := cloneEvent(current)
			if mutate != nil {
				if err := mutate(&next); err != nil {
					return err
				}
			}
			next.ID = current.ID
			next.CreatorID = current.CreatorID
			next.CreatedAt = current.CreatedAt
			next.Attendees = current.Attendees
			next.CurrentAttendees = current.CurrentAttendees

			tags, err := encodeJSON(normalizeTags(next.Tags))
			if err != nil {
				return fmt.Errorf("encode tags: %w", err)
			}

			res, err := tx.ExecContext(ctx, `UPDATE events SET
					title = ?, description = ?, starts_at = ?, time_label = ?, location = ?,
					organizer = ?, category = ?, image_url = ?, tags = ?, max_attendees = ?,
					status = ?, approved_by = ?, approved_at = ?, rejection_reason = ?,
					rejected_by = ?, rejected_at = ?, rsvp_required = ?, is_public = ?, updated_at = ?
				WHERE id = ?`,
				next.Title,
				next.Description,
				toMillis(next.Date),
				next.Time,
				next.Location,
				next.Organizer,
				next.Category,
				nullableString(next.ImageURL),
				tags,
				next.MaxAttendees,
				next.Status,
				nullableString(next.ApprovedBy),
				nullableMillis(next.ApprovedAt),
				nullableString(next.RejectionReason),
				nullableString(next.RejectedBy),
				nullableMillis(next.RejectedAt),
				boolToInt(next.RSVPRequired),
				boolToInt(next.IsPublic),
				toMillis(next.UpdatedAt),
				id,
			)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				return persistence.ErrNotFound
			}

			updated, err = loadEvent(ctx, tx, id)
			return err
		})
	})
	if err != nil {
		return persistence.Event{}, err
	}
	return updated, nil
}

// DeleteEvent removes the event and returns it as it was at deletion;
// attendees and reminder markers cascade.
func (r *EventRepository) DeleteEvent(ctx context.Context, id string) (persistence.Event, error) {
	var removed persistence.Event
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			event, err := loadEvent(ctx, tx, id)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
				return err
			}
			removed = event
			return nil
		})
	})
	if err != nil {
		return persistence.Event{}, err
	}
	return removed, nil
}

// AddAttendee appends an attendee only if the event is approved, below
// capacity, and the user is not yet registered. The counter increment is the
// compare-and-swap: its WHERE clause re-checks every precondition.
func (r *EventRepository) AddAttendee(ctx context.Context, eventID string, attendee persistence.Attendee, at time.Time) (persistence.Event, error) {
	if attendee.UserID == "" {
		return persistence.Event{}, persistence.ErrConstraintViolation
	}
	var updated persistence.Event
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `UPDATE events
				SET current_attendees = current_attendees + 1, updated_at = ?
				WHERE id = ?
					AND status = 'approved'
					AND current_attendees < max_attendees
					AND NOT EXISTS (SELECT 1 FROM event_attendees WHERE event_id = ? AND user_id = ?)`,
				toMillis(at), eventID, eventID, attendee.UserID,
			)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return diagnoseAdmission(ctx, tx, eventID)
			}

			if err := insertAttendee(ctx, tx, eventID, attendee); err != nil {
				if errors.Is(NewErrorMapper().MapError(err), persistence.ErrDuplicate) {
					return persistence.ErrAlreadyRegistered
				}
				return err
			}
			updated, err = loadEvent(ctx, tx, eventID)
			return err
		})
	})
	if err != nil {
		return persistence.Event{}, err
	}
	return updated, nil
}

// diagnoseAdmission explains why the conditional increment matched no row,
// in precondition order: existence, status, capacity, duplicate.
func diagnoseAdmission(ctx context.Context, q queryer, eventID string) error {
	var (
		status           string
		current, maximum int
	)
	err := q.QueryRowContext(ctx,
		`SELECT status, current_attendees, max_attendees FROM events WHERE id = ?`, eventID,
	).Scan(&status, &current, &maximum)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}
	if err != nil {
		return err
	}
	switch {
	case status != "approved":
		return persistence.ErrEventNotApproved
	case current >= maximum:
		return persistence.ErrEventFull
	default:
		return persistence.ErrAlreadyRegistered
	}
}

// RemoveAttendee deletes the user's attendee record and decrements the counter.
func (r *EventRepository) RemoveAttendee(ctx context.Context, eventID, userID string, at time.Time) (persistence.Event, error) {
	var updated persistence.Event
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx,
				`DELETE FROM event_attendees WHERE event_id = ? AND user_id = ?`, eventID, userID)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				if err := ensureEventExists(ctx, tx, eventID); err != nil {
					return err
				}
				return persistence.ErrNotRegistered
			}

			if _, err := tx.ExecContext(ctx,
				`UPDATE events SET current_attendees = current_attendees - 1, updated_at = ? WHERE id = ?`,
				toMillis(at), eventID,
			); err != nil {
				return err
			}
			updated, err = loadEvent(ctx, tx, eventID)
			return err
		})
	})
	if err != nil {
		return persistence.Event{}, err
	}
	return updated, nil
}

// UpdateAttendee applies mutate to a single attendee record.
func (r *EventRepository) UpdateAttendee(ctx context.Context, eventID, userID string, mutate persistence.AttendeeMutator) (persistence.Attendee, error) {
	var updated persistence.Attendee
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			current, err := scanAttendee(tx.QueryRowContext(ctx,
				`SELECT user_id, rsvp_at, attended, attended_at, check_in_method
				FROM event_attendees WHERE event_id = ? AND user_id = ?`, eventID, userID))
			if errors.Is(err, sql.ErrNoRows) {
				if err := ensureEventExists(ctx, tx, eventID); err != nil {
					return err
				}
				return persistence.ErrNotRegistered
			}
			if err != nil {
				return err
			}

			next := current
			if mutate != nil {
				if err := mutate(&next); err != nil {
					return err
				}
			}
			next.UserID = current.UserID
			next.RSVPAt = current.RSVPAt

			if _, err := tx.ExecContext(ctx, `UPDATE event_attendees
				SET attended = ?, attended_at = ?, check_in_method = ?
				WHERE event_id = ? AND user_id = ?`,
				boolToInt(next.Attended),
				nullableMillis(next.AttendedAt),
				nullableString(next.CheckInMethod),
				eventID,
				userID,
			); err != nil {
				return err
			}
			updated = next
			return nil
		})
	})
	if err != nil {
		return persistence.Attendee{}, err
	}
	return updated, nil
}

func ensureEventExists(ctx context.Context, q queryer, eventID string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.ErrNotFound
	}
	return err
}

func insertAttendee(ctx context.Context, q queryer, eventID string, attendee persistence.Attendee) error {
	_, err := q.ExecContext(ctx, `INSERT INTO event_attendees
		(event_id, user_id, rsvp_at, attended, attended_at, check_in_method)
		VALUES (?, ?, ?, ?, ?, ?)`,
		eventID,
		attendee.UserID,
		toMillis(attendee.RSVPAt),
		boolToInt(attendee.Attended),
		nullableMillis(attendee.AttendedAt),
		nullableString(attendee.CheckInMethod),
	)
	return err
}

func loadEvent(ctx context.Context, q queryer, id string) (persistence.Event, error) {
	event, err := scanEvent(q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Event{}, persistence.ErrNotFound
		}
		return persistence.Event{}, err
	}
	events := []persistence.Event{event}
	if err := attachAttendees(ctx, q, events); err != nil {
		return persistence.Event{}, err
	}
	return events[0], nil
}

// attachAttendees loads attendee lists for every event in a single query.
func attachAttendees(ctx context.Context, q queryer, events []persistence.Event) error {
	if len(events) == 0 {
		return nil
	}
	ids := make([]any, len(events))
	index := make(map[string]int, len(events))
	for i, e := range events {
		ids[i] = e.ID
		index[e.ID] = i
	}

	rows, err := q.QueryContext(ctx, `SELECT event_id, user_id, rsvp_at, attended, attended_at, check_in_method
		FROM event_attendees WHERE event_id IN (`+placeholders(len(ids))+`)
		ORDER BY rsvp_at, rowid`, ids...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			eventID    string
			userID     string
			rsvpAt     int64
			attended   int
			attendedAt sql.NullInt64
			method     sql.NullString
		)
		if err := rows.Scan(&eventID, &userID, &rsvpAt, &attended, &attendedAt, &method); err != nil {
			return err
		}
		i := index[eventID]
		events[i].Attendees = append(events[i].Attendees, persistence.Attendee{
			UserID:        userID,
			RSVPAt:        fromMillis(rsvpAt),
			Attended:      attended == 1,
			AttendedAt:    timeFromNull(attendedAt),
			CheckInMethod: stringFromNull(method),
		})
	}
	return rows.Err()
}

func scanAttendee(row rowScanner) (persistence.Attendee, error) {
	var (
		attendee   persistence.Attendee
		rsvpAt     int64
		attended   int
		attendedAt sql.NullInt64
		method     sql.NullString
	)
	if err := row.Scan(&attendee.UserID, &rsvpAt, &attended, &attendedAt, &method); err != nil {
		return persistence.Attendee{}, err
	}
	attendee.RSVPAt = fromMillis(rsvpAt)
	attendee.Attended = attended == 1
	attendee.AttendedAt = timeFromNull(attendedAt)
	attendee.CheckInMethod = stringFromNull(method)
	return attendee, nil
}

func scanEvent(row rowScanner) (persistence.Event, error) {
	var (
		event           persistence.Event
		startsAt        int64
		imageURL        sql.NullString
		tags            string
		approvedBy      sql.NullString
		approvedAt      sql.NullInt64
		rejectionReason sql.NullString
		rejectedBy      sql.NullString
		rejectedAt      sql.NullInt64
		rsvpRequired    int
		isPublic        int
		createdAt       int64
		updatedAt       int64
	)
	err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Description,
		&startsAt,
		&event.Time,
		&event.Location,
		&event.Organizer,
		&event.Category,
		&imageURL,
		&tags,
		&event.MaxAttendees,
		&event.CurrentAttendees,
		&event.Status,
		&approvedBy,
		&approvedAt,
		&rejectionReason,
		&rejectedBy,
		&rejectedAt,
		&event.CreatorID,
		&rsvpRequired,
		&isPublic,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return persistence.Event{}, err
	}

	if err := json.Unmarshal([]byte(tags), &event.Tags); err != nil {
		return persistence.Event{}, fmt.Errorf("decode tags for event %s: %w", event.ID, err)
	}
	event.Date = fromMillis(startsAt)
	event.ImageURL = stringFromNull(imageURL)
	event.ApprovedBy = stringFromNull(approvedBy)
	event.ApprovedAt = timeFromNull(approvedAt)
	event.RejectionReason = stringFromNull(rejectionReason)
	event.RejectedBy = stringFromNull(rejectedBy)
	event.RejectedAt = timeFromNull(rejectedAt)
	event.RSVPRequired = rsvpRequired == 1
	event.IsPublic = isPublic == 1
	event.CreatedAt = fromMillis(createdAt)
	event.UpdatedAt = fromMillis(updatedAt)
	return event, nil
}

func buildEventWhere(filter persistence.EventFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)

	if len(filter.Statuses) > 0 {
		clause := `status IN (` + placeholders(len(filter.Statuses)) + `)`
		for _, s := range filter.Statuses {
			args = append(args, s)
		}
		if filter.OwnerID != "" {
			clause = `(` + clause + ` OR creator_id = ?)`
			args = append(args, filter.OwnerID)
		}
		clauses = append(clauses, clause)
	}
	if filter.CreatorID != "" {
		clauses = append(clauses, `creator_id = ?`)
		args = append(args, filter.CreatorID)
	}
	if filter.AttendeeID != "" {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM event_attendees a WHERE a.event_id = events.id AND a.user_id = ?)`)
		args = append(args, filter.AttendeeID)
	}
	if filter.Category != "" {
		clauses = append(clauses, `category = ?`)
		args = append(args, filter.Category)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		pattern := "%" + escapeLike(term) + "%"
		clauses = append(clauses, `(title LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR location LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	if filter.DateFrom != nil {
		clauses = append(clauses, `starts_at >= ?`)
		args = append(args, toMillis(*filter.DateFrom))
	}
	if filter.DateBefore != nil {
		clauses = append(clauses, `starts_at < ?`)
		args = append(args, toMillis(*filter.DateBefore))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func orderBy(sort persistence.EventSort) string {
	column := "starts_at"
	switch sort.Field {
	case persistence.SortByCreatedAt:
		column = "created_at"
	case persistence.SortByTitle:
		column = "title COLLATE NOCASE"
	}
	direction := "ASC"
	if sort.Descending {
		direction = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", column, direction, direction)
}

func normalizeTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func cloneEvent(e persistence.Event) persistence.Event {
	out := e
	if e.Tags != nil {
		out.Tags = append([]string(nil), e.Tags...)
	}
	if e.Attendees != nil {
		out.Attendees = append([]persistence.Attendee(nil), e.Attendees...)
	}
	return out
}
