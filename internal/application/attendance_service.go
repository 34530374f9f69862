package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/example/campus-events/internal/persistence"
)

// AttendanceService records check-ins and reports attendance.
type AttendanceService struct {
	events EventRepository
	users  UserDirectory
	now    func() time.Time
	logger *slog.Logger
}

// NewAttendanceService constructs an attendance service with the provided dependencies.
func NewAttendanceService(events EventRepository, users UserDirectory, now func() time.Time) *AttendanceService {
	return NewAttendanceServiceWithLogger(events, users, now, nil)
}

// NewAttendanceServiceWithLogger constructs an attendance service with a specified logger.
func NewAttendanceServiceWithLogger(events EventRepository, users UserDirectory, now func() time.Time, logger *slog.Logger) *AttendanceService {
	if now == nil {
		now = time.Now
	}
	return &AttendanceService{events: events, users: users, now: now, logger: defaultLogger(logger)}
}

func (s *AttendanceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AttendanceService", operation, attrs...)
}

// MarkAttendance sets or toggles an attendee's check-in. Marking attended
// stamps the time and method (manual by default); unmarking clears both.
func (s *AttendanceService) MarkAttendance(ctx context.Context, params MarkAttendanceParams) (attendee Attendee, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "MarkAttendance",
		"principal_id", params.Principal.UserID,
		"event_id", params.EventID,
		"user_id", params.UserID,
	)
	defer func() {
		logOutcome(ctx, logger.With("attended", attendee.Attended), err, "failed to mark attendance", "attendance marked")
	}()

	if !HasModeratorCapability(params.Principal) {
		err = ErrForbidden
		return
	}
	if params.UserID == "" {
		err = singleFieldError("userId", "is required")
		return
	}
	method := CheckInManual
	if params.Method != nil {
		switch *params.Method {
		case CheckInScan, CheckInManual:
			method = *params.Method
		default:
			err = singleFieldError("checkInMethod", "must be one of scan, manual")
			return
		}
	}

	now := s.now()
	attendee, err = s.events.UpdateAttendee(ctx, params.EventID, params.UserID, func(a *Attendee) error {
		target := !a.Attended
		if params.Attended != nil {
			target = *params.Attended
		}
		if target {
			a.Attended = true
			a.AttendedAt = &now
			a.CheckInMethod = &method
			return nil
		}
		a.Attended = false
		a.AttendedAt = nil
		a.CheckInMethod = nil
		return nil
	})
	if err != nil {
		if errors.Is(err, persistence.ErrNotRegistered) {
			err = ErrNotFound
			return
		}
		err = mapRepoError(err)
		return
	}
	return
}

// GetAttendees returns the attendee list joined with user summaries plus
// statistics. Only the creator and moderators may list attendees. Records
// whose user no longer resolves are left out of both list and statistics.
func (s *AttendanceService) GetAttendees(ctx context.Context, principal Principal, eventID string) (report AttendeeReport, err error) {
	if s == nil {
		err = fmt.Errorf("AttendanceService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "GetAttendees",
		"principal_id", principal.UserID,
		"event_id", eventID,
	)
	defer func() {
		if err != nil {
			logger.Log(ctx, levelFor(err), "failed to list attendees", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		err = mapRepoError(err)
		return
	}
	if !canManage(principal, event) {
		err = ErrForbidden
		return
	}

	report.EventID = event.ID
	if len(event.Attendees) == 0 {
		return report, nil
	}

	byID := make(map[string]User, len(event.Attendees))
	if s.users != nil {
		users, lookupErr := s.users.FindUsersByIDs(ctx, event.AttendeeIDs())
		if lookupErr != nil {
			err = mapRepoError(lookupErr)
			return
		}
		for _, u := range users {
			byID[u.ID] = u
		}
	}

	report.Attendees = make([]AttendeeDetail, 0, len(event.Attendees))
	for _, a := range event.Attendees {
		user, ok := byID[a.UserID]
		if !ok {
			logger.WarnContext(ctx, "skipping attendee with unknown user", "user_id", a.UserID)
			continue
		}
		report.Attendees = append(report.Attendees, AttendeeDetail{Attendee: a, User: user.Summary()})
	}
	report.Stats = attendanceStats(report.Attendees)
	return report, nil
}

func attendanceStats(attendees []AttendeeDetail) AttendanceStats {
	stats := AttendanceStats{TotalRSVPs: len(attendees)}
	for _, a := range attendees {
		if a.Attendee.Attended {
			stats.AttendedCount++
		}
	}
	stats.PendingCount = stats.TotalRSVPs - stats.AttendedCount
	if stats.TotalRSVPs > 0 {
		rate := float64(stats.AttendedCount) / float64(stats.TotalRSVPs) * 100
		stats.AttendanceRate = math.Round(rate*10) / 10
	}
	return stats
}
