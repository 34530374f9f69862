package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/campus-events/internal/application"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched
// when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return errBadRequestBody
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// parseEventDate accepts RFC 3339 timestamps and plain calendar dates, which
// are read as midnight UTC.
func parseEventDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, true
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func queryBool(values map[string][]string, key string) (bool, bool) {
	raw := strings.TrimSpace(first(values, key))
	if raw == "" {
		return false, true
	}
	b, err := strconv.ParseBool(raw)
	return b, err == nil
}

func queryInt(values map[string][]string, key string) (int, bool) {
	raw := strings.TrimSpace(first(values, key))
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

func first(values map[string][]string, key string) string {
	if v := values[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

type userSummaryDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func toUserSummaryDTO(u application.UserSummary) userSummaryDTO {
	return userSummaryDTO{ID: u.ID, Name: u.Name, Email: u.Email, Role: string(u.Role)}
}

type attendeeDTO struct {
	UserID        string  `json:"userId"`
	RSVPAt        string  `json:"rsvpDate"`
	Attended      bool    `json:"attended"`
	AttendedAt    *string `json:"attendedAt,omitempty"`
	CheckInMethod *string `json:"checkInMethod,omitempty"`
}

func toAttendeeDTO(a application.Attendee) attendeeDTO {
	dto := attendeeDTO{
		UserID:     a.UserID,
		RSVPAt:     formatTime(a.RSVPAt),
		Attended:   a.Attended,
		AttendedAt: formatTimePtr(a.AttendedAt),
	}
	if a.CheckInMethod != nil {
		m := string(*a.CheckInMethod)
		dto.CheckInMethod = &m
	}
	return dto
}

type eventDTO struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Date             string          `json:"date"`
	Time             string          `json:"time"`
	Location         string          `json:"location"`
	Organizer        string          `json:"organizer"`
	Category         string          `json:"category"`
	ImageURL         *string         `json:"imageUrl,omitempty"`
	Tags             []string        `json:"tags"`
	MaxAttendees     int             `json:"maxAttendees"`
	CurrentAttendees int             `json:"currentAttendees"`
	Attendees        []attendeeDTO   `json:"attendees"`
	Status           string          `json:"status"`
	ApprovedBy       *string         `json:"approvedBy,omitempty"`
	ApprovedAt       *string         `json:"approvedAt,omitempty"`
	RejectionReason  *string         `json:"rejectionReason,omitempty"`
	RejectedBy       *string         `json:"rejectedBy,omitempty"`
	RejectedAt       *string         `json:"rejectedAt,omitempty"`
	CreatedBy        string          `json:"createdBy"`
	Creator          *userSummaryDTO `json:"creator,omitempty"`
	RSVPRequired     bool            `json:"rsvpRequired"`
	IsPublic         bool            `json:"isPublic"`
	CreatedAt        string          `json:"createdAt"`
	UpdatedAt        string          `json:"updatedAt"`
}

func toEventDTO(e application.Event) eventDTO {
	dto := eventDTO{
		ID:               e.ID,
		Title:            e.Title,
		Description:      e.Description,
		Date:             formatTime(e.Date),
		Time:             e.Time,
		Location:         e.Location,
		Organizer:        e.Organizer,
		Category:         e.Category,
		ImageURL:         e.ImageURL,
		Tags:             append([]string{}, e.Tags...),
		MaxAttendees:     e.MaxAttendees,
		CurrentAttendees: e.CurrentAttendees,
		Attendees:        make([]attendeeDTO, 0, len(e.Attendees)),
		Status:           string(e.Status),
		ApprovedBy:       e.ApprovedBy,
		ApprovedAt:       formatTimePtr(e.ApprovedAt),
		RejectionReason:  e.RejectionReason,
		RejectedBy:       e.RejectedBy,
		RejectedAt:       formatTimePtr(e.RejectedAt),
		CreatedBy:        e.CreatorID,
		RSVPRequired:     e.RSVPRequired,
		IsPublic:         e.IsPublic,
		CreatedAt:        formatTime(e.CreatedAt),
		UpdatedAt:        formatTime(e.UpdatedAt),
	}
	for _, a := range e.Attendees {
		dto.Attendees = append(dto.Attendees, toAttendeeDTO(a))
	}
	return dto
}

func toEventDTOs(events []application.Event) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, toEventDTO(e))
	}
	return out
}

type eventPageDTO struct {
	Events []eventDTO `json:"events"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

type attendeeDetailDTO struct {
	attendeeDTO
	User userSummaryDTO `json:"user"`
}

type attendanceStatsDTO struct {
	TotalRSVPs     int     `json:"totalRSVPs"`
	AttendedCount  int     `json:"attendedCount"`
	PendingCount   int     `json:"pendingCount"`
	AttendanceRate float64 `json:"attendanceRate"`
}

type attendeeReportDTO struct {
	EventID   string              `json:"eventId"`
	Attendees []attendeeDetailDTO `json:"attendees"`
	Stats     attendanceStatsDTO  `json:"stats"`
}

func toAttendeeReportDTO(report application.AttendeeReport) attendeeReportDTO {
	dto := attendeeReportDTO{
		EventID:   report.EventID,
		Attendees: make([]attendeeDetailDTO, 0, len(report.Attendees)),
		Stats: attendanceStatsDTO{
			TotalRSVPs:     report.Stats.TotalRSVPs,
			AttendedCount:  report.Stats.AttendedCount,
			PendingCount:   report.Stats.PendingCount,
			AttendanceRate: report.Stats.AttendanceRate,
		},
	}
	for _, d := range report.Attendees {
		dto.Attendees = append(dto.Attendees, attendeeDetailDTO{
			attendeeDTO: toAttendeeDTO(d.Attendee),
			User:        toUserSummaryDTO(d.User),
		})
	}
	return dto
}

type notificationDTO struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	EventID   *string           `json:"eventId,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	IsRead    bool              `json:"isRead"`
	ReadAt    *string           `json:"readAt,omitempty"`
	CreatedAt string            `json:"createdAt"`
}

func toNotificationDTO(n application.Notification) notificationDTO {
	return notificationDTO{
		ID:        n.ID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Body,
		EventID:   n.EventID,
		Data:      n.Data,
		IsRead:    n.IsRead,
		ReadAt:    formatTimePtr(n.ReadAt),
		CreatedAt: formatTime(n.CreatedAt),
	}
}
