package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/campus-events/internal/application"
)

type rsvpService interface {
	RSVP(ctx context.Context, principal application.Principal, eventID string) (application.Event, error)
	CancelRSVP(ctx context.Context, principal application.Principal, eventID string) (application.Event, error)
}

type attendanceService interface {
	MarkAttendance(ctx context.Context, params application.MarkAttendanceParams) (application.Attendee, error)
	GetAttendees(ctx context.Context, principal application.Principal, eventID string) (application.AttendeeReport, error)
}

// RSVPHandler serves seat reservation and check-in routes.
type RSVPHandler struct {
	rsvps      rsvpService
	attendance attendanceService
	responder  responder
}

// NewRSVPHandler constructs an RSVPHandler.
func NewRSVPHandler(rsvps rsvpService, attendance attendanceService, logger *slog.Logger) *RSVPHandler {
	return &RSVPHandler{rsvps: rsvps, attendance: attendance, responder: newResponder(defaultLogger(logger))}
}

// RSVP serves POST /events/{id}/rsvp.
func (h *RSVPHandler) RSVP(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.responder.badRequest(r.Context(), w, errMissingID)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	event, err := h.rsvps.RSVP(r.Context(), principal, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, "RSVP confirmed", toEventDTO(event))
}

// Cancel serves DELETE /events/{id}/rsvp.
func (h *RSVPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.responder.badRequest(r.Context(), w, errMissingID)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	event, err := h.rsvps.CancelRSVP(r.Context(), principal, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, "RSVP cancelled", toEventDTO(event))
}

// MarkAttendance serves POST /events/{id}/attendance.
func (h *RSVPHandler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.responder.badRequest(r.Context(), w, errMissingID)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	var req attendanceRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.responder.badRequest(r.Context(), w, err)
		return
	}
	params := application.MarkAttendanceParams{
		Principal: principal,
		EventID:   id,
		UserID:    req.UserID,
		Attended:  req.Attended,
	}
	if req.CheckInMethod != nil {
		m := application.CheckInMethod(*req.CheckInMethod)
		params.Method = &m
	}

	attendee, err := h.attendance.MarkAttendance(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	message := "Attendance cleared"
	if attendee.Attended {
		message = "Attendance marked"
	}
	h.responder.ok(r.Context(), w, http.StatusOK, message, toAttendeeDTO(attendee))
}

// Attendees serves GET /events/{id}/attendees.
func (h *RSVPHandler) Attendees(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.responder.badRequest(r.Context(), w, errMissingID)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	report, err := h.attendance.GetAttendees(r.Context(), principal, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, "", toAttendeeReportDTO(report))
}

type attendanceRequest struct {
	UserID        string  `json:"userId"`
	Attended      *bool   `json:"attended"`
	CheckInMethod *string `json:"checkInMethod"`
}
