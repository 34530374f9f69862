package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/campus-events/internal/application"
)

type eventService interface {
	CreateEvent(ctx context.Context, params application.CreateEventParams) (application.Event, error)
	UpdateEvent(ctx context.Context, params application.UpdateEventParams) (application.Event, error)
	DeleteEvent(ctx context.Context, principal application.Principal, eventID string) error
	TransitionEvent(ctx context.Context, params application.TransitionParams) (application.Event, error)
	GetEvent(ctx context.Context, principal application.Principal, eventID string) (application.EventDetail, error)
	ListEvents(ctx context.Context, params application.ListEventsParams) (application.EventPage, error)
	ListRegisteredEvents(ctx context.Context, principal application.Principal, upcoming bool) ([]application.Event, error)
	CountByStatus(ctx context.Context, principal application.Principal) (map[application.EventStatus]int, error)
}

// EventHandler serves the event lifecycle routes.
type EventHandler struct {
	service   eventService
	responder responder
	logger    *slog.Logger
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(service eventService, logger *slog.Logger) *EventHandler {
	base := defaultLogger(logger)
	return &EventHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *EventHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "EventHandler", operation, attrs...)
}

// List serves GET /events.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	params, fields := buildListParams(r, principal)
	if len(fields) > 0 {
		h.responder.invalid(r.Context(), w, fields)
		return
	}

	page, err := h.service.ListEvents(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, "", eventPageDTO{
		Events: toEventDTOs(page.Events),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

// Create serves POST /events.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req eventRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode event request", "error", err)
		h.responder.badRequest(r.Context(), w, err)
		return
	}
	input, fields := req.toInput()
	if len(fields) > 0 {
		h.responder.invalid(r.Context(), w, fields)
		return
	}

	event, err := h.service.CreateEvent(r.Context(), application.CreateEventParams{Principal: principal, Input: input})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusCreated, "Event submitted for approval", toEventDTO(event))
}

// Stats serves GET /events/stats.
func (h *EventHandler) Stats(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	counts, err := h.service.CountByStatus(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	data := make(map[string]int, len(counts)+1)
	total := 0
	for status, n := range counts {
		data[string(status)] = n
		total += n
	}
	data["total"] = total
	h.responder.ok(r.Context(), w, http.StatusOK, "", data)
}

// Get serves GET /events/{id}.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.responder.badRequest(r.Context(), w, errMissingID)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	detail, err := h.service.GetEvent(r.Context(), principal, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	dto := toEventDTO(detail.Event)
	if detail.Creator != nil {
		creator := toUserSummaryDTO(*detail.Creator)
		dto.Creator = &creator
	}
	h.responder.ok(r.Context(), w, http.StatusOK, "", dto)
}

// Update serves PUT /events/{id}.
func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.responder.badRequest(r.Context(), w, errMissingID)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	var req eventRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.log(r.Context(), "Update", "event_id", id, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode event request", "error", err)
		h.responder.badRequest(r.Context(), w, err)
		return
	}
	patch, fields := req.toPatch()
	if len(fields) > 0 {
		h.responder.invalid(r.Context(), w, fields)
		return
	}

	event, err := h.service.UpdateEvent(r.Context(), application.UpdateEventParams{Principal: principal, EventID: id, Patch: patch})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, "Event updated", toEventDTO(event))
}

// Delete serves DELETE /events/{id}.
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.responder.badRequest(r.Context(), w, errMissingID)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.service.DeleteEvent(r.Context(), principal, id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, "Event deleted", nil)
}

// Approve serves POST /events/{id}/approve.
func (h *EventHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, application.StatusApproved, nil)
}

// Reject serves POST /events/{id}/reject. The body may carry a reason.
func (h *EventHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		h.responder.badRequest(r.Context(), w, err)
		return
	}
	h.transition(w, r, application.StatusRejected, req.Reason)
}

// SetStatus serves PUT /events/{id}/status.
func (h *EventHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.responder.badRequest(r.Context(), w, err)
		return
	}
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status == "" {
		h.responder.invalid(r.Context(), w, map[string]string{"status": "is required"})
		return
	}
	h.transition(w, r, application.EventStatus(status), req.Reason)
}

func (h *EventHandler) transition(w http.ResponseWriter, r *http.Request, status application.EventStatus, reason *string) {
	id, ok := pathID(r)
	if !ok {
		h.responder.badRequest(r.Context(), w, errMissingID)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	event, err := h.service.TransitionEvent(r.Context(), application.TransitionParams{
		Principal: principal,
		EventID:   id,
		Status:    status,
		Reason:    reason,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, "Event "+string(event.Status), toEventDTO(event))
}

// Registered serves GET /me/events.
func (h *EventHandler) Registered(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	upcoming, ok := queryBool(r.URL.Query(), "upcoming")
	if !ok {
		h.responder.invalid(r.Context(), w, map[string]string{"upcoming": "must be a boolean"})
		return
	}

	events, err := h.service.ListRegisteredEvents(r.Context(), principal, upcoming)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, "", toEventDTOs(events))
}

type eventRequest struct {
	Title        *string   `json:"title"`
	Description  *string   `json:"description"`
	Date         *string   `json:"date"`
	Time         *string   `json:"time"`
	Location     *string   `json:"location"`
	Organizer    *string   `json:"organizer"`
	Category     *string   `json:"category"`
	ImageURL     *string   `json:"imageUrl"`
	Tags         *[]string `json:"tags"`
	MaxAttendees *int      `json:"maxAttendees"`
	RSVPRequired *bool     `json:"rsvpRequired"`
	IsPublic     *bool     `json:"isPublic"`
}

func (r eventRequest) toInput() (application.EventInput, map[string]string) {
	input := application.EventInput{
		Title:        deref(r.Title),
		Description:  deref(r.Description),
		Time:         deref(r.Time),
		Location:     deref(r.Location),
		Organizer:    deref(r.Organizer),
		Category:     deref(r.Category),
		ImageURL:     r.ImageURL,
		RSVPRequired: r.RSVPRequired,
		IsPublic:     r.IsPublic,
	}
	if r.Tags != nil {
		input.Tags = *r.Tags
	}
	if r.MaxAttendees != nil {
		input.MaxAttendees = *r.MaxAttendees
	}
	date, ok := parseEventDate(deref(r.Date))
	if !ok {
		return input, map[string]string{"date": "must be an ISO 8601 date"}
	}
	input.Date = date
	return input, nil
}

func (r eventRequest) toPatch() (application.EventPatch, map[string]string) {
	patch := application.EventPatch{
		Title:        r.Title,
		Description:  r.Description,
		Time:         r.Time,
		Location:     r.Location,
		Organizer:    r.Organizer,
		Category:     r.Category,
		ImageURL:     r.ImageURL,
		Tags:         r.Tags,
		MaxAttendees: r.MaxAttendees,
		RSVPRequired: r.RSVPRequired,
		IsPublic:     r.IsPublic,
	}
	if r.Date != nil {
		date, ok := parseEventDate(*r.Date)
		if !ok || date.IsZero() {
			return patch, map[string]string{"date": "must be an ISO 8601 date"}
		}
		patch.Date = &date
	}
	return patch, nil
}

type statusRequest struct {
	Status string  `json:"status"`
	Reason *string `json:"reason"`
}

func buildListParams(r *http.Request, principal application.Principal) (application.ListEventsParams, map[string]string) {
	values := r.URL.Query()
	fields := map[string]string{}
	params := application.ListEventsParams{
		Principal: principal,
		Category:  values.Get("category"),
		Search:    values.Get("search"),
		SortField: strings.TrimSpace(values.Get("sort")),
	}

	if status := strings.ToLower(strings.TrimSpace(values.Get("status"))); status != "" {
		s := application.EventStatus(status)
		params.Status = &s
	}
	switch strings.ToLower(strings.TrimSpace(values.Get("order"))) {
	case "", "asc":
	case "desc":
		params.Descending = true
	default:
		fields["order"] = "must be asc or desc"
	}

	var ok bool
	if params.Upcoming, ok = queryBool(values, "upcoming"); !ok {
		fields["upcoming"] = "must be a boolean"
	}
	if params.CreatedBy, ok = queryBool(values, "mine"); !ok {
		fields["mine"] = "must be a boolean"
	}
	if params.Limit, ok = queryInt(values, "limit"); !ok {
		fields["limit"] = "must be an integer"
	}
	if params.Offset, ok = queryInt(values, "offset"); !ok {
		fields["offset"] = "must be an integer"
	}
	return params, fields
}

func pathID(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	return id, id != ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
