package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/example/campus-events/internal/application"
)

type notificationService interface {
	ListNotifications(ctx context.Context, params application.ListNotificationsParams) ([]application.Notification, error)
	UnreadCount(ctx context.Context, principal application.Principal) (int, error)
	MarkRead(ctx context.Context, principal application.Principal, id string) (application.Notification, error)
	MarkAllRead(ctx context.Context, principal application.Principal) (int, error)
	DeleteNotification(ctx context.Context, principal application.Principal, id string) error
	RegisterPushToken(ctx context.Context, principal application.Principal, token *string) error
}

// NotificationHandler serves the inbox and push token routes.
type NotificationHandler struct {
	service   notificationService
	responder responder
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(service notificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{service: service, responder: newResponder(defaultLogger(logger))}
}

// List serves GET /notifications.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	values := r.URL.Query()
	fields := map[string]string{}
	params := application.ListNotificationsParams{Principal: principal}

	var ok bool
	if params.UnreadOnly, ok = queryBool(values, "unread"); !ok {
		fields["unread"] = "must be a boolean"
	}
	if params.Limit, ok = queryInt(values, "limit"); !ok {
		fields["limit"] = "must be an integer"
	}
	if params.Offset, ok = queryInt(values, "offset"); !ok {
		fields["offset"] = "must be an integer"
	}
	if len(fields) > 0 {
		h.responder.invalid(r.Context(), w, fields)
		return
	}

	notifications, err := h.service.ListNotifications(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]notificationDTO, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, toNotificationDTO(n))
	}
	h.responder.ok(r.Context(), w, http.StatusOK, "", out)
}

// UnreadCount serves GET /notifications/unread-count.
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	n, err := h.service.UnreadCount(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, "", map[string]int{"count": n})
}

// MarkRead serves POST /notifications/{id}/read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.responder.badRequest(r.Context(), w, errMissingID)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	n, err := h.service.MarkRead(r.Context(), principal, id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, "Notification marked as read", toNotificationDTO(n))
}

// MarkAllRead serves POST /notifications/read-all.
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	n, err := h.service.MarkAllRead(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, "All notifications marked as read", map[string]int{"updated": n})
}

// Delete serves DELETE /notifications/{id}.
func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		h.responder.badRequest(r.Context(), w, errMissingID)
		return
	}
	principal, _ := PrincipalFromContext(r.Context())

	if err := h.service.DeleteNotification(r.Context(), principal, id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.ok(r.Context(), w, http.StatusOK, "Notification deleted", nil)
}

// RegisterPushToken serves PUT /me/push-token. A null token clears it.
func (h *NotificationHandler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req pushTokenRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		h.responder.badRequest(r.Context(), w, err)
		return
	}
	if err := h.service.RegisterPushToken(r.Context(), principal, req.PushToken); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	message := "Push token registered"
	if req.PushToken == nil {
		message = "Push token cleared"
	}
	h.responder.ok(r.Context(), w, http.StatusOK, message, nil)
}

type pushTokenRequest struct {
	PushToken *string `json:"pushToken"`
}
