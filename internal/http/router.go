package http

import (
	"net/http"
)

// RouterConfig wires handlers into the router. Nil handlers leave their
// routes unregistered.
type RouterConfig struct {
	Events        *EventHandler
	RSVPs         *RSVPHandler
	Notifications *NotificationHandler
	Health        http.Handler
	// Identity wraps every route except the health check.
	Identity   func(http.Handler) http.Handler
	Middleware []func(http.Handler) http.Handler
}

// NewRouter builds the HTTP surface on a method-aware ServeMux.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	protect := func(h http.HandlerFunc) http.Handler {
		if cfg.Identity == nil {
			return h
		}
		return cfg.Identity(h)
	}
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protect(h))
	}

	if cfg.Health != nil {
		mux.Handle("GET /healthz", cfg.Health)
	}

	if e := cfg.Events; e != nil {
		handle("GET /events", e.List)
		handle("POST /events", e.Create)
		handle("GET /events/stats", e.Stats)
		handle("GET /events/{id}", e.Get)
		handle("PUT /events/{id}", e.Update)
		handle("DELETE /events/{id}", e.Delete)
		handle("POST /events/{id}/approve", e.Approve)
		handle("POST /events/{id}/reject", e.Reject)
		handle("PUT /events/{id}/status", e.SetStatus)
		handle("GET /me/events", e.Registered)
	}

	if rs := cfg.RSVPs; rs != nil {
		handle("POST /events/{id}/rsvp", rs.RSVP)
		handle("DELETE /events/{id}/rsvp", rs.Cancel)
		handle("POST /events/{id}/attendance", rs.MarkAttendance)
		handle("GET /events/{id}/attendees", rs.Attendees)
	}

	if n := cfg.Notifications; n != nil {
		handle("GET /notifications", n.List)
		handle("GET /notifications/unread-count", n.UnreadCount)
		handle("POST /notifications/read-all", n.MarkAllRead)
		handle("POST /notifications/{id}/read", n.MarkRead)
		handle("DELETE /notifications/{id}", n.Delete)
		handle("PUT /me/push-token", n.RegisterPushToken)
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}
