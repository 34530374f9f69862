package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves GET /healthz.
type HealthHandler struct {
	store     Pinger
	responder responder
}

// NewHealthHandler constructs a HealthHandler. A nil store reports healthy.
func NewHealthHandler(store Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, responder: newResponder(defaultLogger(logger))}
}

// ServeHTTP implements http.Handler.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.responder.loggerFor(r.Context()).ErrorContext(r.Context(), "storage ping failed", "error", err)
			h.responder.fail(r.Context(), w, http.StatusServiceUnavailable, codeInternal, "storage unavailable", nil)
			return
		}
	}
	h.responder.ok(r.Context(), w, http.StatusOK, "ok", nil)
}
