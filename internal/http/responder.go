package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/campus-events/internal/application"
)

// Error codes carried in the envelope.
const (
	codeValidation      = "VALIDATION_ERROR"
	codeNotFound        = "NOT_FOUND"
	codeForbidden       = "FORBIDDEN"
	codeConflict        = "CONFLICT"
	codeUnauthenticated = "UNAUTHENTICATED"
	codeBadRequest      = "BAD_REQUEST"
	codeInternal        = "INTERNAL"
)

var (
	errBadRequestBody = errors.New("request body is not valid JSON")
	errMissingID      = errors.New("path identifier is required")
	errMissingUserID  = errors.New("X-User-ID header is required")
)

// envelope is the body of every response.
type envelope struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message,omitempty"`
	ErrorCode string            `json:"error_code,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
	Data      any               `json:"data,omitempty"`
}

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) ok(ctx context.Context, w http.ResponseWriter, status int, message string, data any) {
	r.writeJSON(ctx, w, status, envelope{Success: true, Message: message, Data: data})
}

func (r responder) fail(ctx context.Context, w http.ResponseWriter, status int, code, message string, fields map[string]string) {
	r.writeJSON(ctx, w, status, envelope{Success: false, Message: message, ErrorCode: code, Errors: fields})
}

// badRequest reports malformed input that never reached a service.
func (r responder) badRequest(ctx context.Context, w http.ResponseWriter, err error) {
	r.loggerFor(ctx).WarnContext(ctx, "bad request", "error", err)
	r.fail(ctx, w, http.StatusBadRequest, codeBadRequest, err.Error(), nil)
}

// invalid reports field errors detected while decoding.
func (r responder) invalid(ctx context.Context, w http.ResponseWriter, fields map[string]string) {
	r.fail(ctx, w, http.StatusUnprocessableEntity, codeValidation, "validation failed", fields)
}

// handleServiceError maps application errors onto the envelope. Services log
// their own failures, so only unexpected errors are logged again here.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code, message, fields := describeError(err)
	if status == http.StatusInternalServerError {
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "error", err, "error_kind", application.ErrorKind(err))
	}
	r.fail(ctx, w, status, code, message, fields)
}

func describeError(err error) (status int, code, message string, fields map[string]string) {
	var vErr *application.ValidationError
	var cErr *application.ConflictError
	switch {
	case err == nil:
		return http.StatusInternalServerError, codeInternal, "unknown error", nil
	case errors.As(err, &vErr):
		return http.StatusUnprocessableEntity, codeValidation, "validation failed", vErr.FieldErrors
	case errors.Is(err, application.ErrUnauthenticated):
		return http.StatusUnauthorized, codeUnauthenticated, "authentication required", nil
	case errors.Is(err, application.ErrForbidden):
		return http.StatusForbidden, codeForbidden, "you are not allowed to perform this action", nil
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound, codeNotFound, "resource not found", nil
	case errors.As(err, &cErr):
		return http.StatusConflict, codeConflict, conflictMessage(cErr), nil
	}
	return http.StatusInternalServerError, codeInternal, "internal server error", nil
}

func conflictMessage(err *application.ConflictError) string {
	switch {
	case errors.Is(err, application.ErrNotApproved):
		return "event is not open for registration"
	case errors.Is(err, application.ErrEventFull):
		return "event is full"
	case errors.Is(err, application.ErrDuplicateRSVP):
		return "already registered for this event"
	case errors.Is(err, application.ErrNoRSVP):
		return "no registration found for this event"
	}
	return "request conflicts with the current state"
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}
