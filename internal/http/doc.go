// Package http exposes the campus events API over net/http.
//
// Every route except GET /healthz expects the gateway to supply the caller's
// user ID in the X-User-ID header; RequireIdentity resolves it to a principal.
// Responses share one envelope:
//
//	{"success": bool, "message": string, "error_code": string, "errors": {field: msg}, "data": any}
//
// error_code is one of VALIDATION_ERROR (422), NOT_FOUND (404), FORBIDDEN
// (403), CONFLICT (409), UNAUTHENTICATED (401), BAD_REQUEST (400) and
// INTERNAL (500).
//
// Routes:
//   - GET /events, POST /events, GET /events/stats
//   - GET, PUT, DELETE /events/{id}
//   - POST /events/{id}/approve, POST /events/{id}/reject, PUT /events/{id}/status
//   - POST, DELETE /events/{id}/rsvp
//   - POST /events/{id}/attendance, GET /events/{id}/attendees
//   - GET /me/events, PUT /me/push-token
//   - GET /notifications, GET /notifications/unread-count
//   - POST /notifications/{id}/read, POST /notifications/read-all, DELETE /notifications/{id}
//
// Request and response DTOs live in dto.go and alongside their handlers.
package http
