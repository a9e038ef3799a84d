package web

// errors.go turns errors into JSON responses.
//
// Every error is logged with its technical detail and request ID, then
// mapped through core.MapError so clients only see a message, an action and
// a support code.

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/JonMunkholm/repsync/internal/core"
	"github.com/JonMunkholm/repsync/internal/logging"
	"github.com/JonMunkholm/repsync/internal/reps"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var extErr *core.ExtractionError
	var tmoErr *core.TimeoutError
	switch {
	case errors.Is(err, core.ErrNoActor):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrNoInput), errors.As(err, &extErr):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrBackupNotFound), errors.Is(err, reps.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManySyncs):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrRunsUnavailable), errors.Is(err, core.ErrBackupsUnavailable):
		return http.StatusNotImplemented
	case errors.As(err, &tmoErr):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its user message with statusFor(err).
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	respondErrorStatus(w, r, err, statusFor(err))
}

// respondErrorStatus is respondError with an explicit status.
func respondErrorStatus(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)
	log := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request error", "path", r.URL.Path, "status", status, "code", msg.Code, "error", err)
	} else {
		log.Warn("request rejected", "path", r.URL.Path, "status", status, "code", msg.Code, "error", err)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// badRequest writes a 400 for malformed input that never reached core.
func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	logging.FromContext(r.Context()).Warn("bad request", "path", r.URL.Path, "error", message)
	writeJSONStatus(w, http.StatusBadRequest, ErrorResponse{
		Error:   message,
		Message: message,
		Code:    "REQ000",
	})
}
