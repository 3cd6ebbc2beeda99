package web

// errors.go turns pipeline errors into JSON responses.
//
// The technical error is logged with the request id; the client gets the
// mapped message, the support code and the run id if one was assigned.

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/regingest/internal/core"
	"github.com/JonMunkholm/regingest/internal/lock"
	"github.com/JonMunkholm/regingest/internal/logging"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	RunID   string `json:"run_id,omitempty"`
	Success bool   `json:"success"`
}

// statusFor picks the HTTP status of a failed request.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyRuns):
		return http.StatusTooManyRequests
	case errors.Is(err, lock.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidBatch), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

// respondError logs err and writes the mapped message.
func respondError(w http.ResponseWriter, r *http.Request, err error, runID string) {
	status := statusFor(err)
	msg := core.MapError(err)

	// Known errors are the client's or the environment's; unknown ones are
	// ours and log at error level.
	level := slog.LevelError
	if core.IsUserFacing(err) {
		level = slog.LevelWarn
	}
	logging.FromContext(r.Context()).Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
		"run_id", runID,
	)

	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		RunID:   runID,
	})
}
