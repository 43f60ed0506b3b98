package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/hydronom-io/hydronom/internal/pkg/admission"
	"github.com/hydronom-io/hydronom/internal/pkg/auth"
	"github.com/hydronom-io/hydronom/internal/relay/core"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Result        string `json:"result"`
	Data          any    `json:"data,omitempty"`
	Code          string `json:"code,omitempty"`
	Message       string `json:"message,omitempty"`
	Details       any    `json:"details,omitempty"`
	CorrelationID string `json:"correlationId"`
}

const (
	resultOK    = "ok"
	resultError = "error"
)

// Error codes.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeUnknownVehicle    = "UNKNOWN_VEHICLE"
	CodeUnknownMission    = "UNKNOWN_MISSION"
	CodeUnknownAction     = "UNKNOWN_ACTION"
	CodeConflict          = "CONFLICT"
	CodeModeConflict      = "MODE_CONFLICT"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeRateLimited       = "RATE_LIMITED"
	CodeNotImplemented    = "NOT_IMPLEMENTED"
	CodeUnavailable       = "UNAVAILABLE"
	CodeInternal          = "INTERNAL"
)

func writeOK(w http.ResponseWriter, status int, data any) {
	writeResponse(w, status, &Response{
		Result:        resultOK,
		Data:          data,
		CorrelationID: uuid.NewString(),
	})
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeResponse(w, status, &Response{
		Result:        resultError,
		Code:          code,
		Message:       message,
		Details:       details,
		CorrelationID: uuid.NewString(),
	})
}

func writeResponse(w http.ResponseWriter, status int, resp *Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeErr maps err onto a status code and error code.
func writeErr(w http.ResponseWriter, err error, details any) {
	status, code := classify(err)
	var mc *core.ModeConflictError
	if errors.As(err, &mc) && details == nil {
		details = map[string]any{"mode": mc.Mode, "command": mc.Command}
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, status, code, msg, details)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidRequest):
		return http.StatusBadRequest, CodeInvalidRequest
	case errors.Is(err, core.ErrUnknownAction):
		return http.StatusBadRequest, CodeUnknownAction
	case errors.Is(err, core.ErrUnknownVehicle):
		return http.StatusNotFound, CodeUnknownVehicle
	case errors.Is(err, core.ErrUnknownMission):
		return http.StatusNotFound, CodeUnknownMission
	case errors.Is(err, core.ErrModeConflict):
		return http.StatusConflict, CodeModeConflict
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, core.ErrInvalidTransition):
		return http.StatusConflict, CodeInvalidTransition
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, admission.ErrRateLimited):
		return http.StatusTooManyRequests, CodeRateLimited
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// deny adapts writeErr to the middleware callbacks.
func deny(w http.ResponseWriter, _ *http.Request, err error) {
	writeErr(w, err, nil)
}
