package core

import (
	"errors"
	"fmt"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
)

// Errors returned by the relay core. Callers match them with errors.Is;
// the returned errors usually wrap one of these with more context.
var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUnknownVehicle    = errors.New("unknown vehicle")
	ErrUnknownMission    = errors.New("unknown mission")
	ErrConflict          = errors.New("conflict")
	ErrModeConflict      = errors.New("mode conflict")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnknownAction     = errors.New("unknown action")

	// ErrSinkDegraded is only ever reported through observability. No
	// caller of the core receives it.
	ErrSinkDegraded = errors.New("audit sink degraded")
)

// ModeConflictError is returned when a command is not allowed in the
// vehicle's current mode.
type ModeConflictError struct {
	Mode    model.Mode
	Command model.CommandType
}

func (e *ModeConflictError) Error() string {
	return fmt.Sprintf("%s: %s not allowed while vehicle is in %s mode", ErrModeConflict, e.Command, e.Mode)
}

func (e *ModeConflictError) Is(target error) bool {
	return target == ErrModeConflict
}

// InvalidRequest wraps a validation failure.
func InvalidRequest(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
}

// Reason maps an error to a short, stable label used for metrics and
// command results.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrUnknownVehicle):
		return "unknown_vehicle"
	case errors.Is(err, ErrUnknownMission):
		return "unknown_mission"
	case errors.Is(err, ErrModeConflict):
		return "mode_conflict"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrUnknownAction):
		return "unknown_action"
	default:
		return "internal"
	}
}
