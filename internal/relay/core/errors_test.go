package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
)

func TestModeConflictErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("enqueue: %w", &ModeConflictError{Mode: model.ModeAutonomous, Command: model.CommandSetThrusters})

	assert.ErrorIs(t, err, ErrModeConflict)
	assert.NotErrorIs(t, err, ErrConflict)

	var mc *ModeConflictError
	assert.True(t, errors.As(err, &mc))
	assert.Equal(t, model.ModeAutonomous, mc.Mode)
	assert.Equal(t, "mode_conflict", Reason(err))
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", Reason(nil))
	assert.Equal(t, "invalid_request", Reason(InvalidRequest(errors.New("vehicle_id required"))))
	assert.Equal(t, "unknown_vehicle", Reason(fmt.Errorf("%w: boat-01", ErrUnknownVehicle)))
	assert.Equal(t, "internal", Reason(errors.New("boom")))
}
