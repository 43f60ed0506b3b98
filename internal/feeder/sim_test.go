package feeder

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
)

func newTestSim(opts SimOptions) *Sim {
	if opts.VehicleID == "" {
		opts.VehicleID = "hydronom-boat-01"
	}
	if opts.Type == "" {
		opts.Type = model.VehicleBoat
	}
	if opts.Mode == "" {
		opts.Mode = model.ModeManual
	}
	return NewSim(opts)
}

func TestSnapshotIsValid(t *testing.T) {
	s := newTestSim(SimOptions{Lat: 41.025, Lon: 28.85, SoC: 90, TaskID: "task-001"})
	s.Step(200 * time.Millisecond)

	snap := s.Snapshot(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, model.Validate(snap))
	assert.Equal(t, "hydronom-boat-01", snap.VehicleID)
	assert.InDelta(t, 14.7, snap.Battery.Voltage, 1e-9)
	require.NotNil(t, snap.Mission.WaypointIndex)
}

func TestThrustersDriveSpeedAndHeading(t *testing.T) {
	s := newTestSim(SimOptions{Lat: 41, Lon: 28})
	s.Step(time.Second)
	idle := s.Snapshot(time.Now())
	assert.InDelta(t, 0.5, idle.Pose.SpeedMps, 1e-9)

	require.NoError(t, s.Apply(model.Command{
		Type:    model.CommandSetThrusters,
		Payload: json.RawMessage(`{"left_pwm":1600,"right_pwm":2500}`),
	}))
	s.Step(time.Second)
	snap := s.Snapshot(time.Now())

	assert.Equal(t, maxPwm, snap.Thrusters.RightPwm, "pwm is clamped")
	assert.InDelta(t, 1.1, snap.Pose.SpeedMps, 1e-9)
	assert.InDelta(t, 0.06, snap.Pose.HeadingDeg, 1e-9)
	assert.NotEqual(t, idle.Pose.Lat, snap.Pose.Lat)
}

func TestRudderAndBallast(t *testing.T) {
	s := newTestSim(SimOptions{Type: model.VehicleSub})
	require.NoError(t, s.Apply(model.Command{Type: model.CommandSetRudder, Payload: json.RawMessage(`{"rudder_deg":80}`)}))
	require.NoError(t, s.Apply(model.Command{Type: model.CommandSetBallast, Payload: json.RawMessage(`{"level_pct":50}`)}))
	for range 20 {
		s.Step(time.Second)
	}
	snap := s.Snapshot(time.Now())

	assert.Equal(t, 45.0, snap.RudderDeg)
	assert.Equal(t, 50.0, snap.Ballast.LevelPct)
	assert.InDelta(t, 15, snap.DepthM, 0.1)
	assert.Equal(t, model.CommandSetBallast, s.LastApplied())
}

func TestApplyRejectsBadPayloadAndIgnoresPing(t *testing.T) {
	s := newTestSim(SimOptions{})
	assert.Error(t, s.Apply(model.Command{Type: model.CommandSetRudder, Payload: json.RawMessage(`"x"`)}))
	assert.NoError(t, s.Apply(model.Command{Type: model.CommandPing}))
	assert.Empty(t, s.LastApplied())
}

func TestLeakAndBatteryDrain(t *testing.T) {
	s := newTestSim(SimOptions{SoC: 50, LowBattery: 49.97, LeakAfter: 2 * time.Second})

	s.Step(time.Second)
	snap := s.Snapshot(time.Now())
	assert.False(t, snap.Leak)
	assert.InDelta(t, 49.98, snap.Battery.SocPct, 1e-9)

	s.Step(1500 * time.Millisecond)
	snap = s.Snapshot(time.Now())
	assert.True(t, snap.Leak)
	assert.InDelta(t, 49.97, snap.Battery.SocPct, 1e-9, "drain stops at the floor")
}
