package model

import (
	"slices"
	"time"
)

// Mode is the control mode of a mission.
type Mode string

const (
	ModeManual     Mode = "MANUAL"
	ModeAutonomous Mode = "AUTONOMOUS"
	ModeEmergency  Mode = "EMERGENCY"
)

// MissionState is the lifecycle state of a mission.
type MissionState string

const (
	MissionDraft     MissionState = "DRAFT"
	MissionActive    MissionState = "ACTIVE"
	MissionPaused    MissionState = "PAUSED"
	MissionAborted   MissionState = "ABORTED"
	MissionCompleted MissionState = "COMPLETED"
)

// IsTerminal reports whether no further action can apply.
func (s MissionState) IsTerminal() bool {
	return s == MissionAborted || s == MissionCompleted
}

// HoldsVehicle reports whether a mission in this state owns its vehicle.
// A vehicle has at most one such mission.
func (s MissionState) HoldsVehicle() bool {
	return s == MissionActive || s == MissionPaused
}

type Waypoint struct {
	Lat   float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon   float64 `json:"lon" validate:"gte=-180,lte=180"`
	HoldS float64 `json:"hold_s" validate:"gte=0"`
}

type Constraints struct {
	MaxSpeedMps float64 `json:"max_speed_mps" validate:"gte=0"`
	KeepDepthM  float64 `json:"keep_depth_m" validate:"gte=0"`
}

type Mission struct {
	TaskID      string       `json:"task_id" validate:"required"`
	Name        string       `json:"name"`
	VehicleID   string       `json:"vehicle_id" validate:"required"`
	Mode        Mode         `json:"mode" validate:"required,oneof=MANUAL AUTONOMOUS EMERGENCY"`
	Waypoints   []Waypoint   `json:"waypoints" validate:"dive"`
	Constraints Constraints  `json:"constraints"`
	CreatedBy   string       `json:"created_by,omitempty"`
	State       MissionState `json:"state"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// MissionEvent describes one successful lifecycle transition.
type MissionEvent struct {
	TaskID string       `json:"task_id"`
	Action string       `json:"action"`
	From   MissionState `json:"from"`
	To     MissionState `json:"to"`
	At     time.Time    `json:"at"`
}

// Clone returns a copy that shares no memory with m.
func (m Mission) Clone() Mission {
	m.Waypoints = slices.Clone(m.Waypoints)
	return m
}
