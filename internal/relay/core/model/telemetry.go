package model

import "time"

// VehicleType is the hull class reported by the vehicle.
type VehicleType string

const (
	VehicleBoat VehicleType = "boat"
	VehicleSub  VehicleType = "sub"
)

// TelemetrySnapshot is the full state a vehicle reports in one message.
// Snapshots are values: a newer one replaces the older one wholesale.
type TelemetrySnapshot struct {
	Timestamp time.Time   `json:"timestamp" validate:"required"`
	VehicleID string      `json:"vehicle_id" validate:"required"`
	Vehicle   VehicleInfo `json:"vehicle"`
	Pose      Pose        `json:"pose"`
	DepthM    float64     `json:"depth_m" validate:"gte=0"`
	IMU       IMU         `json:"imu"`
	Thrusters Thrusters   `json:"thrusters"`
	RudderDeg float64     `json:"rudder_deg" validate:"gte=-90,lte=90"`
	Ballast   Ballast     `json:"ballast"`
	Battery   Battery     `json:"battery"`
	Leak      bool        `json:"leak"`
	TempC     float64     `json:"temp_c"`
	Mission   MissionRef  `json:"mission"`
}

type VehicleInfo struct {
	Type VehicleType `json:"type,omitempty" validate:"omitempty,oneof=boat sub"`
}

type Pose struct {
	Lat        float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon        float64 `json:"lon" validate:"gte=-180,lte=180"`
	HeadingDeg float64 `json:"heading_deg" validate:"gte=0,lte=360"`
	SpeedMps   float64 `json:"speed_mps" validate:"gte=0"`
}

type IMU struct {
	RollDeg  float64 `json:"roll_deg"`
	PitchDeg float64 `json:"pitch_deg"`
	YawDeg   float64 `json:"yaw_deg"`
}

type Thrusters struct {
	LeftPwm  int `json:"left_pwm"`
	RightPwm int `json:"right_pwm"`
}

type Ballast struct {
	LevelPct float64 `json:"level_pct" validate:"gte=0,lte=100"`
}

type Battery struct {
	Voltage float64 `json:"voltage" validate:"gte=0"`
	SocPct  float64 `json:"soc_pct" validate:"gte=0,lte=100"`
}

// MissionRef is the vehicle's own view of what it is executing.
type MissionRef struct {
	Mode          Mode   `json:"mode,omitempty" validate:"omitempty,oneof=MANUAL AUTONOMOUS EMERGENCY"`
	TaskID        string `json:"task_id,omitempty"`
	WaypointIndex *int   `json:"waypoint_index,omitempty" validate:"omitempty,gte=0"`
}

// VehicleSummary is one row of a fleet listing.
type VehicleSummary struct {
	VehicleID     string      `json:"vehicle_id"`
	Type          VehicleType `json:"type,omitempty"`
	LastTimestamp time.Time   `json:"last_timestamp,omitempty"`
	LastSeen      time.Time   `json:"last_seen"`
	ActiveTaskID  string      `json:"active_task_id,omitempty"`
	HasTelemetry  bool        `json:"has_telemetry"`
}

// Clone returns a copy that shares no memory with t.
func (t TelemetrySnapshot) Clone() TelemetrySnapshot {
	if t.Mission.WaypointIndex != nil {
		idx := *t.Mission.WaypointIndex
		t.Mission.WaypointIndex = &idx
	}
	return t
}
