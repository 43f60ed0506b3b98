package model

import (
	"encoding/json"
	"time"
)

// CommandType names an operator instruction, e.g. SET_THRUSTERS.
type CommandType string

const (
	CommandPing          CommandType = "PING"
	CommandSetThrusters  CommandType = "SET_THRUSTERS"
	CommandSetRudder     CommandType = "SET_RUDDER"
	CommandSetBallast    CommandType = "SET_BALLAST"
	CommandEmergencyStop CommandType = "EMERGENCY_STOP"
)

// Command is an operator instruction addressed to one vehicle. Seq is
// assigned by the command bus and is zero until the command is admitted.
type Command struct {
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	VehicleID string          `json:"vehicle_id" validate:"required"`
	Type      CommandType     `json:"type" validate:"required"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Override  bool            `json:"override,omitempty"`
	IssuedBy  string          `json:"issued_by,omitempty"`
}

// CommandResult is returned for every enqueue attempt.
type CommandResult struct {
	Seq      uint64 `json:"seq"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// ThrusterPayload is the payload of SET_THRUSTERS.
type ThrusterPayload struct {
	LeftPwm  int `json:"left_pwm"`
	RightPwm int `json:"right_pwm"`
}

// RudderPayload is the payload of SET_RUDDER.
type RudderPayload struct {
	RudderDeg float64 `json:"rudder_deg"`
}

// BallastPayload is the payload of SET_BALLAST.
type BallastPayload struct {
	LevelPct float64 `json:"level_pct"`
}
