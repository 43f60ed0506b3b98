package model

import "time"

// LogicalTime orders records process-wide, independent of wall clocks.
type LogicalTime uint64

// RecordKind classifies a record.
type RecordKind string

const (
	KindTelemetry    RecordKind = "telemetry"
	KindCommand      RecordKind = "command"
	KindMission      RecordKind = "mission"
	KindMissionEvent RecordKind = "mission-event"
)

// Record is an append-only audit entry. The same value travels to the
// audit sink and to fan-out subscribers.
type Record struct {
	LogicalTime LogicalTime `json:"logical_time"`
	Kind        RecordKind  `json:"kind"`
	VehicleID   string      `json:"vehicle_id"`
	At          time.Time   `json:"at"`
	Payload     any         `json:"payload"`
}
