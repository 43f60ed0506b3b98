package core

import "github.com/hydronom-io/hydronom/internal/relay/core/model"

// Recorder sequences state changes into the audit trail. Append never
// blocks and never fails.
type Recorder interface {
	Append(kind model.RecordKind, vehicleID string, payload any) model.Record
}

// Publisher multicasts a record to the subscribers of a vehicle. Publish
// never blocks.
type Publisher interface {
	Publish(vehicleID string, rec model.Record)
}
