// Package sink holds the durable backends of the audit log.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/internal/relay/core/recorder"
)

// Reader is implemented by sinks that can serve the audit log back.
type Reader interface {
	// Range returns up to limit records with a logical time greater than
	// since, in order.
	Range(ctx context.Context, since model.LogicalTime, limit int) ([]model.Record, error)
}

// Discard drops every record. It backs --audit.sink=none.
type Discard struct{}

var _ recorder.Sink = Discard{}

func (Discard) Append(context.Context, []model.Record) error { return nil }

// storedRecord is the on-disk form. The payload stays raw on read so it
// is served back byte for byte.
type storedRecord struct {
	LogicalTime model.LogicalTime `json:"logical_time"`
	Kind        model.RecordKind  `json:"kind"`
	VehicleID   string            `json:"vehicle_id"`
	At          time.Time         `json:"at"`
	Payload     json.RawMessage   `json:"payload"`
}

func (s storedRecord) record() model.Record {
	return model.Record{
		LogicalTime: s.LogicalTime,
		Kind:        s.Kind,
		VehicleID:   s.VehicleID,
		At:          s.At,
		Payload:     s.Payload,
	}
}

func decodeRecord(b []byte) (model.Record, error) {
	var s storedRecord
	if err := json.Unmarshal(b, &s); err != nil {
		return model.Record{}, err
	}
	return s.record(), nil
}

// encodeLines renders records as JSON lines.
func encodeLines(records []model.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// unwritten drops the prefix of records at or below last. Sinks use it to
// stay idempotent when the recorder retries a batch.
func unwritten(records []model.Record, last model.LogicalTime) []model.Record {
	for i, rec := range records {
		if rec.LogicalTime > last {
			return records[i:]
		}
	}
	return nil
}
