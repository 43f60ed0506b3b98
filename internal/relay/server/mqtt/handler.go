package mqtt

import (
	"context"
	"fmt"

	"github.com/hydronom-io/hydronom/internal/relay/core"
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/pkg/mqtt/topic"
)

// handleTelemetry feeds a vehicle snapshot into the relay. The vehicle id
// in the topic is authoritative; a payload naming another vehicle is
// rejected.
func (s *Server) handleTelemetry(ctx context.Context, t string, snap model.TelemetrySnapshot) error {
	vid, ok := s.topics.VehicleID(topic.SuffixTelemetry, t)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %q", core.ErrInvalidRequest, t)
	}
	if snap.VehicleID == "" {
		snap.VehicleID = vid
	}
	if snap.VehicleID != vid {
		return fmt.Errorf("%w: payload vehicle %q published on topic of %q", core.ErrInvalidRequest, snap.VehicleID, vid)
	}

	applied, err := s.relay.PostTelemetry(ctx, snap)
	if err != nil {
		return err
	}
	s.log.V(2).Info("telemetry ingested", "vehicle", vid, "applied", applied)
	return nil
}
