// Package mqtt is the broker-facing gateway: vehicles publish telemetry
// to it and receive their commands and missions from it.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/hydronom-io/hydronom/internal/pkg/mqtt/paths"
	"github.com/hydronom-io/hydronom/internal/relay/core/fanout"
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	pkgmqtt "github.com/hydronom-io/hydronom/pkg/mqtt"
	"github.com/hydronom-io/hydronom/pkg/mqtt/topic"
	"github.com/hydronom-io/hydronom/pkg/options"
)

// Relay is the part of the relay service the gateway calls.
type Relay interface {
	PostTelemetry(ctx context.Context, snap model.TelemetrySnapshot) (bool, error)
	OpenAll(opts fanout.SubscribeOptions) *fanout.Subscription
}

// downlinkBuffer is larger than a websocket buffer: one subscription
// carries the commands of the whole fleet.
const downlinkBuffer = 4096

// Server implements the MQTT ingress and downlink.
type Server struct {
	client     pkgmqtt.Client
	topics     *topic.TopicBuilder
	relay      Relay
	shareGroup string
	qos        int
	log        logr.Logger
}

// NewServer creates a new MQTT server (client).
func NewServer(client pkgmqtt.Client, opts *options.MqttOptions, relay Relay, logger logr.Logger) *Server {
	return &Server{
		client:     client,
		topics:     topic.NewTopicBuilder(opts.TopicRoot),
		relay:      relay,
		shareGroup: opts.ShareGroup,
		qos:        opts.CommandQoS,
		log:        logger.WithName("mqtt"),
	}
}

// Start connects to the broker, subscribes to telemetry and forwards
// downlink records until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	// The downlink subscription opens before connecting so nothing
	// accepted in between is lost.
	sub := s.relay.OpenAll(fanout.SubscribeOptions{Name: "mqtt-downlink", Buffer: downlinkBuffer})
	defer sub.Close()

	if err := s.client.Start(ctx); err != nil {
		return err
	}

	defer func() {
		s.log.Info("Disconnecting MQTT client...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.client.Disconnect(shutdownCtx)
	}()

	s.log.Info("Waiting for MQTT connection...")
	if err := s.client.AwaitConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if err := s.initSubscriptions(ctx); err != nil {
		return err
	}

	return s.forward(ctx, sub)
}

func (s *Server) initSubscriptions(ctx context.Context) error {
	const qos = 0

	subscriptions := map[string]HandlerFunc{
		s.topics.TelemetryWildcard(): JSONAdapter(s.handleTelemetry),
	}

	for filter, handler := range subscriptions {
		fullTopic := topic.Shared(s.shareGroup, filter)
		if err := s.client.Subscribe(ctx, fullTopic, qos, func(c context.Context, t string, p []byte) {
			if err := handler(c, t, p); err != nil {
				s.log.Error(err, "Handler execution failed", "topic", t)
			}
		}); err != nil {
			return fmt.Errorf("failed to subscribe to topic: %s, err: %w", fullTopic, err)
		}
	}
	return nil
}

// forward publishes downlink records in fan-out order. A failed publish
// is logged and skipped; the record is already in the audit log.
func (s *Server) forward(ctx context.Context, sub *fanout.Subscription) error {
	var reported uint64
	for {
		rec, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, fanout.ErrSubscriptionClosed) {
				return nil
			}
			return err
		}
		if d := sub.Dropped(); d > reported {
			s.log.Info("downlink fell behind, records skipped", "dropped", d-reported)
			reported = d
		}

		if err := s.publish(ctx, rec); err != nil {
			s.log.Error(err, "Failed to publish downlink record", "vehicle", rec.VehicleID, "kind", rec.Kind, "logical_time", uint64(rec.LogicalTime))
		}
	}
}

func (s *Server) publish(ctx context.Context, rec model.Record) error {
	segment, ok := paths.Downlink(rec.Kind)
	if !ok {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.topics.For(segment, rec.VehicleID), s.qos, false, payload)
}
