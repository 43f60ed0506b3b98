// Package feeder simulates a vehicle talking to the relay over MQTT: it
// publishes telemetry at a fixed rate and applies the commands it
// receives.
package feeder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/pkg/mqtt"
	mqtttopic "github.com/hydronom-io/hydronom/pkg/mqtt/topic"
)

// downlink is the record envelope the relay publishes on command topics.
type downlink struct {
	LogicalTime model.LogicalTime `json:"logical_time"`
	Kind        model.RecordKind  `json:"kind"`
	Payload     json.RawMessage   `json:"payload"`
}

type Feeder struct {
	client   mqtt.Client
	topics   *mqtttopic.TopicBuilder
	sim      *Sim
	interval time.Duration
	clock    clock.WithTicker
	log      logr.Logger

	vehicleID string
}

func New(client mqtt.Client, topics *mqtttopic.TopicBuilder, sim *Sim, interval time.Duration, clk clock.WithTicker, logger logr.Logger) *Feeder {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Feeder{
		client:    client,
		topics:    topics,
		sim:       sim,
		interval:  interval,
		clock:     clk,
		log:       logger.WithName("feeder"),
		vehicleID: sim.opts.VehicleID,
	}
}

// Run publishes until ctx is done.
func (f *Feeder) Run(ctx context.Context) error {
	if err := f.client.Start(ctx); err != nil {
		return err
	}
	defer f.client.Disconnect(context.Background())

	if err := f.client.AwaitConnection(ctx); err != nil {
		return err
	}
	if err := f.client.Subscribe(ctx, f.topics.Command(f.vehicleID), 1, f.onCommand); err != nil {
		return fmt.Errorf("subscribe commands: %w", err)
	}
	f.log.Info("Feeding telemetry", "vehicleID", f.vehicleID, "interval", f.interval)

	ticker := f.clock.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			f.log.Info("Feeder shutting down...")
			return nil
		case <-ticker.C():
			f.sim.Step(f.interval)
			if err := f.publish(ctx); err != nil {
				f.log.Error(err, "publish telemetry failed")
			}
		}
	}
}

func (f *Feeder) publish(ctx context.Context) error {
	body, err := json.Marshal(f.sim.Snapshot(f.clock.Now()))
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.topics.Telemetry(f.vehicleID), 0, false, body)
}

func (f *Feeder) onCommand(_ context.Context, topic string, payload []byte) {
	var rec downlink
	if err := json.Unmarshal(payload, &rec); err != nil {
		f.log.Error(err, "malformed downlink", "topic", topic)
		return
	}
	if rec.Kind != model.KindCommand {
		return
	}
	var cmd model.Command
	if err := json.Unmarshal(rec.Payload, &cmd); err != nil {
		f.log.Error(err, "malformed command", "topic", topic)
		return
	}
	if err := f.sim.Apply(cmd); err != nil {
		f.log.Error(err, "command rejected", "seq", cmd.Seq, "type", cmd.Type)
		return
	}
	f.log.Info("Applied command", "seq", cmd.Seq, "type", cmd.Type, "logicalTime", uint64(rec.LogicalTime))
}
