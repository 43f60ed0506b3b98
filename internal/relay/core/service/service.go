// Package service is the entry point of the relay core. Gateways call it
// after authentication and admission.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/hydronom-io/hydronom/internal/pkg/metrics"
	"github.com/hydronom-io/hydronom/internal/relay/core"
	"github.com/hydronom-io/hydronom/internal/relay/core/command"
	"github.com/hydronom-io/hydronom/internal/relay/core/fanout"
	"github.com/hydronom-io/hydronom/internal/relay/core/mission"
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/internal/relay/core/state"
)

type Options struct {
	SubscriberBuffer int
	PreRegistration  []model.CommandType
	ModeRules        map[model.CommandType][]model.Mode

	Clock   clock.PassiveClock
	Metrics *metrics.Metrics
	Logger  logr.Logger
}

// Service wires the state store, mission lifecycle, command bus and
// fan-out around a shared recorder.
type Service struct {
	store    *state.Store
	missions *mission.Lifecycle
	bus      *command.Bus
	hub      *fanout.Hub
	recorder core.Recorder

	metrics *metrics.Metrics
	log     logr.Logger
}

func New(recorder core.Recorder, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	log := opts.Logger.WithName("relay")

	store := state.New(state.Options{Clock: opts.Clock, Metrics: opts.Metrics})
	hub := fanout.New(fanout.Options{Buffer: opts.SubscriberBuffer, Metrics: opts.Metrics, Logger: log})

	return &Service{
		store: store,
		missions: mission.New(store, recorder, hub, mission.Options{
			Clock:   opts.Clock,
			Metrics: opts.Metrics,
			Logger:  log,
		}),
		bus: command.New(store, recorder, hub, command.Options{
			PreRegistration: opts.PreRegistration,
			ModeRules:       opts.ModeRules,
			Clock:           opts.Clock,
			Metrics:         opts.Metrics,
			Logger:          log,
		}),
		hub:      hub,
		recorder: recorder,
		metrics:  opts.Metrics,
		log:      log,
	}
}

// PostTelemetry stores a snapshot and records it. Only a snapshot that
// became current is published; a stale one is still recorded for audit.
func (s *Service) PostTelemetry(_ context.Context, snap model.TelemetrySnapshot) (bool, error) {
	if err := model.Validate(snap); err != nil {
		return false, core.InvalidRequest(err)
	}

	var applied bool
	err := s.store.Exec(snap.VehicleID, func(p *state.Partition) error {
		applied = p.UpsertTelemetry(snap)
		rec := s.recorder.Append(model.KindTelemetry, snap.VehicleID, snap.Clone())
		if applied {
			s.hub.Publish(snap.VehicleID, rec)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	s.metrics.ObserveTelemetry(applied)
	if !applied {
		s.log.V(1).Info("stale telemetry kept for audit only", "vehicle", snap.VehicleID, "timestamp", snap.Timestamp)
	}
	return applied, nil
}

func (s *Service) PostCommand(ctx context.Context, cmd model.Command) (model.CommandResult, error) {
	return s.bus.Enqueue(ctx, cmd)
}

func (s *Service) PostMission(ctx context.Context, m model.Mission) (model.Mission, error) {
	return s.missions.Create(ctx, m)
}

func (s *Service) PostMissionAction(ctx context.Context, taskID, action string) (model.Mission, error) {
	return s.missions.Transition(ctx, taskID, action)
}

func (s *Service) GetState(vehicleID string) (model.TelemetrySnapshot, error) {
	return s.store.GetTelemetry(vehicleID)
}

func (s *Service) GetMission(taskID string) (model.Mission, error) {
	return s.store.GetMission(taskID)
}

func (s *Service) ListVehicles() []model.VehicleSummary {
	return s.store.List()
}

// OpenSubscription streams the future records of one vehicle.
func (s *Service) OpenSubscription(vehicleID string, opts fanout.SubscribeOptions) (*fanout.Subscription, error) {
	if vehicleID == "" {
		return nil, core.InvalidRequest(errors.New("vehicleId is required"))
	}
	return s.hub.Subscribe(vehicleID, opts), nil
}

// OpenAll streams the future records of every vehicle.
func (s *Service) OpenAll(opts fanout.SubscribeOptions) *fanout.Subscription {
	return s.hub.SubscribeAll(opts)
}

func (s *Service) CloseSubscription(token string) {
	s.hub.Unsubscribe(token)
}

// Reap drops vehicles idle for longer than maxAge.
func (s *Service) Reap(maxAge time.Duration) int {
	n := s.store.ReapIdle(maxAge)
	if n > 0 {
		s.log.Info("reaped idle vehicles", "count", n, "max_age", maxAge)
	}
	return n
}
