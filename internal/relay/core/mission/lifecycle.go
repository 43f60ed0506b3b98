// Package mission implements the mission lifecycle state machine.
package mission

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/hydronom-io/hydronom/internal/pkg/metrics"
	"github.com/hydronom-io/hydronom/internal/relay/core"
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/internal/relay/core/state"
)

type Options struct {
	Clock   clock.PassiveClock
	Metrics *metrics.Metrics
	Logger  logr.Logger
}

// Lifecycle creates missions and applies lifecycle actions. Every change
// is recorded and published inside the vehicle's partition.
type Lifecycle struct {
	store     *state.Store
	recorder  core.Recorder
	publisher core.Publisher

	clock   clock.PassiveClock
	metrics *metrics.Metrics
	log     logr.Logger
}

func New(store *state.Store, recorder core.Recorder, publisher core.Publisher, opts Options) *Lifecycle {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Lifecycle{
		store:     store,
		recorder:  recorder,
		publisher: publisher,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		log:       opts.Logger.WithName("mission"),
	}
}

// Create registers a new mission. It starts ACTIVE when its mode is
// AUTONOMOUS and DRAFT otherwise, and is rejected while the vehicle has an
// ACTIVE or PAUSED mission.
func (l *Lifecycle) Create(_ context.Context, m model.Mission) (model.Mission, error) {
	m.Mode = model.Mode(strings.ToUpper(string(m.Mode)))
	if err := model.Validate(m); err != nil {
		return model.Mission{}, core.InvalidRequest(err)
	}

	m.State = model.MissionDraft
	if m.Mode == model.ModeAutonomous {
		m.State = model.MissionActive
	}
	now := l.clock.Now()
	m.CreatedAt, m.UpdatedAt = now, now

	err := l.store.Exec(m.VehicleID, func(p *state.Partition) error {
		if holder, ok := p.Holder(); ok {
			return fmt.Errorf("%w: vehicle %s already has mission %s %s", core.ErrConflict, m.VehicleID, holder.TaskID, holder.State)
		}
		if _, exists := p.Mission(m.TaskID); exists {
			return fmt.Errorf("%w: mission %s already exists", core.ErrConflict, m.TaskID)
		}
		if err := p.PutMission(m); err != nil {
			return err
		}
		rec := l.recorder.Append(model.KindMission, m.VehicleID, m.Clone())
		l.publisher.Publish(m.VehicleID, rec)
		return nil
	})
	if err != nil {
		l.log.V(1).Info("mission rejected", "task", m.TaskID, "vehicle", m.VehicleID, "reason", err.Error())
		return model.Mission{}, err
	}

	l.log.Info("mission created", "task", m.TaskID, "vehicle", m.VehicleID, "mode", m.Mode, "state", m.State)
	return m, nil
}

// Transition applies a lifecycle action to a mission.
func (l *Lifecycle) Transition(ctx context.Context, taskID, action string) (model.Mission, error) {
	action = strings.ToUpper(strings.TrimSpace(action))
	if !KnownAction(action) {
		return model.Mission{}, fmt.Errorf("%w: %q", core.ErrUnknownAction, action)
	}

	vehicleID, ok := l.store.MissionVehicle(taskID)
	if !ok {
		return model.Mission{}, fmt.Errorf("%w: %s", core.ErrUnknownMission, taskID)
	}

	var out model.Mission
	err := l.store.ExecExisting(vehicleID, func(p *state.Partition) error {
		m, ok := p.Mission(taskID)
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrUnknownMission, taskID)
		}
		from := m.State

		if from.IsTerminal() {
			return fmt.Errorf("%w: mission %s is %s", core.ErrInvalidTransition, taskID, from)
		}
		if action == ActionStart && from == model.MissionActive {
			return fmt.Errorf("%w: mission %s is already active", core.ErrConflict, taskID)
		}

		holder := ""
		if h, ok := p.Holder(); ok {
			holder = h.TaskID
		}
		if err := newMachine(&m, holder).fire(ctx, action); err != nil {
			return err
		}

		m.UpdatedAt = l.clock.Now()
		if err := p.PutMission(m); err != nil {
			return err
		}

		evt := model.MissionEvent{TaskID: taskID, Action: action, From: from, To: m.State, At: m.UpdatedAt}
		rec := l.recorder.Append(model.KindMissionEvent, vehicleID, evt)
		l.publisher.Publish(vehicleID, rec)
		out = m
		return nil
	})
	if errors.Is(err, core.ErrUnknownVehicle) {
		err = fmt.Errorf("%w: %s", core.ErrUnknownMission, taskID)
	}
	if err != nil {
		l.log.V(1).Info("mission action rejected", "task", taskID, "action", action, "reason", err.Error())
		return model.Mission{}, err
	}

	l.metrics.ObserveTransition(action)
	l.log.Info("mission transitioned", "task", taskID, "vehicle", vehicleID, "action", action, "state", out.State)
	return out, nil
}
