// Package command admits operator commands, numbers them per vehicle and
// dispatches them in order.
//
// Structural validation runs concurrently. Everything that depends on
// vehicle state (the known-vehicle check, the mode check, sequencing and
// dispatch) runs inside the vehicle's partition, so the dispatch order of
// a vehicle is exactly its sequence order and its enqueue linearization.
package command

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/hydronom-io/hydronom/internal/pkg/metrics"
	"github.com/hydronom-io/hydronom/internal/relay/core"
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/internal/relay/core/state"
)

// DefaultPreRegistration lists command types accepted for vehicles that
// have not reported telemetry yet.
var DefaultPreRegistration = []model.CommandType{model.CommandPing}

// DefaultModeRules forbids manual actuation while a vehicle runs
// autonomously.
var DefaultModeRules = map[model.CommandType][]model.Mode{
	model.CommandSetThrusters: {model.ModeAutonomous},
	model.CommandSetRudder:    {model.ModeAutonomous},
	model.CommandSetBallast:   {model.ModeAutonomous},
}

type Options struct {
	PreRegistration []model.CommandType
	// ModeRules maps a command type to the modes it conflicts with.
	ModeRules map[model.CommandType][]model.Mode

	Clock   clock.PassiveClock
	Metrics *metrics.Metrics
	Logger  logr.Logger
}

// Bus is the Command Bus.
type Bus struct {
	store     *state.Store
	recorder  core.Recorder
	publisher core.Publisher

	preRegistration map[model.CommandType]bool
	modeRules       map[model.CommandType][]model.Mode

	clock   clock.PassiveClock
	metrics *metrics.Metrics
	log     logr.Logger

	// seqs maps vehicle id to *atomic.Uint64. Counters outlive reaped
	// partitions so sequence numbers are never reused.
	seqs sync.Map
}

func New(store *state.Store, recorder core.Recorder, publisher core.Publisher, opts Options) *Bus {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.PreRegistration == nil {
		opts.PreRegistration = DefaultPreRegistration
	}
	if opts.ModeRules == nil {
		opts.ModeRules = DefaultModeRules
	}

	pre := make(map[model.CommandType]bool, len(opts.PreRegistration))
	for _, t := range opts.PreRegistration {
		pre[normalize(t)] = true
	}

	return &Bus{
		store:           store,
		recorder:        recorder,
		publisher:       publisher,
		preRegistration: pre,
		modeRules:       opts.ModeRules,
		clock:           opts.Clock,
		metrics:         opts.Metrics,
		log:             opts.Logger.WithName("command"),
	}
}

func normalize(t model.CommandType) model.CommandType {
	return model.CommandType(strings.ToUpper(strings.TrimSpace(string(t))))
}

// Enqueue validates, sequences and dispatches cmd. It returns once the
// command has been recorded and fanned out. A command is never dropped
// after it got its sequence number; ctx is only honoured before that.
func (b *Bus) Enqueue(ctx context.Context, cmd model.Command) (model.CommandResult, error) {
	start := b.clock.Now()
	cmd.Type = normalize(cmd.Type)
	cmd.Seq = 0

	if err := model.Validate(cmd); err != nil {
		return b.reject(cmd, core.InvalidRequest(err))
	}
	if err := ctx.Err(); err != nil {
		return model.CommandResult{Accepted: false, Reason: err.Error()}, err
	}

	err := b.store.Exec(cmd.VehicleID, func(p *state.Partition) error {
		snap, known := p.Telemetry()
		if !known && !b.preRegistration[cmd.Type] {
			return fmt.Errorf("%w: %s has not reported telemetry", core.ErrUnknownVehicle, cmd.VehicleID)
		}
		if err := b.checkMode(p, snap, cmd); err != nil {
			return err
		}

		cmd.Seq = b.nextSeq(cmd.VehicleID)
		if cmd.Timestamp.IsZero() {
			cmd.Timestamp = b.clock.Now()
		}
		rec := b.recorder.Append(model.KindCommand, cmd.VehicleID, cmd)
		b.publisher.Publish(cmd.VehicleID, rec)
		return nil
	})
	if err != nil {
		return b.reject(cmd, err)
	}

	b.metrics.ObserveDispatch(string(cmd.Type), b.clock.Since(start).Seconds())
	b.log.V(1).Info("command dispatched", "vehicle", cmd.VehicleID, "type", cmd.Type, "seq", cmd.Seq, "override", cmd.Override)
	return model.CommandResult{Seq: cmd.Seq, Accepted: true}, nil
}

// EffectiveMode is the mode the vehicle is operating in: the mode of its
// ACTIVE mission, else the mode it reports, else MANUAL.
func EffectiveMode(p *state.Partition, snap model.TelemetrySnapshot) model.Mode {
	if m, ok := p.Holder(); ok && m.State == model.MissionActive {
		return m.Mode
	}
	if snap.Mission.Mode != "" {
		return snap.Mission.Mode
	}
	return model.ModeManual
}

func (b *Bus) checkMode(p *state.Partition, snap model.TelemetrySnapshot, cmd model.Command) error {
	forbidden, ok := b.modeRules[cmd.Type]
	if !ok || cmd.Override {
		return nil
	}
	mode := EffectiveMode(p, snap)
	for _, m := range forbidden {
		if m == mode {
			return &core.ModeConflictError{Mode: mode, Command: cmd.Type}
		}
	}
	return nil
}

func (b *Bus) nextSeq(vehicleID string) uint64 {
	v, ok := b.seqs.Load(vehicleID)
	if !ok {
		v, _ = b.seqs.LoadOrStore(vehicleID, new(atomic.Uint64))
	}
	return v.(*atomic.Uint64).Add(1)
}

// LastSeq returns the last sequence number issued to a vehicle.
func (b *Bus) LastSeq(vehicleID string) uint64 {
	v, ok := b.seqs.Load(vehicleID)
	if !ok {
		return 0
	}
	return v.(*atomic.Uint64).Load()
}

func (b *Bus) reject(cmd model.Command, err error) (model.CommandResult, error) {
	reason := core.Reason(err)
	b.metrics.ObserveRejection(reason)
	b.log.V(1).Info("command rejected", "vehicle", cmd.VehicleID, "type", cmd.Type, "reason", err.Error())
	return model.CommandResult{Accepted: false, Reason: err.Error()}, err
}
