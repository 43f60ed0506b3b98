// Package state holds the authoritative per-vehicle view: the latest
// telemetry snapshot and the missions of every vehicle.
//
// State is partitioned by vehicle id. Each partition has its own mutex and
// there is no lock shared between vehicles; partitions never interact, so
// no lock order is needed.
package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/hydronom-io/hydronom/internal/pkg/metrics"
	"github.com/hydronom-io/hydronom/internal/relay/core"
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
)

// Options configures a Store.
type Options struct {
	Clock   clock.PassiveClock
	Metrics *metrics.Metrics
}

// Store is the Vehicle State Store.
type Store struct {
	clock   clock.PassiveClock
	metrics *metrics.Metrics

	// vehicles maps vehicle id to *partition.
	vehicles sync.Map
	// missions maps task id to the owning vehicle id.
	missions sync.Map
	count    atomic.Int64
}

type partition struct {
	mu sync.Mutex
	id string

	// removed is set by the reaper. A caller that locks a removed
	// partition must look the vehicle up again.
	removed bool

	// waiting counts callers queued on or holding mu.
	waiting atomic.Int64

	createdAt time.Time
	lastSeen  time.Time

	telemetry *model.TelemetrySnapshot
	received  uint64

	missions map[string]*model.Mission
	// holder is the task id of the ACTIVE or PAUSED mission, if any.
	holder string
}

// New returns an empty Store.
func New(opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Store{clock: opts.Clock, metrics: opts.Metrics}
}

// Exec runs fn with exclusive access to the partition of vehicleID,
// creating the partition on first reference. Everything fn does through
// the Partition is atomic with respect to other operations on the same
// vehicle.
func (s *Store) Exec(vehicleID string, fn func(p *Partition) error) error {
	return s.exec(vehicleID, true, fn)
}

// ExecExisting is Exec for a vehicle that must already be known. It
// returns core.ErrUnknownVehicle otherwise.
func (s *Store) ExecExisting(vehicleID string, fn func(p *Partition) error) error {
	return s.exec(vehicleID, false, fn)
}

func (s *Store) exec(vehicleID string, create bool, fn func(p *Partition) error) error {
	for {
		p, ok := s.lookup(vehicleID, create)
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrUnknownVehicle, vehicleID)
		}

		s.metrics.SetQueueDepth(vehicleID, p.waiting.Add(1))
		p.mu.Lock()
		if p.removed {
			p.mu.Unlock()
			p.waiting.Add(-1)
			continue
		}

		err := fn(&Partition{p: p, store: s})

		depth := p.waiting.Add(-1)
		p.mu.Unlock()
		s.metrics.SetQueueDepth(vehicleID, depth)
		return err
	}
}

func (s *Store) lookup(vehicleID string, create bool) (*partition, bool) {
	if v, ok := s.vehicles.Load(vehicleID); ok {
		return v.(*partition), true
	}
	if !create {
		return nil, false
	}

	now := s.clock.Now()
	fresh := &partition{
		id:        vehicleID,
		createdAt: now,
		lastSeen:  now,
		missions:  make(map[string]*model.Mission),
	}
	v, loaded := s.vehicles.LoadOrStore(vehicleID, fresh)
	if !loaded {
		s.metrics.SetVehicles(int(s.count.Add(1)))
	}
	return v.(*partition), true
}

// read runs fn under the partition lock of an existing vehicle.
func (s *Store) read(vehicleID string, fn func(p *partition)) bool {
	v, ok := s.vehicles.Load(vehicleID)
	if !ok {
		return false
	}
	p := v.(*partition)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removed {
		return false
	}
	fn(p)
	return true
}

// UpsertTelemetry stores snap unless a snapshot with a later timestamp is
// already held. It reports whether snap became the current snapshot.
func (s *Store) UpsertTelemetry(snap model.TelemetrySnapshot) (bool, error) {
	if snap.VehicleID == "" {
		return false, core.InvalidRequest(errors.New("vehicle_id is required"))
	}
	var applied bool
	err := s.Exec(snap.VehicleID, func(p *Partition) error {
		applied = p.UpsertTelemetry(snap)
		return nil
	})
	return applied, err
}

// GetTelemetry returns the current snapshot of a vehicle.
func (s *Store) GetTelemetry(vehicleID string) (model.TelemetrySnapshot, error) {
	var (
		snap model.TelemetrySnapshot
		ok   bool
	)
	s.read(vehicleID, func(p *partition) {
		if p.telemetry != nil {
			snap, ok = p.telemetry.Clone(), true
		}
	})
	if !ok {
		return model.TelemetrySnapshot{}, fmt.Errorf("%w: %s", core.ErrUnknownVehicle, vehicleID)
	}
	return snap, nil
}

// UpsertMission stores m on its vehicle. It fails with core.ErrConflict
// when the vehicle would end up with two ACTIVE or PAUSED missions, or when
// the task id belongs to another vehicle.
func (s *Store) UpsertMission(m model.Mission) error {
	if m.TaskID == "" || m.VehicleID == "" {
		return core.InvalidRequest(errors.New("task_id and vehicle_id are required"))
	}
	return s.Exec(m.VehicleID, func(p *Partition) error {
		return p.PutMission(m)
	})
}

// GetMission looks a mission up by task id.
func (s *Store) GetMission(taskID string) (model.Mission, error) {
	var (
		m  model.Mission
		ok bool
	)
	if vehicleID, known := s.MissionVehicle(taskID); known {
		s.read(vehicleID, func(p *partition) {
			if cur, found := p.missions[taskID]; found {
				m, ok = cur.Clone(), true
			}
		})
	}
	if !ok {
		return model.Mission{}, fmt.Errorf("%w: %s", core.ErrUnknownMission, taskID)
	}
	return m, nil
}

// MissionVehicle returns the vehicle a task id is bound to.
func (s *Store) MissionVehicle(taskID string) (string, bool) {
	v, ok := s.missions.Load(taskID)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// ReapIdle removes vehicles whose last telemetry, or creation when no
// telemetry arrived, is older than maxAge. Vehicles holding an ACTIVE or
// PAUSED mission and vehicles with queued callers are kept. It returns the
// number of vehicles removed.
func (s *Store) ReapIdle(maxAge time.Duration) int {
	cutoff := s.clock.Now().Add(-maxAge)
	reaped := 0

	s.vehicles.Range(func(key, value any) bool {
		p := value.(*partition)
		p.mu.Lock()
		if !p.removed && p.holder == "" && p.waiting.Load() == 0 && p.lastSeen.Before(cutoff) {
			p.removed = true
			for taskID := range p.missions {
				s.missions.CompareAndDelete(taskID, p.id)
			}
			if s.vehicles.CompareAndDelete(key, p) {
				s.count.Add(-1)
			}
			s.metrics.ForgetVehicle(p.id)
			reaped++
		}
		p.mu.Unlock()
		return true
	})

	s.metrics.ObserveReaped(reaped)
	s.metrics.SetVehicles(s.Len())
	return reaped
}

// List snapshots every partition independently. The result may be
// slightly stale but never blocks writers of more than one vehicle at a
// time.
func (s *Store) List() []model.VehicleSummary {
	var out []model.VehicleSummary
	s.vehicles.Range(func(_, value any) bool {
		p := value.(*partition)
		p.mu.Lock()
		if !p.removed {
			sum := model.VehicleSummary{
				VehicleID:    p.id,
				LastSeen:     p.lastSeen,
				ActiveTaskID: p.holder,
				HasTelemetry: p.telemetry != nil,
			}
			if p.telemetry != nil {
				sum.Type = p.telemetry.Vehicle.Type
				sum.LastTimestamp = p.telemetry.Timestamp
			}
			out = append(out, sum)
		}
		p.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}

// Len returns the number of tracked vehicles.
func (s *Store) Len() int {
	return int(s.count.Load())
}
