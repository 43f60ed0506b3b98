package state

import (
	"fmt"

	"github.com/hydronom-io/hydronom/internal/relay/core"
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
)

// Partition is the exclusive view of one vehicle handed to Exec. It must
// not be retained after the callback returns.
type Partition struct {
	p     *partition
	store *Store
}

func (x *Partition) VehicleID() string { return x.p.id }

// Telemetry returns the current snapshot, if any.
func (x *Partition) Telemetry() (model.TelemetrySnapshot, bool) {
	if x.p.telemetry == nil {
		return model.TelemetrySnapshot{}, false
	}
	return x.p.telemetry.Clone(), true
}

// UpsertTelemetry keeps the snapshot with the greatest timestamp. On a tie
// the snapshot received last wins. It reports whether snap was applied.
func (x *Partition) UpsertTelemetry(snap model.TelemetrySnapshot) bool {
	p := x.p
	p.received++
	p.lastSeen = x.store.clock.Now()

	if p.telemetry != nil && snap.Timestamp.Before(p.telemetry.Timestamp) {
		return false
	}
	cur := snap.Clone()
	p.telemetry = &cur
	return true
}

// Received is the number of snapshots received, applied or not.
func (x *Partition) Received() uint64 { return x.p.received }

// Mission returns a mission of this vehicle.
func (x *Partition) Mission(taskID string) (model.Mission, bool) {
	m, ok := x.p.missions[taskID]
	if !ok {
		return model.Mission{}, false
	}
	return m.Clone(), true
}

// Holder returns the ACTIVE or PAUSED mission of the vehicle, if any.
func (x *Partition) Holder() (model.Mission, bool) {
	if x.p.holder == "" {
		return model.Mission{}, false
	}
	return x.Mission(x.p.holder)
}

// PutMission inserts or replaces a mission.
func (x *Partition) PutMission(m model.Mission) error {
	p := x.p
	if m.VehicleID != p.id {
		return core.InvalidRequest(fmt.Errorf("mission %s belongs to %s, not %s", m.TaskID, m.VehicleID, p.id))
	}
	if m.State.HoldsVehicle() && p.holder != "" && p.holder != m.TaskID {
		return fmt.Errorf("%w: vehicle %s already has mission %s in progress", core.ErrConflict, p.id, p.holder)
	}
	if owner, loaded := x.store.missions.LoadOrStore(m.TaskID, p.id); loaded && owner.(string) != p.id {
		return fmt.Errorf("%w: task %s is bound to vehicle %s", core.ErrConflict, m.TaskID, owner)
	}

	cur := m.Clone()
	p.missions[m.TaskID] = &cur
	switch {
	case m.State.HoldsVehicle():
		p.holder = m.TaskID
	case p.holder == m.TaskID:
		p.holder = ""
	}
	return nil
}
