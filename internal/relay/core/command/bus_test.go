package command

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydronom-io/hydronom/internal/pkg/metrics"
	"github.com/hydronom-io/hydronom/internal/relay/core"
	"github.com/hydronom-io/hydronom/internal/relay/core/fanout"
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/internal/relay/core/state"
)

type memRecorder struct {
	mu      sync.Mutex
	records []model.Record
}

func (r *memRecorder) Append(kind model.RecordKind, vehicleID string, payload any) model.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := model.Record{LogicalTime: model.LogicalTime(len(r.records) + 1), Kind: kind, VehicleID: vehicleID, Payload: payload}
	r.records = append(r.records, rec)
	return rec
}

func (r *memRecorder) seqs(vehicleID string) []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uint64
	for _, rec := range r.records {
		if cmd, ok := rec.Payload.(model.Command); ok && rec.VehicleID == vehicleID {
			out = append(out, cmd.Seq)
		}
	}
	return out
}

type fixture struct {
	store *state.Store
	rec   *memRecorder
	hub   *fanout.Hub
	bus   *Bus
	m     *metrics.Metrics
}

func newFixture(t *testing.T, vehicles ...string) *fixture {
	t.Helper()
	f := &fixture{
		store: state.New(state.Options{}),
		rec:   &memRecorder{},
		hub:   fanout.New(fanout.Options{Buffer: 4096}),
		m:     metrics.New(),
	}
	f.bus = New(f.store, f.rec, f.hub, Options{Metrics: f.m})
	for _, v := range vehicles {
		_, err := f.store.UpsertTelemetry(model.TelemetrySnapshot{VehicleID: v, Timestamp: time.Now()})
		require.NoError(t, err)
	}
	return f
}

func thrusters(vehicleID string, override bool) model.Command {
	payload, _ := json.Marshal(model.ThrusterPayload{LeftPwm: 1600, RightPwm: 1600})
	return model.Command{VehicleID: vehicleID, Type: "set_thrusters", Payload: payload, Override: override}
}

func TestSequenceNumbersUnderConcurrency(t *testing.T) {
	f := newFixture(t, "boat-01")
	sub := f.hub.Subscribe("boat-01", fanout.SubscribeOptions{Buffer: 1000})

	const n = 500
	var wg sync.WaitGroup
	results := make(chan uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.bus.Enqueue(context.Background(), model.Command{VehicleID: "boat-01", Type: model.CommandPing})
			if assert.NoError(t, err) {
				results <- res.Seq
			}
		}()
	}
	wg.Wait()
	close(results)

	got := map[uint64]bool{}
	for seq := range results {
		got[seq] = true
	}
	require.Len(t, got, n)
	for seq := uint64(1); seq <= n; seq++ {
		assert.True(t, got[seq], "missing seq %d", seq)
	}

	// Fan-out and audit order both follow the sequence.
	for want := uint64(1); want <= n; want++ {
		r, ok := sub.TryNext()
		require.True(t, ok)
		assert.Equal(t, want, r.Payload.(model.Command).Seq)
	}
	seqs := f.rec.seqs("boat-01")
	for i, seq := range seqs {
		assert.Equal(t, uint64(i+1), seq)
	}
	assert.Equal(t, uint64(n), f.bus.LastSeq("boat-01"))
}

func TestValidationOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.bus.Enqueue(ctx, model.Command{Type: model.CommandPing})
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
	assert.False(t, res.Accepted)
	assert.Zero(t, res.Seq)

	_, err = f.bus.Enqueue(ctx, model.Command{VehicleID: "boat-01"})
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	_, err = f.bus.Enqueue(ctx, thrusters("boat-01", false))
	assert.ErrorIs(t, err, core.ErrUnknownVehicle)

	res, err = f.bus.Enqueue(ctx, model.Command{VehicleID: "boat-01", Type: "ping"})
	require.NoError(t, err, "PING is allowed before the first telemetry")
	assert.True(t, res.Accepted)
	assert.Equal(t, uint64(1), res.Seq)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.m.CommandRejections.WithLabelValues("invalid_request")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.CommandRejections.WithLabelValues("unknown_vehicle")))
}

func TestModeConflictUnderAutonomousMission(t *testing.T) {
	f := newFixture(t, "boat-01")
	ctx := context.Background()
	require.NoError(t, f.store.UpsertMission(model.Mission{
		TaskID: "auto-1", VehicleID: "boat-01", Mode: model.ModeAutonomous, State: model.MissionActive,
	}))
	sub := f.hub.Subscribe("boat-01", fanout.SubscribeOptions{})

	res, err := f.bus.Enqueue(ctx, thrusters("boat-01", false))
	require.ErrorIs(t, err, core.ErrModeConflict)
	var mc *core.ModeConflictError
	require.ErrorAs(t, err, &mc)
	assert.Equal(t, model.ModeAutonomous, mc.Mode)
	assert.False(t, res.Accepted)
	assert.Zero(t, sub.Len(), "rejected commands are not fanned out")

	res, err = f.bus.Enqueue(ctx, thrusters("boat-01", true))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, uint64(1), res.Seq, "rejections do not consume sequence numbers")

	r, ok := sub.TryNext()
	require.True(t, ok)
	assert.Equal(t, model.KindCommand, r.Kind)
	assert.Equal(t, model.CommandSetThrusters, r.Payload.(model.Command).Type)

	// Non-actuation commands are unaffected by the mode.
	_, err = f.bus.Enqueue(ctx, model.Command{VehicleID: "boat-01", Type: model.CommandEmergencyStop})
	assert.NoError(t, err)
}

func TestModeFromPausedMissionFallsBackToTelemetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.UpsertTelemetry(model.TelemetrySnapshot{
		VehicleID: "sub-02", Timestamp: time.Now(), Mission: model.MissionRef{Mode: model.ModeManual},
	})
	require.NoError(t, err)
	require.NoError(t, f.store.UpsertMission(model.Mission{
		TaskID: "auto-1", VehicleID: "sub-02", Mode: model.ModeAutonomous, State: model.MissionPaused,
	}))
	_, err = f.bus.Enqueue(ctx, thrusters("sub-02", false))
	assert.NoError(t, err, "a paused mission hands control back")

	_, err = f.store.UpsertTelemetry(model.TelemetrySnapshot{
		VehicleID: "sub-02", Timestamp: time.Now().Add(time.Second), Mission: model.MissionRef{Mode: model.ModeAutonomous},
	})
	require.NoError(t, err)
	_, err = f.bus.Enqueue(ctx, thrusters("sub-02", false))
	assert.ErrorIs(t, err, core.ErrModeConflict, "the vehicle reports autonomous operation")
}

func TestCrossVehicleIsolation(t *testing.T) {
	f := newFixture(t, "boat-01", "sub-02")
	ctx := context.Background()

	// Hold boat-01's partition: a command to sub-02 must still go through.
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = f.store.Exec("boat-01", func(*state.Partition) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	var wg sync.WaitGroup
	for i := 0; i < 1000; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.bus.Enqueue(ctx, model.Command{VehicleID: "boat-01", Type: model.CommandPing})
		}()
	}

	done := make(chan model.CommandResult, 1)
	go func() {
		res, _ := f.bus.Enqueue(ctx, model.Command{VehicleID: "sub-02", Type: model.CommandPing})
		done <- res
	}()

	select {
	case res := <-done:
		assert.True(t, res.Accepted)
		assert.Equal(t, uint64(1), res.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("sub-02 was delayed by boat-01")
	}

	close(release)
	wg.Wait()
	assert.Equal(t, uint64(1000), f.bus.LastSeq("boat-01"))
}

func TestCancelledContextBeforeAdmission(t *testing.T) {
	f := newFixture(t, "boat-01")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.bus.Enqueue(ctx, model.Command{VehicleID: "boat-01", Type: model.CommandPing})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Accepted)
	assert.Zero(t, f.bus.LastSeq("boat-01"))
}
