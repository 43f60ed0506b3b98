package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydronom-io/hydronom/internal/relay/core"
	"github.com/hydronom-io/hydronom/internal/relay/core/fanout"
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/internal/relay/core/recorder"
)

type memSink struct {
	mu      sync.Mutex
	records []model.Record
}

func (s *memSink) Append(_ context.Context, records []model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

func (s *memSink) snapshot() []model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Record(nil), s.records...)
}

func newService(t *testing.T) (*Service, *memSink) {
	t.Helper()
	sink := &memSink{}
	rec := recorder.New(sink, recorder.Options{FlushInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = rec.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return New(rec, Options{}), sink
}

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func snap(vehicleID string, ts time.Time) model.TelemetrySnapshot {
	return model.TelemetrySnapshot{
		Timestamp: ts,
		VehicleID: vehicleID,
		Vehicle:   model.VehicleInfo{Type: model.VehicleBoat},
		Pose:      model.Pose{Lat: 41.025, Lon: 28.85, HeadingDeg: 90, SpeedMps: 1.2},
		Battery:   model.Battery{Voltage: 15.8, SocPct: 88},
		TempC:     18.5,
	}
}

func TestOutOfOrderTelemetry(t *testing.T) {
	svc, sink := newService(t)
	ctx := context.Background()
	sub, err := svc.OpenSubscription("boat-01", fanout.SubscribeOptions{})
	require.NoError(t, err)

	t1, t2 := snap("boat-01", epoch), snap("boat-01", epoch.Add(time.Second))

	applied, err := svc.PostTelemetry(ctx, t2)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = svc.PostTelemetry(ctx, t1)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := svc.GetState("boat-01")
	require.NoError(t, err)
	assert.Equal(t, t2.Timestamp, got.Timestamp)

	// Both snapshots are in the audit trail, only the current one is live.
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	audit := sink.snapshot()
	assert.Equal(t, t2.Timestamp, audit[0].Payload.(model.TelemetrySnapshot).Timestamp)
	assert.Equal(t, t1.Timestamp, audit[1].Payload.(model.TelemetrySnapshot).Timestamp)
	assert.Equal(t, 1, sub.Len())
}

func TestInvalidTelemetry(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.PostTelemetry(context.Background(), model.TelemetrySnapshot{VehicleID: "boat-01"})
	assert.ErrorIs(t, err, core.ErrInvalidRequest, "timestamp is required")

	bad := snap("boat-01", epoch)
	bad.Pose.Lat = 123
	_, err = svc.PostTelemetry(context.Background(), bad)
	assert.ErrorIs(t, err, core.ErrInvalidRequest)

	_, err = svc.OpenSubscription("", fanout.SubscribeOptions{})
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
}

func TestVehicleTimelineIsTotallyOrdered(t *testing.T) {
	svc, sink := newService(t)
	ctx := context.Background()
	a, err := svc.OpenSubscription("boat-01", fanout.SubscribeOptions{Name: "a"})
	require.NoError(t, err)
	all := svc.OpenAll(fanout.SubscribeOptions{Name: "all"})

	_, err = svc.PostTelemetry(ctx, snap("boat-01", epoch))
	require.NoError(t, err)
	_, err = svc.PostMission(ctx, model.Mission{TaskID: "m1", VehicleID: "boat-01", Mode: model.ModeAutonomous})
	require.NoError(t, err)
	_, err = svc.PostCommand(ctx, model.Command{VehicleID: "boat-01", Type: model.CommandSetThrusters, Override: true})
	require.NoError(t, err)
	_, err = svc.PostMissionAction(ctx, "m1", "pause")
	require.NoError(t, err)

	want := []model.RecordKind{model.KindTelemetry, model.KindMission, model.KindCommand, model.KindMissionEvent}

	var kinds []model.RecordKind
	var prev model.LogicalTime
	for range want {
		r, ok := a.TryNext()
		require.True(t, ok)
		assert.Greater(t, r.LogicalTime, prev)
		prev = r.LogicalTime
		kinds = append(kinds, r.Kind)

		w, ok := all.TryNext()
		require.True(t, ok)
		assert.Equal(t, r.LogicalTime, w.LogicalTime)
	}
	assert.Equal(t, want, kinds)

	require.Eventually(t, func() bool { return len(sink.snapshot()) == 4 }, time.Second, 5*time.Millisecond)
	for i, r := range sink.snapshot() {
		assert.Equal(t, want[i], r.Kind)
	}

	m, err := svc.GetMission("m1")
	require.NoError(t, err)
	assert.Equal(t, model.MissionPaused, m.State)
}

func TestListAndReap(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.PostTelemetry(ctx, snap("boat-01", epoch))
	require.NoError(t, err)
	_, err = svc.PostTelemetry(ctx, snap("sub-02", epoch))
	require.NoError(t, err)

	list := svc.ListVehicles()
	require.Len(t, list, 2)
	assert.Equal(t, model.VehicleBoat, list[0].Type)

	assert.Equal(t, 0, svc.Reap(time.Hour))
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 2, svc.Reap(time.Millisecond))
	assert.Empty(t, svc.ListVehicles())
}
