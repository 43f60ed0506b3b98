package fanout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydronom-io/hydronom/internal/pkg/metrics"
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
)

func rec(lt int, vehicleID string) model.Record {
	return model.Record{LogicalTime: model.LogicalTime(lt), Kind: model.KindTelemetry, VehicleID: vehicleID}
}

func drain(s *Subscription) []model.LogicalTime {
	var out []model.LogicalTime
	for {
		r, ok := s.TryNext()
		if !ok {
			return out
		}
		out = append(out, r.LogicalTime)
	}
}

func TestSubscribersSeeSameOrder(t *testing.T) {
	h := New(Options{})
	a := h.Subscribe("boat-01", SubscribeOptions{Name: "a"})
	b := h.Subscribe("boat-01", SubscribeOptions{Name: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var got []model.LogicalTime
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			r, err := a.Next(ctx)
			if err != nil {
				return
			}
			got = append(got, r.LogicalTime)
		}
	}()

	for i := 1; i <= 3; i++ {
		h.Publish("boat-01", rec(i, "boat-01"))
	}
	<-done

	assert.Equal(t, []model.LogicalTime{1, 2, 3}, got)
	// b consumes later but sees the same order.
	assert.Equal(t, []model.LogicalTime{1, 2, 3}, drain(b))
}

func TestConcurrentPublishersKeepOneOrder(t *testing.T) {
	h := New(Options{Buffer: 1000})
	a := h.Subscribe("boat-01", SubscribeOptions{})
	b := h.Subscribe("boat-01", SubscribeOptions{})
	all := h.SubscribeAll(SubscribeOptions{Buffer: 1000})

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h.Publish("boat-01", rec(p*1000+i, "boat-01"))
			}
		}(p)
	}
	wg.Wait()

	ga, gb, gall := drain(a), drain(b), drain(all)
	assert.Len(t, ga, 400)
	assert.Equal(t, ga, gb)
	assert.Equal(t, ga, gall)
}

func TestOverflowDropsOldestForStalledSubscriberOnly(t *testing.T) {
	m := metrics.New()
	h := New(Options{Metrics: m})

	const capacity = 8
	a := h.Subscribe("boat-01", SubscribeOptions{Name: "fast", Buffer: capacity + 5})
	b := h.Subscribe("boat-01", SubscribeOptions{Name: "stalled", Buffer: capacity})

	for i := 1; i <= capacity+5; i++ {
		h.Publish("boat-01", rec(i, "boat-01"))
	}

	gotB := drain(b)
	require.Len(t, gotB, capacity)
	assert.Equal(t, model.LogicalTime(6), gotB[0], "B keeps the most recent C events")
	assert.Equal(t, model.LogicalTime(capacity+5), gotB[capacity-1])
	assert.Equal(t, uint64(5), b.Dropped())
	assert.Equal(t, 5.0, testutil.ToFloat64(m.FanoutDropped.WithLabelValues("stalled")))

	assert.Len(t, drain(a), capacity+5)
	assert.Zero(t, a.Dropped())
}

func TestPublishIsolatedByVehicle(t *testing.T) {
	h := New(Options{})
	boat := h.Subscribe("boat-01", SubscribeOptions{})
	sub := h.Subscribe("sub-02", SubscribeOptions{})

	h.Publish("boat-01", rec(1, "boat-01"))
	h.Publish("sub-02", rec(2, "sub-02"))
	h.Publish("nobody", rec(3, "nobody"))

	assert.Equal(t, []model.LogicalTime{1}, drain(boat))
	assert.Equal(t, []model.LogicalTime{2}, drain(sub))
}

func TestUnsubscribeReleasesAndUnblocks(t *testing.T) {
	h := New(Options{})
	s := h.Subscribe("boat-01", SubscribeOptions{})
	h.Publish("boat-01", rec(1, "boat-01"))

	errCh := make(chan error, 1)
	go func() {
		_, _ = s.Next(context.Background())
		_, err := s.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSubscriptionClosed)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after unsubscribe")
	}

	assert.Equal(t, 0, h.Subscribers("boat-01"))
	assert.Zero(t, s.Len())

	// Publishing after the last subscriber left is a no-op, and the topic
	// can be recreated.
	h.Publish("boat-01", rec(2, "boat-01"))
	again := h.Subscribe("boat-01", SubscribeOptions{})
	h.Publish("boat-01", rec(3, "boat-01"))
	assert.Equal(t, []model.LogicalTime{3}, drain(again))

	h.Unsubscribe("unknown-token")
}

func TestSlowSubscriberNeverBlocksPublisher(t *testing.T) {
	h := New(Options{Buffer: 4})
	_ = h.Subscribe("boat-01", SubscribeOptions{})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			h.Publish("boat-01", rec(i, "boat-01"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked on a stalled subscriber")
	}
}
