package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydronom-io/hydronom/internal/pkg/metrics"
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
)

type fakeSink struct {
	mu      sync.Mutex
	down    bool
	records []model.Record
	last    model.LogicalTime
}

func (s *fakeSink) Append(_ context.Context, records []model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errors.New("connection refused")
	}
	s.records = append(s.records, records...)
	return nil
}

func (s *fakeSink) LastLogicalTime(context.Context) (model.LogicalTime, error) {
	return s.last, nil
}

func (s *fakeSink) setDown(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

func (s *fakeSink) times() []model.LogicalTime {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.LogicalTime, len(s.records))
	for i, r := range s.records {
		out[i] = r.LogicalTime
	}
	return out
}

func run(t *testing.T, r *Recorder) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestAppendIsStrictlyIncreasing(t *testing.T) {
	r := New(&fakeSink{}, Options{Capacity: 10000})

	var wg sync.WaitGroup
	seen := make(chan model.LogicalTime, 1000)
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var prev model.LogicalTime
			for i := 0; i < 100; i++ {
				rec := r.Append(model.KindCommand, "boat-01", i)
				assert.Greater(t, rec.LogicalTime, prev)
				prev = rec.LogicalTime
				seen <- rec.LogicalTime
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[model.LogicalTime]bool{}
	for lt := range seen {
		unique[lt] = true
	}
	assert.Len(t, unique, 1000)
	assert.Equal(t, model.LogicalTime(1000), r.LastLogicalTime())
}

func TestRecordsReachSinkInOrder(t *testing.T) {
	sink := &fakeSink{}
	r := New(sink, Options{BatchSize: 7, FlushInterval: 10 * time.Millisecond})
	run(t, r)

	for i := 0; i < 50; i++ {
		r.Append(model.KindTelemetry, "boat-01", i)
	}

	require.Eventually(t, func() bool { return len(sink.times()) == 50 }, 2*time.Second, 5*time.Millisecond)
	got := sink.times()
	for i := range got {
		assert.Equal(t, model.LogicalTime(i+1), got[i])
	}
	assert.Zero(t, r.Pending())
}

func TestDegradedSinkBuffersAndDropsOldest(t *testing.T) {
	m := metrics.New()
	sink := &fakeSink{down: true}

	var mu sync.Mutex
	var signals []bool
	r := New(sink, Options{
		Capacity:      10,
		FlushInterval: 5 * time.Millisecond,
		MinBackoff:    time.Millisecond,
		MaxBackoff:    5 * time.Millisecond,
		Metrics:       m,
		OnDegraded: func(d bool) {
			mu.Lock()
			signals = append(signals, d)
			mu.Unlock()
		},
	})
	run(t, r)

	start := time.Now()
	for i := 0; i < 25; i++ {
		r.Append(model.KindCommand, "boat-01", i)
	}
	assert.Less(t, time.Since(start), time.Second, "append must not wait for the sink")

	require.Eventually(t, r.Degraded, time.Second, time.Millisecond)
	assert.Equal(t, uint64(15), r.Dropped())
	assert.Equal(t, 15.0, testutil.ToFloat64(m.AuditDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditDegraded))

	sink.setDown(false)
	require.Eventually(t, func() bool { return len(sink.times()) == 10 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return !r.Degraded() }, time.Second, time.Millisecond)

	got := sink.times()
	assert.Equal(t, model.LogicalTime(16), got[0], "the oldest records were dropped")
	assert.Equal(t, model.LogicalTime(25), got[9])

	mu.Lock()
	assert.Equal(t, []bool{true, false}, signals)
	mu.Unlock()
}

func TestResumeContinuesAfterSink(t *testing.T) {
	sink := &fakeSink{last: 41}
	r := New(sink, Options{})
	require.NoError(t, r.Resume(context.Background()))

	rec := r.Append(model.KindMission, "sub-02", nil)
	assert.Equal(t, model.LogicalTime(42), rec.LogicalTime)
}

func TestShutdownFlushes(t *testing.T) {
	sink := &fakeSink{}
	r := New(sink, Options{FlushInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = r.Start(ctx)
		close(done)
	}()

	for i := 0; i < 300; i++ {
		r.Append(model.KindTelemetry, "boat-01", i)
	}
	cancel()
	<-done

	assert.Len(t, sink.times(), 300)
}
