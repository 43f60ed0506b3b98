// Package recorder sequences state changes into an audit trail and
// forwards them to a durable sink in the background.
package recorder

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/hydronom-io/hydronom/internal/pkg/metrics"
	"github.com/hydronom-io/hydronom/internal/relay/core"
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
)

// Sink is the durable, append-only store behind the recorder. Append
// receives records in logical-time order and may be retried with the same
// records after a failure.
type Sink interface {
	Append(ctx context.Context, records []model.Record) error
}

// Resumer is implemented by sinks that can report the last logical time
// they persisted, so the clock continues after it across restarts.
type Resumer interface {
	LastLogicalTime(ctx context.Context) (model.LogicalTime, error)
}

type Options struct {
	// Capacity bounds the in-memory buffer. The oldest record is dropped on
	// overflow.
	Capacity      int
	BatchSize     int
	FlushInterval time.Duration
	MinBackoff    time.Duration
	MaxBackoff    time.Duration

	Clock   clock.WithTicker
	Metrics *metrics.Metrics
	Logger  logr.Logger

	// OnDegraded is called whenever the sink changes between healthy and
	// failing.
	OnDegraded func(degraded bool)
}

func (o *Options) complete() {
	if o.Capacity <= 0 {
		o.Capacity = 4096
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 128
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = time.Second
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = 100 * time.Millisecond
	}
	if o.MaxBackoff < o.MinBackoff {
		o.MaxBackoff = 30 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
}

// Recorder is the Event Recorder.
type Recorder struct {
	sink Sink
	opts Options
	log  logr.Logger

	mu      sync.Mutex
	last    model.LogicalTime
	queue   []model.Record
	dropped uint64

	wake     chan struct{}
	degraded atomic.Bool
}

var _ core.Recorder = (*Recorder)(nil)

func New(sink Sink, opts Options) *Recorder {
	opts.complete()
	return &Recorder{
		sink:  sink,
		opts:  opts,
		log:   opts.Logger.WithName("recorder"),
		queue: make([]model.Record, 0, min(opts.Capacity, 1024)),
		wake:  make(chan struct{}, 1),
	}
}

// Resume moves the logical clock past the sink's last persisted record.
// It must be called before the first Append.
func (r *Recorder) Resume(ctx context.Context) error {
	resumer, ok := r.sink.(Resumer)
	if !ok {
		return nil
	}
	last, err := resumer.LastLogicalTime(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if last > r.last {
		r.last = last
	}
	r.mu.Unlock()
	r.log.Info("resumed logical clock", "logical_time", uint64(last))
	return nil
}

// Append assigns the next logical time to a record and buffers it for the
// sink. It never blocks on the sink and never fails.
func (r *Recorder) Append(kind model.RecordKind, vehicleID string, payload any) model.Record {
	r.mu.Lock()
	r.last++
	rec := model.Record{
		LogicalTime: r.last,
		Kind:        kind,
		VehicleID:   vehicleID,
		At:          r.opts.Clock.Now(),
		Payload:     payload,
	}

	overflow := len(r.queue) >= r.opts.Capacity
	if overflow {
		r.queue[0] = model.Record{}
		r.queue = r.queue[1:]
		r.dropped++
	}
	r.queue = append(r.queue, rec)
	buffered := len(r.queue)
	r.mu.Unlock()

	if overflow {
		r.opts.Metrics.ObserveAuditDropped(1)
	}
	r.opts.Metrics.SetAuditBuffered(buffered)

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return rec
}

// LastLogicalTime returns the most recently assigned logical time.
func (r *Recorder) LastLogicalTime() model.LogicalTime {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Pending returns the number of records not yet acknowledged by the sink.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Dropped returns the number of records lost to buffer overflow.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Degraded reports whether the last write to the sink failed.
func (r *Recorder) Degraded() bool {
	return r.degraded.Load()
}

// Start forwards buffered records to the sink until ctx is cancelled, then
// makes one last attempt to flush within the flush interval.
func (r *Recorder) Start(ctx context.Context) error {
	ticker := r.opts.Clock.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	r.log.Info("starting audit recorder", "capacity", r.opts.Capacity, "batch", r.opts.BatchSize)

	failures := 0
	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return nil
		case <-r.wake:
		case <-ticker.C():
		}

		for {
			n, err := r.flushOnce(ctx)
			if err != nil {
				failures++
				r.setDegraded(true, err)
				if !r.sleep(ctx, r.backoff(failures)) {
					break
				}
				continue
			}
			failures = 0
			r.setDegraded(false, nil)
			if n < r.opts.BatchSize {
				break
			}
		}
	}
}

// flushOnce writes the oldest batch and removes it from the buffer once
// the sink acknowledged it.
func (r *Recorder) flushOnce(ctx context.Context) (int, error) {
	r.mu.Lock()
	n := min(len(r.queue), r.opts.BatchSize)
	batch := make([]model.Record, n)
	copy(batch, r.queue[:n])
	r.mu.Unlock()

	if n == 0 {
		return 0, nil
	}
	if err := r.sink.Append(ctx, batch); err != nil {
		return 0, err
	}

	// Records may have been dropped from the front while the sink was
	// writing, so trim by logical time rather than by count.
	upTo := batch[n-1].LogicalTime
	r.mu.Lock()
	i := 0
	for i < len(r.queue) && r.queue[i].LogicalTime <= upTo {
		r.queue[i] = model.Record{}
		i++
	}
	r.queue = r.queue[i:]
	buffered := len(r.queue)
	r.mu.Unlock()

	r.opts.Metrics.ObserveAuditFlushed(n)
	r.opts.Metrics.SetAuditBuffered(buffered)
	return n, nil
}

func (r *Recorder) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.FlushInterval)
	defer cancel()

	for r.Pending() > 0 {
		if _, err := r.flushOnce(ctx); err != nil {
			r.log.Error(err, "audit records lost on shutdown", "pending", r.Pending())
			return
		}
	}
}

func (r *Recorder) setDegraded(degraded bool, err error) {
	if r.degraded.Swap(degraded) == degraded {
		return
	}
	r.opts.Metrics.SetAuditDegraded(degraded)
	if degraded {
		r.log.Error(err, "audit sink unavailable, buffering records", "pending", r.Pending(), "reason", core.ErrSinkDegraded.Error())
	} else {
		r.log.Info("audit sink recovered", "pending", r.Pending())
	}
	if r.opts.OnDegraded != nil {
		r.opts.OnDegraded(degraded)
	}
}

func (r *Recorder) backoff(failures int) time.Duration {
	d := float64(r.opts.MinBackoff) * math.Pow(2, float64(failures-1))
	if d > float64(r.opts.MaxBackoff) {
		return r.opts.MaxBackoff
	}
	return time.Duration(d)
}

func (r *Recorder) sleep(ctx context.Context, d time.Duration) bool {
	t := r.opts.Clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C():
		return true
	}
}
