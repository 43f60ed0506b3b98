// Package reaper periodically evicts idle vehicles and stale admission
// buckets.
package reaper

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// Vehicles forgets vehicles silent for longer than maxAge.
type Vehicles interface {
	Reap(maxAge time.Duration) int
}

// Sweeper drops idle per-client state.
type Sweeper interface {
	Sweep() int
}

type Options struct {
	Interval    time.Duration
	IdleTimeout time.Duration
	Clock       clock.WithTicker
	Logger      logr.Logger
}

type Reaper struct {
	vehicles Vehicles
	sweepers []Sweeper
	opts     Options
	log      logr.Logger
}

func New(vehicles Vehicles, opts Options, sweepers ...Sweeper) *Reaper {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	return &Reaper{
		vehicles: vehicles,
		sweepers: sweepers,
		opts:     opts,
		log:      opts.Logger.WithName("reaper"),
	}
}

// Start ticks until ctx is done.
func (r *Reaper) Start(ctx context.Context) error {
	ticker := r.opts.Clock.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			r.RunOnce()
		}
	}
}

// RunOnce performs a single pass. A zero IdleTimeout keeps every vehicle.
func (r *Reaper) RunOnce() {
	if r.opts.IdleTimeout > 0 && r.vehicles != nil {
		if n := r.vehicles.Reap(r.opts.IdleTimeout); n > 0 {
			r.log.V(1).Info("Reap pass", "count", n, "idle", r.opts.IdleTimeout)
		}
	}
	for _, s := range r.sweepers {
		if n := s.Sweep(); n > 0 {
			r.log.V(1).Info("Swept idle clients", "count", n)
		}
	}
}
