package fanout

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
)

// ErrSubscriptionClosed is returned by Next after the subscription was
// cancelled.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Subscription is one subscriber's bounded view of a topic.
type Subscription struct {
	token     string
	vehicleID string
	name      string
	hub       *Hub

	mu     sync.Mutex
	buf    []model.Record
	head   int
	size   int
	closed bool

	ready chan struct{}
	done  chan struct{}

	dropped atomic.Uint64
}

// Token identifies the subscription for Unsubscribe.
func (s *Subscription) Token() string { return s.token }

// VehicleID is empty for wildcard subscriptions.
func (s *Subscription) VehicleID() string { return s.vehicleID }

// Dropped is the number of events this subscriber lost to overflow.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Done is closed when the subscription is cancelled.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close cancels the subscription.
func (s *Subscription) Close() { s.hub.Unsubscribe(s.token) }

// Len returns the number of buffered events.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *Subscription) push(rec model.Record) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	overflow := s.size == len(s.buf)
	if overflow {
		s.buf[s.head] = model.Record{}
		s.head = (s.head + 1) % len(s.buf)
		s.size--
	}
	s.buf[(s.head+s.size)%len(s.buf)] = rec
	s.size++
	s.mu.Unlock()

	if overflow {
		s.dropped.Add(1)
		s.hub.metrics.ObserveDropped(s.name, 1)
	}

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// TryNext returns the oldest buffered event without waiting.
func (s *Subscription) TryNext() (model.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size == 0 {
		return model.Record{}, false
	}
	rec := s.buf[s.head]
	s.buf[s.head] = model.Record{}
	s.head = (s.head + 1) % len(s.buf)
	s.size--
	return rec, true
}

// Next waits for the next event. It returns ErrSubscriptionClosed once the
// subscription is cancelled, or the context error.
func (s *Subscription) Next(ctx context.Context) (model.Record, error) {
	for {
		if rec, ok := s.TryNext(); ok {
			return rec, nil
		}
		select {
		case <-s.ready:
		case <-s.done:
			return model.Record{}, ErrSubscriptionClosed
		case <-ctx.Done():
			return model.Record{}, ctx.Err()
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.buf = nil
	s.head, s.size = 0, 0
	close(s.done)
}
