// Package fanout multicasts records to the subscribers of a vehicle.
//
// Every subscriber owns a bounded ring buffer. Publishing appends to each
// buffer and never waits: when a buffer is full its oldest event is
// dropped and the subscriber's dropped counter grows.
package fanout

import (
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/hydronom-io/hydronom/internal/pkg/metrics"
	"github.com/hydronom-io/hydronom/internal/relay/core/model"
)

const DefaultBuffer = 256

type Options struct {
	// Buffer is the capacity used when a subscription does not set one.
	Buffer  int
	Metrics *metrics.Metrics
	Logger  logr.Logger
}

// SubscribeOptions configures one subscription.
type SubscribeOptions struct {
	// Name labels the dropped-events metric, e.g. "ws" or "mqtt-downlink".
	Name   string
	Buffer int
}

// Hub is the Topic Fan-out.
type Hub struct {
	buffer  int
	metrics *metrics.Metrics
	log     logr.Logger

	// topics maps vehicle id to *topic.
	topics sync.Map
	// all holds the subscriptions that receive every vehicle's events.
	all *topic
	// subs maps token to *Subscription.
	subs sync.Map
}

type topic struct {
	mu   sync.Mutex
	subs map[string]*Subscription
	// dead is set when the topic lost its last subscriber and was removed
	// from the hub.
	dead bool
}

func newTopic() *topic {
	return &topic{subs: make(map[string]*Subscription)}
}

func New(opts Options) *Hub {
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	return &Hub{
		buffer:  opts.Buffer,
		metrics: opts.Metrics,
		log:     opts.Logger,
		all:     newTopic(),
	}
}

// Subscribe registers a subscription for the future events of vehicleID.
// The vehicle does not need to be known.
func (h *Hub) Subscribe(vehicleID string, opts SubscribeOptions) *Subscription {
	sub := h.newSubscription(vehicleID, opts)
	for {
		v, _ := h.topics.LoadOrStore(vehicleID, newTopic())
		t := v.(*topic)
		t.mu.Lock()
		if t.dead {
			t.mu.Unlock()
			continue
		}
		t.subs[sub.token] = sub
		t.mu.Unlock()
		break
	}
	h.register(sub)
	return sub
}

// SubscribeAll registers a subscription for the events of every vehicle.
func (h *Hub) SubscribeAll(opts SubscribeOptions) *Subscription {
	sub := h.newSubscription("", opts)
	h.all.mu.Lock()
	h.all.subs[sub.token] = sub
	h.all.mu.Unlock()
	h.register(sub)
	return sub
}

func (h *Hub) newSubscription(vehicleID string, opts SubscribeOptions) *Subscription {
	capacity := opts.Buffer
	if capacity <= 0 {
		capacity = h.buffer
	}
	name := opts.Name
	if name == "" {
		name = "default"
	}
	return &Subscription{
		token:     uuid.NewString(),
		vehicleID: vehicleID,
		name:      name,
		hub:       h,
		buf:       make([]model.Record, capacity),
		ready:     make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

func (h *Hub) register(sub *Subscription) {
	h.subs.Store(sub.token, sub)
	h.metrics.SubscriptionOpened()
	h.log.V(1).Info("subscription opened", "token", sub.token, "vehicle", sub.vehicleID, "name", sub.name)
}

// Unsubscribe cancels a subscription and releases its buffer. Unknown
// tokens are ignored.
func (h *Hub) Unsubscribe(token string) {
	v, ok := h.subs.LoadAndDelete(token)
	if !ok {
		return
	}
	sub := v.(*Subscription)

	if sub.vehicleID == "" {
		h.all.mu.Lock()
		delete(h.all.subs, token)
		h.all.mu.Unlock()
	} else if tv, ok := h.topics.Load(sub.vehicleID); ok {
		t := tv.(*topic)
		t.mu.Lock()
		delete(t.subs, token)
		if len(t.subs) == 0 && !t.dead {
			t.dead = true
			h.topics.CompareAndDelete(sub.vehicleID, t)
		}
		t.mu.Unlock()
	}

	sub.close()
	h.metrics.SubscriptionClosed()
	h.log.V(1).Info("subscription closed", "token", token, "vehicle", sub.vehicleID, "dropped", sub.Dropped())
}

// Publish delivers rec to every subscriber of vehicleID and to every
// wildcard subscriber. Publishes for one vehicle are serialized, so all of
// its subscribers observe the same order.
func (h *Hub) Publish(vehicleID string, rec model.Record) {
	if v, ok := h.topics.Load(vehicleID); ok {
		t := v.(*topic)
		t.mu.Lock()
		defer t.mu.Unlock()
		for _, sub := range t.subs {
			sub.push(rec)
		}
	}

	h.all.mu.Lock()
	for _, sub := range h.all.subs {
		sub.push(rec)
	}
	h.all.mu.Unlock()
}

// Subscribers returns the number of subscriptions on vehicleID, not
// counting wildcard ones.
func (h *Hub) Subscribers(vehicleID string) int {
	v, ok := h.topics.Load(vehicleID)
	if !ok {
		return 0
	}
	t := v.(*topic)
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}
