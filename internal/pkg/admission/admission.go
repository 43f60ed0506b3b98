// Package admission rate limits write requests with token buckets.
package admission

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
)

// ErrRateLimited is returned when a request is not admitted.
var ErrRateLimited = errors.New("rate limited")

// Options configures a Controller. A non-positive RPS disables the
// corresponding limit.
type Options struct {
	RPS         float64
	Burst       int
	ClientRPS   float64
	ClientBurst int
	ClientIdle  time.Duration
	Clock       clock.PassiveClock
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Controller admits requests against a global bucket and optional
// per-client buckets.
type Controller struct {
	opts   Options
	global *rate.Limiter
	clock  clock.PassiveClock

	mu      sync.Mutex
	clients map[string]*client
}

func New(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.ClientIdle <= 0 {
		opts.ClientIdle = 5 * time.Minute
	}
	c := &Controller{
		opts:    opts,
		clock:   opts.Clock,
		clients: make(map[string]*client),
	}
	if opts.RPS > 0 {
		c.global = rate.NewLimiter(rate.Limit(opts.RPS), opts.Burst)
	}
	return c
}

// Allow reports whether a request from key may proceed. The client bucket
// is consulted first so a noisy client cannot drain the global bucket.
func (c *Controller) Allow(key string) bool {
	now := c.clock.Now()

	if c.opts.ClientRPS > 0 {
		if !c.clientLimiter(key, now).AllowN(now, 1) {
			return false
		}
	}
	if c.global != nil && !c.global.AllowN(now, 1) {
		return false
	}
	return true
}

func (c *Controller) clientLimiter(key string, now time.Time) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	cl, ok := c.clients[key]
	if !ok {
		cl = &client{limiter: rate.NewLimiter(rate.Limit(c.opts.ClientRPS), c.opts.ClientBurst)}
		c.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// Sweep forgets client buckets unused for longer than ClientIdle and
// returns how many were removed.
func (c *Controller) Sweep() int {
	cutoff := c.clock.Now().Add(-c.opts.ClientIdle)

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, cl := range c.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(c.clients, key)
			n++
		}
	}
	return n
}

// Clients returns the number of tracked client buckets.
func (c *Controller) Clients() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// ClientKey identifies the caller by remote host.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests that are not admitted.
func (c *Controller) Middleware(deny func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !c.Allow(ClientKey(r)) {
				deny(w, r, ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
