package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*RelayOptions)(nil)

// RelayOptions tunes the in-memory engine.
type RelayOptions struct {
	// SubscriberBuffer is the per-subscriber ring capacity.
	SubscriberBuffer int `json:"subscriber-buffer" mapstructure:"subscriber-buffer"`

	// IdleTimeout is how long a vehicle may stay silent before it is reaped.
	// Zero disables reaping.
	IdleTimeout time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`

	// ReapInterval is the reaper tick.
	ReapInterval time.Duration `json:"reap-interval" mapstructure:"reap-interval"`

	// PreRegistration lists the command types accepted for vehicles that
	// have never sent telemetry.
	PreRegistration []string `json:"pre-registration" mapstructure:"pre-registration"`

	// StrictReadiness makes /readyz fail while the audit sink is degraded.
	StrictReadiness bool `json:"strict-readiness" mapstructure:"strict-readiness"`
}

func NewRelayOptions() *RelayOptions {
	return &RelayOptions{
		SubscriberBuffer: 256,
		IdleTimeout:      10 * time.Minute,
		ReapInterval:     time.Minute,
		PreRegistration:  []string{"PING"},
	}
}

func (o *RelayOptions) Validate() []error {
	var errors []error

	if o.SubscriberBuffer <= 0 {
		errors = append(errors, fmt.Errorf("--relay.subscriber-buffer must be positive, got %d", o.SubscriberBuffer))
	}
	if o.IdleTimeout < 0 {
		errors = append(errors, fmt.Errorf("--relay.idle-timeout must not be negative"))
	}
	if o.IdleTimeout > 0 && o.ReapInterval <= 0 {
		errors = append(errors, fmt.Errorf("--relay.reap-interval must be positive when reaping is enabled"))
	}

	return errors
}

func (o *RelayOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.SubscriberBuffer, "relay.subscriber-buffer", o.SubscriberBuffer, "Events buffered per subscriber before the oldest are dropped.")
	fs.DurationVar(&o.IdleTimeout, "relay.idle-timeout", o.IdleTimeout, "Silence after which an idle vehicle is forgotten. 0 disables reaping.")
	fs.DurationVar(&o.ReapInterval, "relay.reap-interval", o.ReapInterval, "How often idle vehicles are reaped.")
	fs.StringSliceVar(&o.PreRegistration, "relay.pre-registration", o.PreRegistration, "Command types accepted before a vehicle's first telemetry.")
	fs.BoolVar(&o.StrictReadiness, "relay.strict-readiness", o.StrictReadiness, "Report not ready while the audit sink is degraded.")
}
