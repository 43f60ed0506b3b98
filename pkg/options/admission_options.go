package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*AdmissionOptions)(nil)

// AdmissionOptions configures write rate limiting.
type AdmissionOptions struct {
	// RPS and Burst size the global bucket. RPS <= 0 disables it.
	RPS   float64 `json:"rps" mapstructure:"rps"`
	Burst int     `json:"burst" mapstructure:"burst"`

	// ClientRPS and ClientBurst size the per-client buckets. ClientRPS <= 0
	// disables them.
	ClientRPS   float64 `json:"client-rps" mapstructure:"client-rps"`
	ClientBurst int     `json:"client-burst" mapstructure:"client-burst"`

	// ClientIdle is how long an unused client bucket is kept.
	ClientIdle time.Duration `json:"client-idle" mapstructure:"client-idle"`
}

func NewAdmissionOptions() *AdmissionOptions {
	return &AdmissionOptions{
		RPS:         50,
		Burst:       100,
		ClientRPS:   0,
		ClientBurst: 20,
		ClientIdle:  5 * time.Minute,
	}
}

func (o *AdmissionOptions) Validate() []error {
	var errors []error

	if o.RPS > 0 && o.Burst <= 0 {
		errors = append(errors, fmt.Errorf("--admission.burst must be positive"))
	}
	if o.ClientRPS > 0 && o.ClientBurst <= 0 {
		errors = append(errors, fmt.Errorf("--admission.client-burst must be positive"))
	}
	if o.ClientRPS > 0 && o.ClientIdle <= 0 {
		errors = append(errors, fmt.Errorf("--admission.client-idle must be positive"))
	}

	return errors
}

func (o *AdmissionOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.Float64Var(&o.RPS, "admission.rps", o.RPS, "Sustained write requests per second across all clients. 0 disables the limit.")
	fs.IntVar(&o.Burst, "admission.burst", o.Burst, "Burst size of the global write limit.")
	fs.Float64Var(&o.ClientRPS, "admission.client-rps", o.ClientRPS, "Sustained write requests per second per client. 0 disables per-client limits.")
	fs.IntVar(&o.ClientBurst, "admission.client-burst", o.ClientBurst, "Burst size of per-client limits.")
	fs.DurationVar(&o.ClientIdle, "admission.client-idle", o.ClientIdle, "Unused per-client limiters are dropped after this long.")
}
