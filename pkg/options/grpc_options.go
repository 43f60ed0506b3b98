package options

import (
	"github.com/spf13/pflag"
)

var _ IOptions = (*GrpcOptions)(nil)

// GrpcOptions configures the gRPC health endpoint. It is unauthenticated
// and meant for probes inside the deployment network.
type GrpcOptions struct {
	// Enabled turns the gRPC server on.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Network with server network.
	Network string `json:"network" mapstructure:"network"`

	// Address with server address.
	Addr string `json:"addr" mapstructure:"addr"`

	// Reflection registers the gRPC reflection service.
	Reflection bool `json:"reflection" mapstructure:"reflection"`
}

func NewGrpcOptions() *GrpcOptions {
	return &GrpcOptions{
		Enabled:    true,
		Network:    "tcp",
		Addr:       "0.0.0.0:8091",
		Reflection: true,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *GrpcOptions) Validate() []error {
	var errors []error

	if !o.Enabled {
		return errors
	}
	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// AddFlags adds flags related to features for a specific api server to the
// specified FlagSet.
func (o *GrpcOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "grpc.enabled", o.Enabled, "Serve the gRPC health service.")
	fs.StringVar(&o.Network, "grpc.network", o.Network, "Specify the network for the gRPC server.")
	fs.StringVar(&o.Addr, "grpc.addr", o.Addr, "Specify the gRPC server bind address and port.")
	fs.BoolVar(&o.Reflection, "grpc.reflection", o.Reflection, "Register the gRPC reflection service.")
}
