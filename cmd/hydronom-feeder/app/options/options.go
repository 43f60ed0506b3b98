package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/hydronom-io/hydronom/internal/feeder"
	"github.com/hydronom-io/hydronom/pkg/app"
	"github.com/hydronom-io/hydronom/pkg/log"
	"github.com/hydronom-io/hydronom/pkg/options"
)

type FeederOptions struct {
	MqttOptions   *options.MqttOptions   `json:"mqtt" mapstructure:"mqtt"`
	FeederOptions *options.FeederOptions `json:"feeder" mapstructure:"feeder"`
	Log           *log.Options           `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*FeederOptions)(nil)

func NewFeederOptions() *FeederOptions {
	o := &FeederOptions{
		MqttOptions:   options.NewMqttOptions(),
		FeederOptions: options.NewFeederOptions(),
		Log:           log.NewOptions(),
	}
	// The feeder is useless without a broker.
	o.MqttOptions.Enabled = true

	return o
}

func (o *FeederOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.FeederOptions.AddFlags(fss.FlagSet("feeder"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *FeederOptions) Complete() error {
	o.MqttOptions.Enabled = true
	return nil
}

func (o *FeederOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.FeederOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *FeederOptions) Config() (*feeder.Config, error) {
	return &feeder.Config{
		MqttOptions:   o.MqttOptions,
		FeederOptions: o.FeederOptions,
		Logger:        log.Logr(),
	}, nil
}
