package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/hydronom-io/hydronom/internal/relay"
	"github.com/hydronom-io/hydronom/pkg/app"
	"github.com/hydronom-io/hydronom/pkg/log"
	"github.com/hydronom-io/hydronom/pkg/options"
)

type RelayServerOptions struct {
	HttpOptions      *options.HttpOptions      `json:"http" mapstructure:"http"`
	GrpcOptions      *options.GrpcOptions      `json:"grpc" mapstructure:"grpc"`
	MqttOptions      *options.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	S3Options        *options.S3Options        `json:"s3" mapstructure:"s3"`
	RelayOptions     *options.RelayOptions     `json:"relay" mapstructure:"relay"`
	AuditOptions     *options.AuditOptions     `json:"audit" mapstructure:"audit"`
	AuthOptions      *options.AuthOptions      `json:"auth" mapstructure:"auth"`
	AdmissionOptions *options.AdmissionOptions `json:"admission" mapstructure:"admission"`
	Log              *log.Options              `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*RelayServerOptions)(nil)

func NewRelayServerOptions() *RelayServerOptions {
	o := &RelayServerOptions{
		HttpOptions:      options.NewHttpOptions(),
		GrpcOptions:      options.NewGrpcOptions(),
		MqttOptions:      options.NewMqttOptions(),
		S3Options:        options.NewS3Options(),
		RelayOptions:     options.NewRelayOptions(),
		AuditOptions:     options.NewAuditOptions(),
		AuthOptions:      options.NewAuthOptions(),
		AdmissionOptions: options.NewAdmissionOptions(),
		Log:              log.NewOptions(),
	}

	return o
}

func (o *RelayServerOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.GrpcOptions.AddFlags(fss.FlagSet("grpc"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.RelayOptions.AddFlags(fss.FlagSet("relay"))
	o.AuditOptions.AddFlags(fss.FlagSet("audit"))
	o.AuthOptions.AddFlags(fss.FlagSet("auth"))
	o.AdmissionOptions.AddFlags(fss.FlagSet("admission"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *RelayServerOptions) Complete() error {
	if o.Log.Name == "" {
		o.Log.Name = "hydronom-relay"
	}
	return nil
}

func (o *RelayServerOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.GrpcOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.RelayOptions.Validate()...)
	errs = append(errs, o.AuditOptions.Validate()...)
	errs = append(errs, o.AuthOptions.Validate()...)
	errs = append(errs, o.AdmissionOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	if o.AuditOptions.Sink == options.AuditSinkS3 {
		errs = append(errs, o.S3Options.Validate()...)
	}
	return utilerrors.NewAggregate(errs)
}

func (o *RelayServerOptions) Config() (*relay.Config, error) {
	return &relay.Config{
		HttpOptions:      o.HttpOptions,
		GrpcOptions:      o.GrpcOptions,
		MqttOptions:      o.MqttOptions,
		S3Options:        o.S3Options,
		RelayOptions:     o.RelayOptions,
		AuditOptions:     o.AuditOptions,
		AuthOptions:      o.AuthOptions,
		AdmissionOptions: o.AdmissionOptions,
		Logger:           log.Logr(),
	}, nil
}
