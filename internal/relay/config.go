package relay

import (
	"github.com/go-logr/logr"

	"github.com/hydronom-io/hydronom/pkg/options"
)

type Config struct {
	HttpOptions      *options.HttpOptions
	GrpcOptions      *options.GrpcOptions
	MqttOptions      *options.MqttOptions
	S3Options        *options.S3Options
	RelayOptions     *options.RelayOptions
	AuditOptions     *options.AuditOptions
	AuthOptions      *options.AuthOptions
	AdmissionOptions *options.AdmissionOptions

	Logger logr.Logger
}
