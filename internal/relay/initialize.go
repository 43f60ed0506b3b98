package relay

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/pkg/mqtt"
	"github.com/hydronom-io/hydronom/pkg/options"
)

func InitializeMQTTClient(opts *options.MqttOptions, logger logr.Logger) (mqtt.Client, error) {
	cfg := opts.ToClientConfig()

	if cfg.ClientID == "" {
		hostname, _ := os.Hostname()
		cfg.ClientID = fmt.Sprintf("hydronom-relay-%s", hostname)
	}

	client, err := mqtt.NewClient(cfg)
	if err != nil {
		logger.Error(err, "failed to new mqtt client")
		return nil, err
	}

	return client, nil
}

func commandTypes(names []string) []model.CommandType {
	out := make([]model.CommandType, 0, len(names))
	for _, n := range names {
		out = append(out, model.CommandType(n))
	}
	return out
}
