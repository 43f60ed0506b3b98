package feeder

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-logr/logr"

	"github.com/hydronom-io/hydronom/internal/relay/core/model"
	"github.com/hydronom-io/hydronom/pkg/mqtt"
	mqtttopic "github.com/hydronom-io/hydronom/pkg/mqtt/topic"
	"github.com/hydronom-io/hydronom/pkg/options"
)

type Config struct {
	MqttOptions   *options.MqttOptions
	FeederOptions *options.FeederOptions
	Logger        logr.Logger
}

func (cfg *Config) NewFeeder() (*Feeder, error) {
	fo := cfg.FeederOptions

	mqttConfig := cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		mqttConfig.ClientID = fmt.Sprintf("hydronom-feeder-%s", fo.VehicleID)
	}
	client, err := mqtt.NewClient(mqttConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to init mqtt client: %w", err)
	}

	sim := NewSim(SimOptions{
		VehicleID:  fo.VehicleID,
		Type:       model.VehicleType(fo.Type),
		Mode:       model.Mode(fo.Mode),
		TaskID:     fo.TaskID,
		Lat:        fo.StartLat,
		Lon:        fo.StartLon,
		HeadingDeg: rand.Float64() * 360,
		SoC:        fo.StartSoC,
		LowBattery: fo.LowBattery,
		LeakAfter:  fo.LeakAfter,
	})
	interval := time.Duration(float64(time.Second) / fo.Rate)

	return New(client, mqtttopic.NewTopicBuilder(cfg.MqttOptions.TopicRoot), sim, interval, nil, cfg.Logger), nil
}
