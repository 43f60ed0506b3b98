package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/hydronom-io/hydronom/cmd/hydronom-feeder/app/options"
	"github.com/hydronom-io/hydronom/pkg/app"
	"github.com/hydronom-io/hydronom/pkg/log"
)

const (
	commandName = "hydronom-feeder"
	commandDesc = `The Hydronom feeder simulates a single boat or submarine. It publishes
telemetry to the relay's MQTT broker and applies the thruster, rudder and
ballast commands it receives back.`
)

func NewApp() *app.App {
	opts := options.NewFeederOptions()
	return app.NewApp(
		commandName,
		"Simulate a vehicle feeding telemetry over MQTT",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
}

func run(opts *options.FeederOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		f, err := cfg.NewFeeder()
		if err != nil {
			return fmt.Errorf("failed to create feeder: %w", err)
		}

		return f.Run(ctx)
	}
}
