package app

import (
	"fmt"

	"github.com/spf13/viper"
	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/hydronom-io/hydronom/cmd/hydronom-relay/app/options"
	"github.com/hydronom-io/hydronom/pkg/app"
	"github.com/hydronom-io/hydronom/pkg/log"
)

const (
	commandName = "hydronom-relay"
	commandDesc = `The Hydronom relay sits between surface and underwater vehicles and
their operators. It keeps the latest telemetry per vehicle, streams it to
subscribers, validates and dispatches commands, runs mission lifecycles
and writes every accepted message to an ordered audit log.`
)

func NewApp() *app.App {
	opts := options.NewRelayServerOptions()
	application := app.NewApp(
		commandName,
		"Launch the Hydronom relay server",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
		app.WithReloadFunc(reload),
	)
	return application
}

func run(opts *options.RelayServerOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		server, err := cfg.NewRelayServer(ctx)
		if err != nil {
			return fmt.Errorf("failed to create relay server: %w", err)
		}

		return server.Run(ctx)
	}
}

// reload applies the settings that may change without a restart.
func reload(v *viper.Viper) {
	if level := v.GetString("log.level"); level != "" {
		log.SetLevel(level)
		log.Info("Log level reloaded", "level", level)
	}
}
