package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/cli/globalflag"
	"k8s.io/component-base/term"

	"github.com/hydronom-io/hydronom/pkg/log"
)

// RunFunc is the application entry point invoked after the options have
// been loaded, completed and validated.
type RunFunc func() error

// ReloadFunc is called with the live viper instance when the config file
// changes on disk.
type ReloadFunc func(v *viper.Viper)

// App is a cobra based command line application.
type App struct {
	name        string
	shortDesc   string
	description string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	reloadFunc  ReloadFunc
	noConfig    bool
	args        cobra.PositionalArgs
	viper       *viper.Viper
	cmd         *cobra.Command
}

// Option configures an App.
type Option func(*App)

// WithDescription sets the long description shown in help.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithOptions attaches the option tree whose flags the command exposes.
func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithRunFunc sets the entry point.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithReloadFunc registers a hook for config file changes.
func WithReloadFunc(fn ReloadFunc) Option {
	return func(a *App) { a.reloadFunc = fn }
}

// WithNoConfig disables the --config flag.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// WithDefaultValidArgs rejects positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// NewApp creates an application named name.
func NewApp(name, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
		viper:     viper.New(),
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

// Command returns the underlying cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Viper returns the configuration source backing the options.
func (a *App) Viper() *viper.Viper {
	return a.viper
}

// Run executes the command and exits the process on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	var namedFlagSets cliflag.NamedFlagSets
	if a.options != nil {
		namedFlagSets = a.options.Flags()
	}
	globalflag.AddGlobalFlags(namedFlagSets.FlagSet("global"), cmd.Name())

	var cfgFile *string
	if !a.noConfig {
		cfgFile = addConfigFlag(namedFlagSets.FlagSet("global"))
	}
	for _, f := range namedFlagSets.FlagSets {
		cmd.Flags().AddFlagSet(f)
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, namedFlagSets, cols)

	if a.runFunc != nil {
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			if cfgFile != nil {
				if err := a.loadOptions(cmd.Flags(), *cfgFile); err != nil {
					return err
				}
			}
			if err := a.completeAndValidate(); err != nil {
				return err
			}
			watchConfig(a.viper, a.reloadFunc)
			if err := a.runFunc(); err != nil {
				log.Error(err, "command failed", "command", a.name)
				return err
			}
			return nil
		}
	}

	a.cmd = cmd
}

// loadOptions merges the config file and environment into the options.
// Flags set on the command line keep precedence.
func (a *App) loadOptions(fs *pflag.FlagSet, cfgFile string) error {
	if err := a.viper.BindPFlags(fs); err != nil {
		return err
	}
	if err := loadConfig(a.viper, a.name, cfgFile); err != nil {
		return err
	}
	if a.options == nil {
		return nil
	}
	if err := a.viper.Unmarshal(a.options); err != nil {
		return fmt.Errorf("decode configuration: %w", err)
	}
	return nil
}

func (a *App) completeAndValidate() error {
	if a.options == nil {
		return nil
	}
	if err := a.options.Complete(); err != nil {
		return fmt.Errorf("complete options: %w", err)
	}
	return a.options.Validate()
}
