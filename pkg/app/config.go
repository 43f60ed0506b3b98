package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const configFlagName = "config"

// addConfigFlag registers --config and arranges for the file, the
// environment and .env files to be loaded before the command runs.
func addConfigFlag(fs *pflag.FlagSet) *string {
	cfgFile := new(string)
	fs.StringVarP(cfgFile, configFlagName, "c", "", "Read configuration from the specified YAML file. Flags override file values.")
	return cfgFile
}

// loadConfig reads .env files, binds the environment and merges cfgFile
// into v. A missing default config file is not an error.
func loadConfig(v *viper.Viper, basename, cfgFile string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	v.SetEnvPrefix(envPrefix(basename))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "."+strings.Split(basename, "-")[0]))
		}
		v.AddConfigPath(filepath.Join("/etc", strings.Split(basename, "-")[0]))
		v.SetConfigName(basename)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	return nil
}

// watchConfig invokes fn whenever the loaded config file is written.
func watchConfig(v *viper.Viper, fn func(*viper.Viper)) {
	if v.ConfigFileUsed() == "" || fn == nil {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Has(fsnotify.Write) || e.Has(fsnotify.Create) {
			fn(v)
		}
	})
	v.WatchConfig()
}

// envPrefix turns "hydronom-relay" into "HYDRONOM".
func envPrefix(basename string) string {
	return strings.ToUpper(strings.Split(basename, "-")[0])
}
