package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".signalrt"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for signalrt settings.
const envPrefix = "SIGNALRT"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// Default values used when a file or environment variable does not override them.
const (
	DefaultGatherTimeoutSec      = 5
	DefaultGraphCacheSize        = 256
	DefaultSubscriberChannelSize = 64
	DefaultSendGraphTimeoutSec   = 5
)

// Load loads configuration from file, env vars, and defaults.
// If configPath is non-empty, it is used as the explicit config file path.
// Otherwise, the config file is searched in CWD and $HOME.
// A missing config file is not an error; defaults are used.
func Load(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home)
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("dependency.gather_timeout_sec", DefaultGatherTimeoutSec)
	viperCfg.SetDefault("dependency.graph_cache_size", DefaultGraphCacheSize)

	viperCfg.SetDefault("bus.subscriber_channel_size", DefaultSubscriberChannelSize)

	viperCfg.SetDefault("command.send_graph_timeout_sec", DefaultSendGraphTimeoutSec)

	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.log_json", true)
	viperCfg.SetDefault("telemetry.debug_trace", false)
	viperCfg.SetDefault("telemetry.sample_ratio", 0.0)
}
