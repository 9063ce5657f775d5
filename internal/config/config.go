// Package config loads signalrt's runtime configuration from built-in
// defaults, a YAML file, and environment variables, in that ascending order
// of precedence.
package config

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration struct. Field tags use mapstructure
// for viper unmarshalling and yaml for round-tripping the effective,
// post-default, post-env configuration back out for operators.
type Config struct {
	Dependency DependencyConfig `mapstructure:"dependency" yaml:"dependency"`
	Bus        BusConfig        `mapstructure:"bus"        yaml:"bus"`
	Command    CommandConfig    `mapstructure:"command"    yaml:"command"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"  yaml:"telemetry"`
}

// DependencyConfig holds DependencyTracker knobs.
type DependencyConfig struct {
	GatherTimeoutSec int `mapstructure:"gather_timeout_sec" yaml:"gather_timeout_sec"`
	GraphCacheSize   int `mapstructure:"graph_cache_size"   yaml:"graph_cache_size"`
}

// BusConfig holds in-memory Bus knobs.
type BusConfig struct {
	SubscriberChannelSize int `mapstructure:"subscriber_channel_size" yaml:"subscriber_channel_size"`
}

// CommandConfig holds command layer knobs.
type CommandConfig struct {
	SendGraphTimeoutSec int `mapstructure:"send_graph_timeout_sec" yaml:"send_graph_timeout_sec"`
}

// TelemetryConfig holds observability knobs.
type TelemetryConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure" yaml:"otlp_insecure"`
	LogJSON      bool    `mapstructure:"log_json"      yaml:"log_json"`
	DebugTrace   bool    `mapstructure:"debug_trace"   yaml:"debug_trace"`
	SampleRatio  float64 `mapstructure:"sample_ratio"  yaml:"sample_ratio"`
}

// Sentinel validation errors.
var (
	ErrInvalidGatherTimeout      = errors.New("config: dependency.gather_timeout_sec must be positive")
	ErrInvalidGraphCacheSize     = errors.New("config: dependency.graph_cache_size must be non-negative")
	ErrInvalidSubscriberChanSize = errors.New("config: bus.subscriber_channel_size must be positive")
	ErrInvalidSendGraphTimeout   = errors.New("config: command.send_graph_timeout_sec must be positive")
)

// Validate checks the loaded configuration for internally inconsistent or
// out-of-range values.
func (c *Config) Validate() error {
	if c.Dependency.GatherTimeoutSec <= 0 {
		return ErrInvalidGatherTimeout
	}

	if c.Dependency.GraphCacheSize < 0 {
		return ErrInvalidGraphCacheSize
	}

	if c.Bus.SubscriberChannelSize <= 0 {
		return ErrInvalidSubscriberChanSize
	}

	if c.Command.SendGraphTimeoutSec <= 0 {
		return ErrInvalidSendGraphTimeout
	}

	return nil
}

// YAML renders the effective configuration (after defaults, file, and
// environment overrides have all been applied) back out as YAML, for
// operators diagnosing what a run actually resolved to.
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("config: marshal to yaml: %w", err)
	}

	return string(out), nil
}
