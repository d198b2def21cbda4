// Package config loads the application configuration for the bleloop
// CLI: logging, device identity, pipeline sizing and the simulator
// profile. Values come from built-in defaults overridden by an optional
// YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/bleloop/bleloop"
	"github.com/bleloop/bleloop/stack"
)

// Config holds application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Device   DeviceConfig   `yaml:"device"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Sim      SimConfig      `yaml:"sim"`

	// Scenario is an optional path to a YAML emission script played
	// against the simulator.
	Scenario string `yaml:"scenario,omitempty"`
}

// LogConfig selects level and output format.
type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"text"`
}

// DeviceConfig is the advertised identity.
type DeviceConfig struct {
	// Name is the explicit device name; empty derives from AppName.
	Name    string `yaml:"name,omitempty"`
	AppName string `yaml:"app_name" default:"bleloop"`

	// MACSuffix appends the hardware address suffix to the name.
	MACSuffix bool `yaml:"mac_suffix"`

	// IOCapability is one of none, display_only, display_yes_no,
	// keyboard_only, keyboard_display.
	IOCapability string `yaml:"io_capability" default:"none"`

	EnableOnBoot bool `yaml:"enable_on_boot"`
}

// PipelineConfig sizes the event path.
type PipelineConfig struct {
	PoolCapacity  int `yaml:"pool_capacity" default:"32"`
	QueueCapacity int `yaml:"queue_capacity,omitempty"`

	TickIntervalMs       int `yaml:"tick_interval_ms" default:"50"`
	SettleTimeMs         int `yaml:"settle_time_ms" default:"200"`
	StatusPollIntervalMs int `yaml:"status_poll_interval_ms" default:"1"`
	StatusPollTimeoutMs  int `yaml:"status_poll_timeout_ms" default:"500"`

	// TraceCapacity enables the diagnostic dispatch trace when non-zero.
	TraceCapacity uint32 `yaml:"trace_capacity,omitempty"`
}

// SimConfig is the simulated stack profile.
type SimConfig struct {
	Addr          string `yaml:"addr" default:"02:00:00:AA:BB:CC"`
	StatusDelayMs int    `yaml:"status_delay_ms,omitempty"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.Device.EnableOnBoot = true
	return cfg
}

// Parse overlays a YAML document on the defaults and validates the
// result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads path and parses it. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Validate reports values the application cannot run with.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if _, ok := stack.ParseIOCapability(c.Device.IOCapability); !ok {
		return fmt.Errorf("config: unknown io capability %q", c.Device.IOCapability)
	}
	if _, err := stack.ParseAddr(c.Sim.Addr); err != nil {
		return fmt.Errorf("config: sim addr: %w", err)
	}
	if c.Pipeline.PoolCapacity <= 0 {
		return fmt.Errorf("config: pool capacity must be positive, got %d", c.Pipeline.PoolCapacity)
	}
	if c.Pipeline.QueueCapacity < 0 {
		return fmt.Errorf("config: queue capacity must not be negative, got %d", c.Pipeline.QueueCapacity)
	}
	if c.Pipeline.TickIntervalMs <= 0 {
		return fmt.Errorf("config: tick interval must be positive, got %d", c.Pipeline.TickIntervalMs)
	}
	return nil
}

// NewLogger creates a configured logger instance.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	switch c.Log.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}
	return logger
}

// BLEConfig converts the file values into the controller configuration.
func (c *Config) BLEConfig() bleloop.Config {
	ioCap, _ := stack.ParseIOCapability(c.Device.IOCapability)
	return bleloop.Config{
		Name:               c.Device.Name,
		AppName:            c.Device.AppName,
		NameAddMACSuffix:   c.Device.MACSuffix,
		IOCap:              ioCap,
		EnableOnBoot:       c.Device.EnableOnBoot,
		PoolCapacity:       c.Pipeline.PoolCapacity,
		QueueCapacity:      c.Pipeline.QueueCapacity,
		StatusPollInterval: time.Duration(c.Pipeline.StatusPollIntervalMs) * time.Millisecond,
		StatusPollTimeout:  time.Duration(c.Pipeline.StatusPollTimeoutMs) * time.Millisecond,
		SettleTime:         time.Duration(c.Pipeline.SettleTimeMs) * time.Millisecond,
		TraceCapacity:      c.Pipeline.TraceCapacity,
	}
}

// TickInterval returns the dispatch loop interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Pipeline.TickIntervalMs) * time.Millisecond
}

// SimStatusDelay returns the simulated controller transition delay.
func (c *Config) SimStatusDelay() time.Duration {
	return time.Duration(c.Sim.StatusDelayMs) * time.Millisecond
}
