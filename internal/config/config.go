// Package config loads the trader configuration: the YAML application file
// plus the JSON credential vault and ticker catalogue it points at.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// QueueConfig sizes the three engine-facing ring buffers.
type QueueConfig struct {
	Requests      int `yaml:"requests"`
	Responses     int `yaml:"responses"`
	MarketUpdates int `yaml:"market_updates"`
}

// ReconnectConfig bounds WebSocket reconnect behaviour.
type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	// MaxAttempts of 0 means unlimited.
	MaxAttempts int `yaml:"max_attempts"`
}

// TelemetryConfig configures the OTLP metric exporter.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// AppConfig is the trader application configuration.
type AppConfig struct {
	LogLevel          string          `yaml:"log_level"`
	CredentialsPath   string          `yaml:"credentials_path"`
	TickersPath       string          `yaml:"tickers_path"`
	Queues            QueueConfig     `yaml:"queues"`
	HTTPTimeout       time.Duration   `yaml:"http_timeout"`
	SnapshotDepth     int             `yaml:"snapshot_depth"`
	SnapshotInterval  time.Duration   `yaml:"snapshot_interval"`
	KeepAliveInterval time.Duration   `yaml:"keepalive_interval"`
	Reconnect         ReconnectConfig `yaml:"reconnect"`
	Telemetry         TelemetryConfig `yaml:"telemetry"`
}

// Default returns the built-in configuration.
func Default() AppConfig {
	return AppConfig{
		LogLevel:        "info",
		CredentialsPath: "config/credentials.json",
		TickersPath:     "config/tickers.json",
		Queues: QueueConfig{
			Requests:      1024,
			Responses:     1024,
			MarketUpdates: 262_144,
		},
		HTTPTimeout:       5 * time.Second,
		SnapshotDepth:     1000,
		SnapshotInterval:  30 * time.Second,
		KeepAliveInterval: 30 * time.Minute,
		Reconnect: ReconnectConfig{
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			MaxAttempts:  0,
		},
		Telemetry: TelemetryConfig{ServiceName: "omlaxmiquant-trader"},
	}
}

// Load reads the YAML file at path over the defaults. An empty path falls
// back to the TRADER_CONFIG environment variable, then to config/app.yaml;
// a missing file yields the defaults.
func Load(path string) (AppConfig, error) {
	cfg := Default()

	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("TRADER_CONFIG"))
	}
	if path == "" {
		path = "config/app.yaml"
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for usable values.
func (c *AppConfig) Validate() error {
	if c.Queues.Requests < 1 || c.Queues.Responses < 1 || c.Queues.MarketUpdates < 1 {
		return fmt.Errorf("validate config: queue capacities must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("validate config: http_timeout must be positive")
	}
	if c.SnapshotDepth < 1 {
		return fmt.Errorf("validate config: snapshot_depth must be positive")
	}
	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("validate config: snapshot_interval must be positive")
	}
	if c.KeepAliveInterval <= 0 {
		return fmt.Errorf("validate config: keepalive_interval must be positive")
	}
	if c.Reconnect.InitialDelay <= 0 || c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return fmt.Errorf("validate config: reconnect delays out of order")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("validate config: max_attempts cannot be negative")
	}
	return nil
}
