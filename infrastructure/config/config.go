// Package config loads the YAML configuration for the stream client.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"bux-stream/application/credential"
	"bux-stream/domain/channel"
)

// Config is the root configuration.
type Config struct {
	Stream  StreamConfig  `yaml:"stream"`
	Logging LoggingConfig `yaml:"logging"`
	Archive ArchiveConfig `yaml:"archive"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StreamConfig configures the real-time connection.
type StreamConfig struct {
	URL            string   `yaml:"url"`
	Actions        []string `yaml:"actions"`
	ConnectTimeout Duration `yaml:"connectTimeout"`
	// TokenEnv names the environment variable holding the access token.
	// The token itself is never read from the config file.
	TokenEnv       string `yaml:"tokenEnv"`
	MaxMessageSize int64  `yaml:"maxMessageSize"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
	AddSource  bool   `yaml:"addSource"`
}

// ArchiveConfig configures the optional MongoDB event archive.
type ArchiveConfig struct {
	Enabled        bool     `yaml:"enabled"`
	URI            string   `yaml:"uri"`
	Database       string   `yaml:"database"`
	Collection     string   `yaml:"collection"`
	ConnectTimeout Duration `yaml:"connectTimeout"`
	WriteTimeout   Duration `yaml:"writeTimeout"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Duration is a wrapper for time.Duration that handles YAML parsing.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			URL:            "wss://rtf.getbux.com/subscriptions/me",
			Actions:        []string{channel.DefaultAction.String()},
			ConnectTimeout: Duration(10 * time.Second),
			TokenEnv:       credential.DefaultTokenEnv,
			MaxMessageSize: 1 << 20,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 10,
			MaxAgeDays: 14,
			Compress:   true,
		},
		Archive: ArchiveConfig{
			Enabled:        false,
			URI:            "mongodb://localhost:27017",
			Database:       "bux",
			Collection:     "stream_events",
			ConnectTimeout: Duration(10 * time.Second),
			WriteTimeout:   Duration(5 * time.Second),
		},
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.Stream.URL == "" {
		errs = append(errs, errors.New("stream.url is required"))
	}
	if len(c.Stream.Actions) == 0 {
		errs = append(errs, errors.New("stream.actions must list at least one action"))
	} else if _, err := channel.ParseAll(c.Stream.Actions); err != nil {
		errs = append(errs, fmt.Errorf("stream.actions: %w", err))
	}
	if c.Stream.ConnectTimeout < 0 {
		errs = append(errs, errors.New("stream.connectTimeout must not be negative"))
	}
	if c.Archive.Enabled {
		if c.Archive.URI == "" {
			errs = append(errs, errors.New("archive.uri is required when archive is enabled"))
		}
		if c.Archive.Database == "" || c.Archive.Collection == "" {
			errs = append(errs, errors.New("archive.database and archive.collection are required when archive is enabled"))
		}
	}

	return errors.Join(errs...)
}

// ActionList returns the parsed subscription actions.
func (c *Config) ActionList() ([]channel.Action, error) {
	return channel.ParseAll(c.Stream.Actions)
}
