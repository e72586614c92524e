// Package config loads the client options file. Values come from, in order of
// precedence: environment variables, the YAML options file, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultServer         = "127.0.0.1:4200"
	DefaultTimeout        = 6000 * time.Millisecond
	DefaultKeepAlive      = 6000 * time.Millisecond
	DefaultReadBufferSize = 8 * 1024
)

// Config holds the client settings.
type Config struct {
	// Server is the host:port of the node every statement is sent to.
	Server string `yaml:"server" validate:"required,hostname_port"`

	// Servers is accepted for forward compatibility and never used for
	// routing or failover.
	Servers []string `yaml:"servers" validate:"dive,hostname_port"`

	// Timeout bounds the connect, each write wait and each read wait.
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`

	// KeepAlive is the TCP keep-alive period of the socket. Negative disables.
	KeepAlive time.Duration `yaml:"keep_alive"`

	// ReadBufferSize is the size of a single socket read.
	ReadBufferSize int `yaml:"read_buffer_size" validate:"gte=512,lte=16777216"`

	Log Log `yaml:"log"`
}

// Log configures the zap logger built by the logging package.
type Log struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
	File        string `yaml:"file"` // Rotated with lumberjack when set
	MaxSizeMB   int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups  int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays  int    `yaml:"max_age_days" validate:"gte=0"`
	Compress    bool   `yaml:"compress"`
}

// Default returns the settings used when no options file is given.
func Default() Config {
	return Config{
		Server:         DefaultServer,
		Servers:        []string{DefaultServer},
		Timeout:        DefaultTimeout,
		KeepAlive:      DefaultKeepAlive,
		ReadBufferSize: DefaultReadBufferSize,
		Log: Log{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 7,
		},
	}
}

var validate = validator.New()

// UnmarshalYAML decodes the options file. Durations may be written as Go
// durations ("6s") or as bare milliseconds (6000).
func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			if (key.Value != "timeout" && key.Value != "keep_alive") || val.Kind != yaml.ScalarNode {
				continue
			}
			d, err := ParseDuration(val.Value)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key.Value, val.Value, err)
			}
			val.Value, val.Tag = d.String(), "!!str"
		}
	}
	type plain Config
	return node.Decode((*plain)(c))
}

// Validate checks the struct tags of c.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads the YAML options file at path over the defaults and applies
// environment overrides. An empty path or a missing file yields defaults.
func Load(path string) (Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Defaults
		case err != nil:
			return c, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &c); err != nil {
				return c, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		}
	}

	if err := applyEnv(&c); err != nil {
		return c, err
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func applyEnv(c *Config) error {
	c.Server = getEnvString("CRATE_SERVER", c.Server)
	c.Log.Level = getEnvString("CRATE_LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnvString("CRATE_LOG_FILE", c.Log.File)

	if v := os.Getenv("CRATE_TIMEOUT"); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CRATE_TIMEOUT %q: %w", v, err)
		}
		c.Timeout = d
	}
	return nil
}

// ParseDuration accepts a Go duration ("6s") or a bare number of
// milliseconds ("6000").
func ParseDuration(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
