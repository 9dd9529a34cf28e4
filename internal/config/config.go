// Package config handles oneshotctl configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order: an explicit
// path (from -config) is checked first by FindConfig. Absent that:
// ./config.yaml, ~/.config/oneshotctl/config.yaml, /config/config.yaml,
// /etc/oneshotctl/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "oneshotctl", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/oneshotctl/config.yaml")
	return paths
}

// searchPathsFunc is DefaultSearchPaths behind a seam so tests can
// redirect FindConfig's search order without touching the real
// filesystem.
var searchPathsFunc = DefaultSearchPaths

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	paths := searchPathsFunc()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", paths)
}

// Config holds oneshotctl's configuration.
type Config struct {
	Listen   ListenConfig `yaml:"listen"`
	MQTT     MQTTConfig   `yaml:"mqtt"`
	WSRPC    WSRPCConfig  `yaml:"wsrpc"`
	LogLevel string       `yaml:"log_level"`
}

// ListenConfig holds bind settings (address and port). Load defaults
// and validates the port; no oneshotctl command reads these fields.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// MQTTSubscription is a single topic filter to subscribe to on connect.
type MQTTSubscription struct {
	Topic string `yaml:"topic"`
}

// MQTTConfig defines the MQTT broker connection used by the mqtt-ready
// demo subcommand.
type MQTTConfig struct {
	// Broker is the connection URL (e.g. "mqtt://localhost:1883" or
	// "mqtts://broker.example.com:8883").
	Broker string `yaml:"broker"`
	// DeviceName identifies this client in topic paths and as the
	// MQTT client ID.
	DeviceName string `yaml:"device_name"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	// Subscriptions are re-subscribed on every (re-)connect.
	Subscriptions []MQTTSubscription `yaml:"subscriptions"`
}

// Configured reports whether enough information is present to attempt
// a broker connection.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// WSRPCConfig defines the WebSocket endpoint used by the wsrpc demo
// subcommand.
type WSRPCConfig struct {
	URL string `yaml:"url"`
}

// Configured reports whether a WebSocket endpoint is set.
func (c WSRPCConfig) Configured() bool {
	return c.URL != ""
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates the
// result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${HOME}) as a convenience
	// for container deployments.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load. After this, callers can read any field
// without checking for empty strings or zero values.
func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.MQTT.DeviceName == "" {
		c.MQTT.DeviceName = "oneshotctl"
	}
}

// Validate checks that the configuration is internally consistent.
// It runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range (1-65535)", c.Listen.Port)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a default configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
