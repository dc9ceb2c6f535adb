// Package config provides configuration parsing and validation for the
// procproxy acceptor.
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete acceptor configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Log       LogConfig       `yaml:"log"`
	Handshake HandshakeConfig `yaml:"handshake"`
}

// ListenConfig defines the loopback address the acceptor binds to.
type ListenConfig struct {
	Address string `yaml:"address"` // must resolve to a loopback interface
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// HandshakeConfig tunes the acceptor's per-connection handshake window.
type HandshakeConfig struct {
	TimeoutMS int `yaml:"timeout_ms"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Address: "127.0.0.1:0",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Handshake: HandshakeConfig{
			TimeoutMS: 1000,
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, starting from Default and
// overlaying whatever the document sets.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if match[1] == '{' {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

// Validate checks the configuration for internal consistency and rejects
// anything that would violate the loopback-only transport requirement.
func (c *Config) Validate() error {
	if err := isValidLogLevel(c.Log.Level); err != nil {
		return err
	}
	if err := isValidLogFormat(c.Log.Format); err != nil {
		return err
	}
	if c.Handshake.TimeoutMS <= 0 {
		return fmt.Errorf("handshake.timeout_ms must be positive, got %d", c.Handshake.TimeoutMS)
	}
	if err := isLoopbackAddress(c.Listen.Address); err != nil {
		return err
	}
	return nil
}

// HandshakeTimeout returns the handshake deadline as a time.Duration.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Handshake.TimeoutMS) * time.Millisecond
}

func isValidLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("log.level must be one of debug/info/warn/error, got %q", level)
	}
}

func isValidLogFormat(format string) error {
	switch format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("log.format must be one of text/json, got %q", format)
	}
}

func isLoopbackAddress(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("listen.address %q is not host:port: %w", addr, err)
	}
	if host == "" {
		return fmt.Errorf("listen.address %q must specify a loopback host", addr)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		if host == "localhost" {
			return nil
		}
		return fmt.Errorf("listen.address host %q does not parse as an IP", host)
	}
	if !ip.IsLoopback() {
		return fmt.Errorf("listen.address host %q is not a loopback address", host)
	}
	return nil
}
