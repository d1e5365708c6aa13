// Package config defines the Interlock daemon configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Interlock configuration.
type Config struct {
	Server   ServerConfig `json:"server" yaml:"server"`
	Auth     AuthConfig   `json:"auth" yaml:"auth"`
	Locks    LockConfig   `json:"locks" yaml:"locks"`
	DataDir  string       `json:"data_dir" yaml:"data_dir"`
	LogLevel string       `json:"log_level" yaml:"log_level"`
}

// ServerConfig controls how the coordination server is exposed.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":9090"
	Mode string `json:"mode" yaml:"mode"` // "http" serves MCP plus the dashboard API; "stdio" speaks MCP on stdin/stdout
}

// AuthConfig controls write access to the dashboard API. An empty token
// leaves mutating endpoints open, which suits a single-host setup.
type AuthConfig struct {
	Token string `json:"token" yaml:"token"` // bearer token required on mutating endpoints
}

// LockConfig tunes coordination behavior.
type LockConfig struct {
	// AllowTakeover permits an agent to complete or cancel a todo item
	// assigned to another agent. Locks never expire on their own, so
	// this is the operator's lever for abandoned work.
	AllowTakeover bool `json:"allow_takeover" yaml:"allow_takeover"`
}

// Modes accepted by ServerConfig.Mode.
const (
	ModeHTTP  = "http"
	ModeStdio = "stdio"
)

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":9090",
			Mode: ModeHTTP,
		},
		DataDir:  "./data",
		LogLevel: "info",
	}
}

// Load reads a YAML config file and returns the parsed configuration.
// Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Server.Mode {
	case ModeHTTP, ModeStdio:
		return nil
	}
	return fmt.Errorf("unknown server mode %q", c.Server.Mode)
}
