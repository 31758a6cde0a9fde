// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lattice-foundation/lattice/subject"
)

// Config is the read-only surface a host consumes at process start.
// It can be loaded from a YAML file or handed over on stdin as a
// base64-encoded JSON bootstrap record.
type Config struct {
	// LatticeID names the lattice this host joins.
	LatticeID string `yaml:"lattice_id" json:"lattice_id"`
	// SubjectPrefix overrides the default subject prefix.
	SubjectPrefix string `yaml:"subject_prefix,omitempty" json:"subject_prefix,omitempty"`

	// BusURL is the bus connection address.
	BusURL string `yaml:"bus_url" json:"bus_url"`
	// BusCredentials is an optional credentials file path.
	BusCredentials string `yaml:"bus_credentials,omitempty" json:"bus_credentials,omitempty"`

	// HostID is this process's entity id.
	HostID string `yaml:"host_id" json:"host_id"`
	// Labels are matched against auction constraints.
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`

	// RPCTimeout is the default timeout for outbound calls, in Go
	// duration format ("2s", "500ms"). Defaults to 2s.
	RPCTimeout string `yaml:"rpc_timeout,omitempty" json:"rpc_timeout,omitempty"`
	// HealthInterval is the dependency probe period. Defaults to 30s.
	HealthInterval string `yaml:"health_interval,omitempty" json:"health_interval,omitempty"`
	// HeartbeatInterval is the host heartbeat event period. Defaults
	// to 30s.
	HeartbeatInterval string `yaml:"heartbeat_interval,omitempty" json:"heartbeat_interval,omitempty"`

	// StructuredLogging selects JSON log output instead of text.
	StructuredLogging bool `yaml:"structured_logging,omitempty" json:"structured_logging,omitempty"`
	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level,omitempty" json:"log_level,omitempty"`

	rpcTimeout        time.Duration
	healthInterval    time.Duration
	heartbeatInterval time.Duration
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("host: reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("host: parsing config: %w", err)
	}
	return cfg, cfg.validate()
}

// ReadBootstrap decodes a base64-encoded JSON bootstrap record, the
// form a supervising process hands over on stdin.
func ReadBootstrap(r io.Reader) (Config, error) {
	raw, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return Config{}, fmt.Errorf("host: reading bootstrap record: %w", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(string(bytes.TrimSpace(raw)))
	if err != nil {
		return Config{}, fmt.Errorf("host: decoding bootstrap record: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(decoded, &cfg); err != nil {
		return Config{}, fmt.Errorf("host: parsing bootstrap record: %w", err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.LatticeID == "" {
		return fmt.Errorf("host: config missing lattice_id")
	}
	if c.HostID == "" {
		return fmt.Errorf("host: config missing host_id")
	}
	if c.BusURL == "" {
		return fmt.Errorf("host: config missing bus_url")
	}
	for name, field := range map[string]string{
		"rpc_timeout":        c.RPCTimeout,
		"health_interval":    c.HealthInterval,
		"heartbeat_interval": c.HeartbeatInterval,
	} {
		if field == "" {
			continue
		}
		if _, err := time.ParseDuration(field); err != nil {
			return fmt.Errorf("host: config %s: %w", name, err)
		}
	}
	c.applyDefaults()
	return nil
}

func (c *Config) applyDefaults() {
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = subject.DefaultPrefix
	}
	c.rpcTimeout = durationOr(c.RPCTimeout, 2*time.Second)
	c.healthInterval = durationOr(c.HealthInterval, 30*time.Second)
	c.heartbeatInterval = durationOr(c.HeartbeatInterval, 30*time.Second)
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// durationOr parses s, falling back to def when s is empty or
// malformed. Malformed values are caught earlier by validate for
// configs that arrive from files; hand-assembled configs simply get
// the default.
func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	parsed, err := time.ParseDuration(s)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
