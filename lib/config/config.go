// Copyright 2026 The Primordial Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Primordial components.
//
// Configuration is loaded from a single file specified by:
//   - PRIMORDIAL_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures deterministic,
// auditable configuration with no hidden overrides.
//
// The config file carries only non-security-relevant operational
// parameters — timeouts, log level, and the vault directory path. It never
// configures anything security-relevant: the known-provider table, the
// protected environment-variable set, and response header allowlists are
// all compiled in (see lib/provider), not loaded from a file that an
// operator or a compromised deployment pipeline could widen.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel is the package-wide logging verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config is the master operational configuration for Primordial.
type Config struct {
	// VaultDir is the directory containing the vault file and its
	// per-install secret. Default: ~/.local/state/primordial/vault.
	VaultDir string `yaml:"vault_dir"`

	// LogLevel sets the minimum severity logged by every component.
	// Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// Timeouts configures blocking-operation deadlines; each field's
	// comment says which component reads it.
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig configures the operational deadlines used across the
// module. All fields accept Go duration strings ("30s", "2m").
type TimeoutsConfig struct {
	// VMBoot bounds how long the orchestrator waits for a VMProvider to
	// report the sandbox as running. Default: 120s.
	VMBoot string `yaml:"vm_boot"`

	// ProxyReady bounds how long the orchestrator waits for the
	// in-sandbox proxy's readiness marker on stderr. Default: 10s.
	ProxyReady string `yaml:"proxy_ready"`

	// RequestIdle is parsed and validated but not read by any
	// component: the proxy's per-request read/write deadline is a fixed
	// 60s and is not taken from this field. Default: 60s.
	RequestIdle string `yaml:"request_idle"`

	// Shutdown bounds graceful session teardown before the orchestrator
	// force-terminates the sandbox. Default: 15s.
	Shutdown string `yaml:"shutdown"`
}

// Default returns the default configuration. These defaults are used as
// a base before loading the config file; they exist to give every field
// a sensible zero-value, not as a substitute for the config file.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultVaultDir := filepath.Join(homeDir, ".local", "state", "primordial", "vault")

	return &Config{
		VaultDir: defaultVaultDir,
		LogLevel: LogLevelInfo,
		Timeouts: TimeoutsConfig{
			VMBoot:      "120s",
			ProxyReady:  "10s",
			RequestIdle: "60s",
			Shutdown:    "15s",
		},
	}
}

// Load loads configuration from the PRIMORDIAL_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults — if PRIMORDIAL_CONFIG is not set,
// this fails. This ensures deterministic, auditable configuration with
// no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("PRIMORDIAL_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("PRIMORDIAL_CONFIG environment variable not set; " +
			"set it to the path of your primordial.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values — this ensures deterministic, auditable
// configuration. The only expansion performed is ${HOME} and similar
// path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.VaultDir = expandVars(c.VaultDir, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors, joining every problem
// found rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []error

	if c.VaultDir == "" {
		errs = append(errs, fmt.Errorf("vault_dir is required"))
	}

	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		errs = append(errs, fmt.Errorf("log_level must be one of debug/info/warn/error, got %q", c.LogLevel))
	}

	if _, err := c.VMBootTimeout(); err != nil {
		errs = append(errs, fmt.Errorf("timeouts.vm_boot: %w", err))
	}
	if _, err := c.ProxyReadyTimeout(); err != nil {
		errs = append(errs, fmt.Errorf("timeouts.proxy_ready: %w", err))
	}
	if _, err := c.RequestIdleTimeout(); err != nil {
		errs = append(errs, fmt.Errorf("timeouts.request_idle: %w", err))
	}
	if _, err := c.ShutdownTimeout(); err != nil {
		errs = append(errs, fmt.Errorf("timeouts.shutdown: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// VMBootTimeout parses Timeouts.VMBoot.
func (c *Config) VMBootTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Timeouts.VMBoot)
}

// ProxyReadyTimeout parses Timeouts.ProxyReady.
func (c *Config) ProxyReadyTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Timeouts.ProxyReady)
}

// RequestIdleTimeout parses Timeouts.RequestIdle.
func (c *Config) RequestIdleTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Timeouts.RequestIdle)
}

// ShutdownTimeout parses Timeouts.Shutdown.
func (c *Config) ShutdownTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Timeouts.Shutdown)
}

// EnsureVaultDir creates the vault directory (mode 0700) if it doesn't
// exist.
func (c *Config) EnsureVaultDir() error {
	if err := os.MkdirAll(c.VaultDir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", c.VaultDir, err)
	}
	return nil
}
