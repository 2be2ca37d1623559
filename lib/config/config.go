// Copyright 2026 The Skydda Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	// LogLevel sets the minimum severity that is logged: debug, info,
	// warn, or error.
	LogLevel string `yaml:"log_level"`

	// Control configures the daemon's control socket.
	Control ControlConfig `yaml:"control"`

	// Paths is the initial list of monitored paths. Every entry must
	// be absolute; the list may be empty and replaced at runtime over
	// the control socket.
	Paths []string `yaml:"paths"`
}

// ControlConfig configures the control socket.
type ControlConfig struct {
	// Endpoint is where the daemon listens: a named pipe path on
	// Windows (\\.\pipe\pathmon), a Unix socket path elsewhere.
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration. It exists to give every
// field a sensible zero-value before the file is loaded, not as a
// fallback: the config file is required.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Control:  ControlConfig{Endpoint: DefaultEndpoint()},
	}
}

// DefaultEndpoint returns the conventional control socket location for
// the current platform.
func DefaultEndpoint() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\pathmon`
	}
	return "/run/pathmon/control.sock"
}

// Load loads configuration from the PATHMON_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks and no automatic discovery: if PATHMON_CONFIG
// is not set, Load fails. This keeps configuration deterministic and
// auditable, with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("PATHMON_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("PATHMON_CONFIG environment variable not set; " +
			"set it to the path of your pathmon.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values; the only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Control.Endpoint = expandVars(c.Control.Endpoint, vars)
	for i, path := range c.Paths {
		c.Paths[i] = expandVars(path, vars)
	}
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

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Control.Endpoint == "" {
		errs = append(errs, fmt.Errorf("control.endpoint is required"))
	}
	for _, path := range c.Paths {
		if !isAbsolute(path) {
			errs = append(errs, fmt.Errorf("monitored path %q is not absolute", path))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ParseLevel maps a config log level string to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log_level must be one of debug, info, warn, error (got %q)", level)
}

// isAbsolute accepts the path shapes the monitor can anchor: rooted
// POSIX paths, drive-letter paths, and UNC paths. The check is
// syntactic so a config written on one platform validates on another.
func isAbsolute(path string) bool {
	if len(path) == 0 {
		return false
	}
	if path[0] == '/' {
		return true
	}
	if len(path) >= 3 && isDriveLetter(path[0]) && path[1] == ':' &&
		(path[2] == '\\' || path[2] == '/') {
		return true
	}
	if len(path) >= 2 && path[0] == '\\' && path[1] == '\\' {
		return true
	}
	return false
}

func isDriveLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}
