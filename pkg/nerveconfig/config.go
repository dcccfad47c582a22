// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package nerveconfig loads the engine's server-level configuration:
// session defaults, history storage, and logging, from a YAML file with
// environment-variable overrides (NERVE_* taking precedence, matching
// the teacher's CONDUCTOR_*/LOG_* convention).
package nerveconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	nerverrors "github.com/nerved/nerved/pkg/errors"
	"github.com/nerved/nerved/pkg/log"
	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Version int `yaml:"version,omitempty"`

	Log     log.Config    `yaml:"log"`
	Session SessionConfig `yaml:"session"`
}

// SessionConfig configures the default session and history defaults
// every created session inherits unless overridden per-call.
type SessionConfig struct {
	DefaultSessionID string `yaml:"default_session_id"`
	ServerName       string `yaml:"server_name"`
	HistoryEnabled   bool   `yaml:"history_enabled"`
	HistoryBaseDir   string `yaml:"history_base_dir,omitempty"`
}

// Default returns the engine's baked-in defaults.
func Default() *Config {
	return &Config{
		Version: 1,
		Log: log.Config{
			Level:  "info",
			Format: "text",
		},
		Session: SessionConfig{
			DefaultSessionID: "default",
			ServerName:       "nerved",
			HistoryEnabled:   true,
			HistoryBaseDir:   defaultHistoryDir(),
		},
	}
}

// defaultHistoryDir follows XDG_DATA_HOME when set, else ~/.local/share,
// matching the teacher's defaultDataDir convention.
func defaultHistoryDir() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "nerved", "history")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nerve/history"
	}
	return filepath.Join(home, ".local", "share", "nerved", "history")
}

// Load loads configuration from environment variables and, optionally,
// a YAML file. Environment variables take precedence over file-based
// configuration. An empty configPath loads only defaults and env.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &nerverrors.ConfigError{Key: "config_file", Reason: fmt.Sprintf("failed to load from %s", configPath), Cause: err}
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &nerverrors.ConfigError{Key: "validation", Reason: "configuration validation failed", Cause: err}
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// loadFromEnv applies NERVE_* overrides, matching the teacher's
// loadFromEnv shape. Unset or empty variables leave the value alone;
// a boolean variable is true only for "1" or "true" (any case), and any
// other non-empty value sets it to false rather than failing.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("NERVE_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("NERVE_LOG_FORMAT"); v != "" {
		c.Log.Format = log.Format(strings.ToLower(v))
	}
	if v := os.Getenv("NERVE_LOG_SOURCE"); v != "" {
		c.Log.AddSource = v == "1" || strings.ToLower(v) == "true"
	}
	if v := os.Getenv("NERVE_SESSION_ID"); v != "" {
		c.Session.DefaultSessionID = v
	}
	if v := os.Getenv("NERVE_SERVER_NAME"); v != "" {
		c.Session.ServerName = v
	}
	if v := os.Getenv("NERVE_HISTORY_ENABLED"); v != "" {
		c.Session.HistoryEnabled = v == "1" || strings.ToLower(v) == "true"
	}
	if v := os.Getenv("NERVE_HISTORY_DIR"); v != "" {
		c.Session.HistoryBaseDir = v
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []string
	if c.Session.DefaultSessionID == "" {
		errs = append(errs, "session.default_session_id must not be empty")
	}
	if c.Session.ServerName == "" {
		errs = append(errs, "session.server_name must not be empty")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be json or text", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
