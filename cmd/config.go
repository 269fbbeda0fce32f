// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Voltlab

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk rkctl configuration. Every field is optional;
// command-line flags override anything set here.
type Config struct {
	Device      string `yaml:"device,omitempty"`
	Baud        int    `yaml:"baud,omitempty"`
	Username    string `yaml:"username,omitempty"`
	NoSSLVerify bool   `yaml:"no_ssl_verify,omitempty"`

	// Durations are strings like "2s" or "500ms".
	PollInterval string `yaml:"poll_interval,omitempty"`
	Timeout      string `yaml:"timeout,omitempty"`
	Retries      int    `yaml:"retries,omitempty"`
	QueuePolicy  string `yaml:"queue_policy,omitempty"`

	// ConnectionEnabled is the persisted connection switch. Absent
	// means enabled; `rkctl set connection off` writes it false.
	ConnectionEnabled *bool `yaml:"connection_enabled,omitempty"`
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "rkctl.yaml"
	}
	return filepath.Join(dir, "rkctl", "config.yaml")
}

// loadConfigFile reads the config at path. A missing file is not an
// error, it yields an empty config.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// save writes the config back to path, creating parent directories as
// needed.
func (c *Config) save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyConfig loads the config file and folds it into the flag
// variables. A flag the user set explicitly always wins over the file.
func applyConfig() error {
	cfg, err := loadConfigFile(configPath)
	if err != nil {
		return err
	}
	appConfig = cfg

	pf := rootCmd.PersistentFlags()
	if !pf.Changed("device") && cfg.Device != "" {
		deviceString = cfg.Device
	}
	if !pf.Changed("baud") && cfg.Baud > 0 {
		baudRate = cfg.Baud
	}
	if !pf.Changed("username") && cfg.Username != "" {
		wsUsername = cfg.Username
	}
	if !pf.Changed("no-ssl-verify") && cfg.NoSSLVerify {
		wsNoSSLVerify = true
	}
	if !pf.Changed("retries") && cfg.Retries > 0 {
		reqRetries = cfg.Retries
	}
	if !pf.Changed("queue-policy") && cfg.QueuePolicy != "" {
		queuePolicy = cfg.QueuePolicy
	}
	if !pf.Changed("timeout") && cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		reqTimeout = d
	}
	return nil
}

// configPollInterval returns the configured poll_interval, or def when
// unset or unparseable.
func configPollInterval(def time.Duration) time.Duration {
	if appConfig == nil || appConfig.PollInterval == "" {
		return def
	}
	d, err := time.ParseDuration(appConfig.PollInterval)
	if err != nil || d <= 0 {
		logger.Warn("ignoring bad poll_interval in config", "value", appConfig.PollInterval)
		return def
	}
	return d
}

// fileFlagStore persists the connection switch in the YAML config so
// `rkctl set connection off` outlives the process. Each access
// re-reads the file: another rkctl invocation may have flipped it.
type fileFlagStore struct {
	path string
	mu   sync.Mutex
}

func newFlagStore() *fileFlagStore {
	return &fileFlagStore{path: configPath}
}

func (s *fileFlagStore) ConnectionEnabled() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := loadConfigFile(s.path)
	if err != nil {
		return true, err
	}
	if cfg.ConnectionEnabled == nil {
		return true, nil
	}
	return *cfg.ConnectionEnabled, nil
}

func (s *fileFlagStore) SetConnectionEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Read-modify-write keeps the other config fields intact.
	cfg, err := loadConfigFile(s.path)
	if err != nil {
		return err
	}
	cfg.ConnectionEnabled = &enabled
	return cfg.save(s.path)
}
