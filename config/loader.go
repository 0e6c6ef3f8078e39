// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoaderOptions configures the configuration loader.
type LoaderOptions struct {
	// ConfigDir is the directory containing config files (default: ./config)
	ConfigDir string
	// Environment overrides automatic environment detection
	Environment string
	// SkipEnvSubstitution disables environment variable substitution
	SkipEnvSubstitution bool
	// SkipValidation disables configuration validation
	SkipValidation bool
}

// DefaultLoaderOptions returns default loader options.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		ConfigDir:           "config",
		Environment:         "",
		SkipEnvSubstitution: false,
		SkipValidation:      false,
	}
}

// Load loads configuration with automatic environment detection, trying
// <env>.yaml, then default.yaml, then config.yaml under ConfigDir, falling
// back to built-in defaults if none exist.
func Load(opts ...LoaderOptions) (*Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	env := options.Environment
	if env == "" {
		env = GetEnvironment()
	}

	// .env files are optional; absence is not an error. godotenv.Load never
	// overrides a variable that is already set, so the environment-specific
	// file is loaded first and overrides the generic one.
	_ = godotenv.Load(".env." + env)
	_ = godotenv.Load()

	envConfigPath := filepath.Join(options.ConfigDir, fmt.Sprintf("%s.yaml", env))
	cfg, err := loadConfigFile(envConfigPath)
	if err != nil {
		defaultConfigPath := filepath.Join(options.ConfigDir, "default.yaml")
		cfg, err = loadConfigFile(defaultConfigPath)
		if err != nil {
			configPath := filepath.Join(options.ConfigDir, "config.yaml")
			cfg, err = loadConfigFile(configPath)
			if err != nil {
				cfg = &Config{}
			}
		}
	}

	if cfg.Environment == "" {
		cfg.Environment = env
	}

	setDefaults(cfg)

	if !options.SkipEnvSubstitution {
		SubstituteEnvVarsInConfig(cfg)
	}

	applyEnvironmentOverrides(cfg)

	if !options.SkipValidation {
		issues := ValidateConfiguration(cfg)
		for _, issue := range issues {
			if issue.Level == "error" {
				return nil, fmt.Errorf("configuration validation failed: %s - %s", issue.Field, issue.Message)
			}
		}
	}

	return cfg, nil
}

// loadConfigFile loads a single YAML config file.
func loadConfigFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return LoadFromFile(path)
}

// LoadFromFile parses a single YAML config file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// setDefaults fills in zero-valued fields with sane defaults.
func setDefaults(cfg *Config) {
	if cfg.Relay.Endpoint == "" {
		cfg.Relay.Endpoint = "ws://localhost:8080/ws"
	}
	if cfg.Relay.DialTimeout == 0 {
		cfg.Relay.DialTimeout = 10 * time.Second
	}
	if cfg.Relay.WriteTimeout == 0 {
		cfg.Relay.WriteTimeout = 10 * time.Second
	}
	if cfg.Session.DefaultCompression == "" {
		cfg.Session.DefaultCompression = "none"
	}
	if len(cfg.Codecs.Enabled) == 0 {
		cfg.Codecs.Enabled = []string{"xmtp.org/text:1.0"}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Health.Path == "" {
		cfg.Health.Path = "/healthz"
	}
}

// applyEnvironmentOverrides overrides config with environment variables,
// the highest-priority source.
func applyEnvironmentOverrides(cfg *Config) {
	if endpoint := os.Getenv("XMTP_RELAY_ENDPOINT"); endpoint != "" {
		cfg.Relay.Endpoint = endpoint
	}
	if logLevel := os.Getenv("XMTP_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("XMTP_LOG_FORMAT"); logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if os.Getenv("XMTP_METRICS_ENABLED") == "true" {
		cfg.Metrics.Enabled = true
	}
	if os.Getenv("XMTP_METRICS_ENABLED") == "false" {
		cfg.Metrics.Enabled = false
	}
}

// LoadForEnvironment loads configuration for a specific environment.
func LoadForEnvironment(environment string) (*Config, error) {
	return Load(LoaderOptions{
		ConfigDir:   "config",
		Environment: environment,
	})
}

// MustLoad loads configuration or panics on error.
func MustLoad(opts ...LoaderOptions) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
