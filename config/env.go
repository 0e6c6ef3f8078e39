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
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR} or ${VAR:default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} or ${VAR:default} with environment
// variable values.
func SubstituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}
		value := os.Getenv(varName)
		if value == "" {
			return defaultValue
		}
		return value
	})
}

// SubstituteEnvVarsInConfig substitutes environment variables in
// Relay.Endpoint, the Logging Level, Format, Output and FilePath fields,
// Metrics.Path and Health.Path; other fields are left as they are.
func SubstituteEnvVarsInConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Relay.Endpoint = SubstituteEnvVars(cfg.Relay.Endpoint)
	cfg.Logging.Level = SubstituteEnvVars(cfg.Logging.Level)
	cfg.Logging.Format = SubstituteEnvVars(cfg.Logging.Format)
	cfg.Logging.Output = SubstituteEnvVars(cfg.Logging.Output)
	cfg.Logging.FilePath = SubstituteEnvVars(cfg.Logging.FilePath)
	cfg.Metrics.Path = SubstituteEnvVars(cfg.Metrics.Path)
	cfg.Health.Path = SubstituteEnvVars(cfg.Health.Path)
}

// GetEnvironment returns the current environment from XMTP_ENV or ENVIRONMENT,
// defaulting to "development".
func GetEnvironment() string {
	env := os.Getenv("XMTP_ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		env = "development"
	}
	return strings.ToLower(env)
}

// IsProduction returns true if running in the production environment.
func IsProduction() bool {
	return GetEnvironment() == "production"
}

// IsDevelopment returns true if running in development or local environment.
func IsDevelopment() bool {
	env := GetEnvironment()
	return env == "development" || env == "local"
}

// ValidationError describes one configuration validation finding.
type ValidationError struct {
	Field   string
	Message string
	Level   string // "error" or "warning"
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validCompressionKinds = map[string]bool{"none": true, "deflate": true, "gzip": true}

// ValidateConfiguration checks cfg for inconsistencies. Only "error"-level
// findings block Load; "warning"-level findings are informational.
func ValidateConfiguration(cfg *Config) []ValidationError {
	var issues []ValidationError

	if cfg.Relay.Endpoint == "" {
		issues = append(issues, ValidationError{Field: "relay.endpoint", Message: "must not be empty", Level: "error"})
	}
	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		issues = append(issues, ValidationError{Field: "logging.level", Message: "unrecognized level, defaulting to info", Level: "warning"})
	}
	if !validCompressionKinds[strings.ToLower(cfg.Session.DefaultCompression)] {
		issues = append(issues, ValidationError{Field: "session.default_compression", Message: "unrecognized compression kind", Level: "error"})
	}
	return issues
}
