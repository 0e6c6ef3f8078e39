// Package config provides configuration management for the messaging core.
package config

import "time"

// Config is the top-level configuration for a client process: which relay
// to dial, which content codecs to register by default, and how to log.
type Config struct {
	Environment string         `yaml:"environment" json:"environment"`
	Relay       RelayConfig    `yaml:"relay" json:"relay"`
	Session     SessionConfig  `yaml:"session" json:"session"`
	Codecs      CodecConfig    `yaml:"codecs" json:"codecs"`
	Logging     LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig  `yaml:"metrics" json:"metrics"`
	Health      HealthConfig   `yaml:"health" json:"health"`
}

// RelayConfig describes how to reach the pub/sub relay.
type RelayConfig struct {
	Endpoint      string        `yaml:"endpoint" json:"endpoint"`
	DialTimeout   time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// SessionConfig holds defaults applied to new conversations.
type SessionConfig struct {
	DefaultCompression string `yaml:"default_compression" json:"default_compression"` // none, deflate, gzip
	ShouldPush         bool   `yaml:"should_push" json:"should_push"`
}

// CodecConfig lists the content codecs registered at startup.
type CodecConfig struct {
	Enabled []string `yaml:"enabled" json:"enabled"` // e.g. ["xmtp.org/text:1.0"]
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`       // debug, info, warn, error
	Format   string `yaml:"format" json:"format"`     // json, text
	Output   string `yaml:"output" json:"output"`     // stdout, stderr, file path
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig controls a liveness/readiness endpoint.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}
