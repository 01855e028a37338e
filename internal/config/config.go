// Package config loads runtime settings for the sync client. Values are
// layered: defaults, then a JSON file (if -c/-config points at one), then
// command-line flags, then environment variables for secrets. Later sources
// take precedence.
package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the TraceSync client.
type Config struct {
	// DatabasePath is the SQLite file holding the local store.
	DatabasePath string

	// AttachmentDir is the directory holding local attachment binaries.
	AttachmentDir string

	// TokenPath is the file holding the current access token.
	TokenPath string

	// TokenSecret optionally verifies the token signature (HS256). When
	// empty, claims are read without verification; the backend re-verifies
	// every call anyway.
	TokenSecret string

	// RemoteDSN is the connection string of the remote relational backend.
	RemoteDSN string

	// NotifyChannel is the realtime notification channel name.
	NotifyChannel string

	// Blob storage settings (S3-compatible).
	S3Region    string
	S3Bucket    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	// OnlineCheckAddr is probed before every sync run.
	OnlineCheckAddr    string
	OnlineCheckTimeout time.Duration

	// DebounceWindow is how long the change listener waits after the last
	// remote notification before triggering a sync.
	DebounceWindow time.Duration

	// MinSyncInterval throttles the coarse app-foreground trigger.
	MinSyncInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "trace.db"
	c.AttachmentDir = "attachments"
	c.TokenPath = ".trace-token"
	c.NotifyChannel = "record_changes"
	c.S3Region = "us-east-1"
	c.S3Bucket = "trace-attachments"
	c.OnlineCheckTimeout = 3 * time.Second
	c.DebounceWindow = 2 * time.Second
	c.MinSyncInterval = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON, flags and environment, in that order.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	parseEnv(cfg)
	return cfg
}

// parseEnv overlays secrets and connection settings from the environment.
func parseEnv(cfg *Config) {
	if v := os.Getenv("TRACE_REMOTE_DSN"); v != "" {
		cfg.RemoteDSN = v
	}
	if v := os.Getenv("TRACE_TOKEN_SECRET"); v != "" {
		cfg.TokenSecret = v
	}
	if v := os.Getenv("TRACE_S3_ACCESS_KEY"); v != "" {
		cfg.S3AccessKey = v
	}
	if v := os.Getenv("TRACE_S3_SECRET_KEY"); v != "" {
		cfg.S3SecretKey = v
	}
	if v := os.Getenv("TRACE_S3_ENDPOINT"); v != "" {
		cfg.S3Endpoint = v
	}
}
