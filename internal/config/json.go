package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/tracehq/tracesync/internal/flagx"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations are
// given in seconds.
type JsonConfig struct {
	DatabasePath       string `json:"database_path"`
	AttachmentDir      string `json:"attachment_dir"`
	TokenPath          string `json:"token_path"`
	RemoteDSN          string `json:"remote_dsn"`
	NotifyChannel      string `json:"notify_channel"`
	S3Region           string `json:"s3_region"`
	S3Bucket           string `json:"s3_bucket"`
	S3Endpoint         string `json:"s3_endpoint"`
	OnlineCheckAddr    string `json:"online_check_addr"`
	DebounceWindowSec  int    `json:"debounce_window_sec"`
	MinSyncIntervalSec int    `json:"min_sync_interval_sec"`
}

// parseJson overlays cfg with values from the JSON file named by -c/-config.
// Missing flag means no JSON is loaded. Read or unmarshal errors panic; the
// composition root treats a broken explicit config file as fatal.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.AttachmentDir != "" {
		cfg.AttachmentDir = jc.AttachmentDir
	}
	if jc.TokenPath != "" {
		cfg.TokenPath = jc.TokenPath
	}
	if jc.RemoteDSN != "" {
		cfg.RemoteDSN = jc.RemoteDSN
	}
	if jc.NotifyChannel != "" {
		cfg.NotifyChannel = jc.NotifyChannel
	}
	if jc.S3Region != "" {
		cfg.S3Region = jc.S3Region
	}
	if jc.S3Bucket != "" {
		cfg.S3Bucket = jc.S3Bucket
	}
	if jc.S3Endpoint != "" {
		cfg.S3Endpoint = jc.S3Endpoint
	}
	if jc.OnlineCheckAddr != "" {
		cfg.OnlineCheckAddr = jc.OnlineCheckAddr
	}
	if jc.DebounceWindowSec > 0 {
		cfg.DebounceWindow = time.Duration(jc.DebounceWindowSec) * time.Second
	}
	if jc.MinSyncIntervalSec > 0 {
		cfg.MinSyncInterval = time.Duration(jc.MinSyncIntervalSec) * time.Second
	}
}
