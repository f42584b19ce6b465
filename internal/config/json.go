package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dsokolov-dev/phantompost/internal/flagx"
	"github.com/dsokolov-dev/phantompost/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations use
// timex.Duration so the file can spell them as "45s" or raw nanoseconds.
// Zero values mean "not set" and leave the runtime Config untouched.
type JsonConfig struct {
	BaseURL             string         `json:"base_url"`
	ConnectivityTimeout timex.Duration `json:"connectivity_timeout"`
	StabilizationWindow timex.Duration `json:"stabilization_window"`
	DataDir             string         `json:"data_dir"`
	RateCeilingPerHour  int            `json:"rate_ceiling_per_hour"`
	BackoffCap          timex.Duration `json:"backoff_cap"`
	TargetUploadBytes   int            `json:"target_upload_bytes"`
	MinItemDelay        timex.Duration `json:"min_item_delay"`
	MaxItemDelay        timex.Duration `json:"max_item_delay"`
	MaxAutoRetries      int            `json:"max_auto_retries"`
}

// parseJson overlays cfg with values from the file named by -c/-config.
// No flag, no overlay. Read or decode failures panic; the caller treats a
// present-but-broken config file as unrecoverable.
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

	if jc.BaseURL != "" {
		cfg.BaseURL = jc.BaseURL
	}
	if jc.ConnectivityTimeout.Duration != 0 {
		cfg.ConnectivityTimeout = time.Duration(jc.ConnectivityTimeout.Duration)
	}
	if jc.StabilizationWindow.Duration != 0 {
		cfg.StabilizationWindow = time.Duration(jc.StabilizationWindow.Duration)
	}
	if jc.DataDir != "" {
		cfg.DataDir = jc.DataDir
	}
	if jc.RateCeilingPerHour != 0 {
		cfg.RateCeilingPerHour = jc.RateCeilingPerHour
	}
	if jc.BackoffCap.Duration != 0 {
		cfg.BackoffCap = time.Duration(jc.BackoffCap.Duration)
	}
	if jc.TargetUploadBytes != 0 {
		cfg.TargetUploadBytes = jc.TargetUploadBytes
	}
	if jc.MinItemDelay.Duration != 0 {
		cfg.MinItemDelay = time.Duration(jc.MinItemDelay.Duration)
	}
	if jc.MaxItemDelay.Duration != 0 {
		cfg.MaxItemDelay = time.Duration(jc.MaxItemDelay.Duration)
	}
	if jc.MaxAutoRetries != 0 {
		cfg.MaxAutoRetries = jc.MaxAutoRetries
	}
}
