// Package config assembles runtime settings for the uploader. Sources are
// applied in order — defaults, JSON file, environment (.env aware), flags —
// with later sources taking precedence.
package config

import "time"

// Config holds every tunable the components take at construction.
//
// The anti-abuse values (rate ceiling, lockdown durations, pacing bounds)
// default conservatively: the platform's true limits are unknown, so the
// local ceiling has to sit well below any plausible real one.
type Config struct {
	// Transport.
	BaseURL             string
	ConnectivityTimeout time.Duration
	StabilizationWindow time.Duration

	// Client identity presented to the platform.
	AppID         string
	AppVersion    string
	UserAgent     string
	Locale        string
	SigKey        string
	SigKeyVersion string

	// Local store.
	DataDir string

	// Abuse guard.
	RateCeilingPerHour int
	BackoffCap         time.Duration
	LockdownShort      time.Duration
	LockdownLong       time.Duration
	LockdownVeryLong   time.Duration

	// Orchestration pacing.
	TargetUploadBytes int
	MinItemDelay      time.Duration
	MaxItemDelay      time.Duration
	MaxAutoRetries    int
	EscalatedPause    time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BaseURL = "https://i.instagram.com/api/v1"
	c.ConnectivityTimeout = 30 * time.Second
	c.StabilizationWindow = 4 * time.Second

	c.AppID = "567067343352427"
	c.AppVersion = "269.0.0.18.75"
	c.UserAgent = "Instagram 269.0.0.18.75 Android (33/13; 420dpi; 1080x2219; Google/google; Pixel 6; oriole; oriole; en_US)"
	c.Locale = "en_US"
	c.SigKey = "9193488027538fd3450b83b7d05286d4ca9599a0f7eeed90d8c85925698a05dc"
	c.SigKeyVersion = "4"

	c.DataDir = "data"

	c.RateCeilingPerHour = 60
	c.BackoffCap = 5 * time.Minute
	c.LockdownShort = 15 * time.Minute
	c.LockdownLong = 6 * time.Hour
	c.LockdownVeryLong = 24 * time.Hour

	c.TargetUploadBytes = 480 * 1024
	c.MinItemDelay = 25 * time.Second
	c.MaxItemDelay = 90 * time.Second
	c.MaxAutoRetries = 3
	c.EscalatedPause = 10 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), environment, and command-line flags. Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
