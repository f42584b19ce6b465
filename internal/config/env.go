package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// parseEnv overlays cfg from the environment. A .env file in the working
// directory is folded in first (real environment wins over the file, which
// is godotenv's default).
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("PHANTOMPOST_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("PHANTOMPOST_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PHANTOMPOST_SIG_KEY"); v != "" {
		cfg.SigKey = v
	}
	if v := os.Getenv("PHANTOMPOST_RATE_CEILING"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateCeilingPerHour = n
		}
	}
}
