package config

import (
	"flag"
	"os"

	"github.com/dsokolov-dev/phantompost/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-b string   base URL of the platform API
//	-d string   data directory for the local store
//	-r int      rate ceiling (actions per trailing hour)
//
// Args are filtered via flagx.FilterArgs so the config-file flags handled
// elsewhere don't interfere.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-b", "-d", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.BaseURL, "b", cfg.BaseURL, "base URL of the platform API")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.IntVar(&cfg.RateCeilingPerHour, "r", cfg.RateCeilingPerHour, "actions per trailing hour")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
