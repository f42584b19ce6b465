package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dsokolov-dev/phantompost/internal/api"
	"github.com/dsokolov-dev/phantompost/internal/cli"
	"github.com/dsokolov-dev/phantompost/internal/codec"
	"github.com/dsokolov-dev/phantompost/internal/config"
	"github.com/dsokolov-dev/phantompost/internal/device"
	"github.com/dsokolov-dev/phantompost/internal/guard"
	"github.com/dsokolov-dev/phantompost/internal/logging"
	"github.com/dsokolov-dev/phantompost/internal/netmon"
	"github.com/dsokolov-dev/phantompost/internal/orchestrator"
	"github.com/dsokolov-dev/phantompost/internal/repositories"
	"github.com/dsokolov-dev/phantompost/internal/services"
	"github.com/dsokolov-dev/phantompost/internal/signer"
	"github.com/dsokolov-dev/phantompost/internal/vault"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(ctx, cfg, logger); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return err
	}

	repos, err := repositories.InitDatabase(ctx, filepath.Join(cfg.DataDir, "phantompost.db"))
	if err != nil {
		return err
	}
	defer repos.Close()

	dev, err := device.Load(ctx, repos.Metadata)
	if err != nil {
		return err
	}

	holder := &services.SessionHolder{}
	sg := signer.New(signer.Options{
		AppID:         cfg.AppID,
		AppVersion:    cfg.AppVersion,
		UserAgent:     cfg.UserAgent,
		Locale:        cfg.Locale,
		SigKey:        cfg.SigKey,
		SigKeyVersion: cfg.SigKeyVersion,
	}, dev, holder.Current, signer.NewDriftingTelemetry())

	mids := services.NewMachineIDKeeper(repos.Metadata)
	if mid, err := mids.LoadMachineID(ctx); err == nil && mid != "" {
		sg.SetMachineID(mid)
	}

	g := guard.New(guard.Options{
		Ceiling:    cfg.RateCeilingPerHour,
		BackoffCap: cfg.BackoffCap,
		Durations: guard.Durations{
			Short:    cfg.LockdownShort,
			Long:     cfg.LockdownLong,
			VeryLong: cfg.LockdownVeryLong,
		},
	})

	monitor := netmon.New(cfg.StabilizationWindow)
	go netmon.NewDialProber(monitor, proberAddr(cfg.BaseURL), 15*time.Second).Run(ctx)

	apiClient := api.New(api.Options{
		BaseURL:             cfg.BaseURL,
		ConnectivityTimeout: cfg.ConnectivityTimeout,
	}, nil, sg, g, monitor, mids, logger)

	// the vault passphrase is local key material tied to this install; it
	// keeps the session ciphertext useless on another machine
	v := vault.New(repos.Metadata, []byte(dev.DeviceID+dev.ClientInstallID))

	auth := services.NewAuthService(apiClient, v, holder, sg, g, mids, logger)

	orch := orchestrator.New(orchestrator.Options{
		MinItemDelay:   cfg.MinItemDelay,
		MaxItemDelay:   cfg.MaxItemDelay,
		TargetBytes:    cfg.TargetUploadBytes,
		MaxAutoRetries: cfg.MaxAutoRetries,
		EscalatedPause: cfg.EscalatedPause,
	}, apiClient, repos.Items, codec.New(codec.Options{}), g, monitor,
		services.NewBatchTracker(repos.Metadata), logger)

	// a batch interrupted by the previous process run parks in paused here
	if err := orch.Recover(ctx); err != nil {
		logger.Warn(ctx, "recovering interrupted batch failed", "error", err)
	}

	app := cli.NewApp(cfg, auth, orch, repos.Items)
	app.Root(ctx)
	return nil
}

// proberAddr derives the connectivity-probe endpoint from the API base URL.
func proberAddr(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "1.1.1.1:443"
	}
	host := u.Host
	if u.Port() == "" {
		host += ":443"
	}
	return host
}
