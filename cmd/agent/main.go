package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/plantops/site-sync-service/internal/app/edge/dispatcher"
	"github.com/plantops/site-sync-service/internal/app/edge/outbox"
	"github.com/plantops/site-sync-service/internal/config"
	"github.com/plantops/site-sync-service/internal/notify"
	"github.com/plantops/site-sync-service/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Edge.SiteCode == "" {
		log.Fatal("PLANT_SITE_CODE is required")
	}

	lg, err := logger.New(cfg.App.Env, cfg.App.LogLevel, "agent")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM.
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		lg.Info().Msg("shutdown signal received")
		cancel()
	}()

	store, err := outbox.Open(cfg.Edge.OutboxDBPath)
	if err != nil {
		lg.Fatal().Err(err).Msg("open outbox")
	}
	defer store.Close()

	var alerts dispatcher.AlertSender
	if mailer := notify.NewMailer(cfg.Alert, lg); mailer != nil {
		alerts = mailer
	}

	d := dispatcher.New(
		store,
		cfg.Edge.ReceiverURL,
		cfg.Edge.SiteCode,
		cfg.Keyring(),
		cfg.Edge.BatchSize,
		cfg.Edge.DispatchInterval,
		cfg.Edge.HTTPTimeout,
		alerts,
		lg,
	)

	lg.Info().
		Str("site", cfg.Edge.SiteCode).
		Str("receiver", cfg.Edge.ReceiverURL).
		Dur("interval", cfg.Edge.DispatchInterval).
		Msg("agent started")

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		lg.Fatal().Err(err).Msg("dispatcher stopped")
	}
	lg.Info().Msg("agent stopped")
}
