package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/spanner"

	"github.com/plantops/site-sync-service/internal/app/hq/apply"
	"github.com/plantops/site-sync-service/internal/app/hq/contracts"
	"github.com/plantops/site-sync-service/internal/app/hq/repo"
	"github.com/plantops/site-sync-service/internal/config"
	"github.com/plantops/site-sync-service/internal/notify"
	"github.com/plantops/site-sync-service/internal/pkg/clock"
	"github.com/plantops/site-sync-service/internal/pkg/logger"
	"github.com/plantops/site-sync-service/internal/transport/httpapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.HQ.SpannerDatabase == "" {
		log.Fatal("SPANNER_DATABASE is required")
	}

	lg, err := logger.New(cfg.App.Env, cfg.App.LogLevel, "receiver")
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

	client, err := spanner.NewClient(ctx, cfg.HQ.SpannerDatabase)
	if err != nil {
		lg.Fatal().Err(err).Msg("spanner client")
	}
	defer client.Close()

	// A nil *Mailer means alerting is disabled; keep the interface nil too.
	var notifier contracts.Notifier
	if mailer := notify.NewMailer(cfg.Alert, lg); mailer != nil {
		notifier = mailer
	}

	deadLetters := repo.NewDeadLetterRepo(client)
	pipeline := apply.NewPipeline(
		repo.NewLedgerRepo(client),
		repo.NewEntityRepo(client),
		deadLetters,
		notifier,
		clock.RealClock{},
		lg,
	)

	h := &httpapi.Handler{
		Processor:   pipeline,
		DeadLetters: deadLetters,
		Keyring:     cfg.Keyring(),
		Log:         lg,
	}
	app := h.Router()

	go func() {
		lg.Info().Str("addr", cfg.HQ.ListenAddr).Msg("receiver listening")
		if err := app.Listen(cfg.HQ.ListenAddr); err != nil {
			lg.Error().Err(err).Msg("listen")
			cancel()
		}
	}()

	<-ctx.Done()
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		lg.Error().Err(err).Msg("shutdown")
	}
	lg.Info().Msg("receiver stopped")
}
