package main

import (
	"context"
	"flag"
	"log"
	"time"

	"cloud.google.com/go/spanner"

	"github.com/plantops/site-sync-service/internal/app/hq/repo"
	"github.com/plantops/site-sync-service/internal/app/hq/replay"
	"github.com/plantops/site-sync-service/internal/config"
	"github.com/plantops/site-sync-service/internal/pkg/clock"
	"github.com/plantops/site-sync-service/internal/pkg/logger"
)

// Operator tool: re-apply dead-lettered items after the underlying cause
// (usually a payload defect fixed upstream) has been addressed.
func main() {
	limit := flag.Int("limit", replay.DefaultLimit, "maximum entries to replay in one run")
	dryRun := flag.Bool("dry-run", false, "validate and stage without committing or mutating the dead-letter store")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.HQ.SpannerDatabase == "" {
		log.Fatal("SPANNER_DATABASE is required")
	}

	lg, err := logger.New(cfg.App.Env, cfg.App.LogLevel, "replay")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	client, err := spanner.NewClient(ctx, cfg.HQ.SpannerDatabase)
	if err != nil {
		lg.Fatal().Err(err).Msg("spanner client")
	}
	defer client.Close()

	r := &replay.Replayer{
		DeadLetters: repo.NewDeadLetterRepo(client),
		Store:       repo.NewEntityRepo(client),
		Clock:       clock.RealClock{},
		Log:         lg,
		Limit:       *limit,
		DryRun:      *dryRun,
	}

	res, err := r.Run(ctx)
	if err != nil {
		lg.Fatal().Err(err).Msg("replay run")
	}

	lg.Info().
		Int("replayed", res.Replayed).
		Int("failed", res.Failed).
		Bool("dry_run", *dryRun).
		Msg("replay finished")
}
