// Package replay re-attempts dead-lettered sync items against the same
// idempotent apply path used by the receiver.
package replay

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/plantops/site-sync-service/internal/app/hq/contracts"
	"github.com/plantops/site-sync-service/internal/app/hq/domain"
	"github.com/plantops/site-sync-service/internal/pkg/clock"
)

const (
	// DefaultLimit bounds one replay run.
	DefaultLimit = 200

	maxReplayErrorLen = 250
)

// Replayer drains the dead-letter store oldest-first. Each entry is
// re-validated and re-applied; success deletes the entry, failure updates
// its stored error for the next run. Dry-run mode stages the apply inside
// a transaction that is always rolled back and leaves the store untouched.
type Replayer struct {
	DeadLetters contracts.DeadLetterStore
	Store       contracts.EntityStore
	Clock       clock.Clock
	Log         *zerolog.Logger

	Limit  int
	DryRun bool
}

// Result summarizes one replay run.
type Result struct {
	Replayed int
	Failed   int
}

// Run processes up to Limit entries. Only listing errors abort the run;
// per-entry failures are recorded and skipped over, like in the receiver.
func (r *Replayer) Run(ctx context.Context) (Result, error) {
	limit := r.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	entries, err := r.DeadLetters.ListOldest(ctx, limit)
	if err != nil {
		return Result{}, fmt.Errorf("list dead letters: %w", err)
	}

	var res Result
	for _, entry := range entries {
		if err := r.replayOne(ctx, entry); err != nil {
			res.Failed++
			if !r.DryRun {
				if uerr := r.DeadLetters.UpdateError(ctx, entry.ID, replayError(err)); uerr != nil {
					r.Log.Error().Err(uerr).Str("id", entry.ID).Msg("dead_letter_update_failed")
				}
			}
			r.Log.Warn().
				Str("correlation_id", entry.CorrelationID).
				Err(err).
				Bool("dry_run", r.DryRun).
				Msg("replay_failed")
			continue
		}

		res.Replayed++
		if !r.DryRun {
			if derr := r.DeadLetters.Delete(ctx, entry.ID); derr != nil {
				r.Log.Error().Err(derr).Str("id", entry.ID).Msg("dead_letter_delete_failed")
			}
		}
		r.Log.Info().
			Str("correlation_id", entry.CorrelationID).
			Bool("dry_run", r.DryRun).
			Msg("replay_applied")
	}

	return res, nil
}

func (r *Replayer) replayOne(ctx context.Context, entry *domain.DeadLetterEntry) error {
	item := entry.Item()

	payload, err := domain.DecodePayload(item.EntityType, item.Payload)
	if err != nil {
		return err
	}

	err = r.Store.Apply(ctx, &item, payload, r.Clock.Now(), r.DryRun)
	if errors.Is(err, domain.ErrAlreadyApplied) {
		// Applied through another path since dead-lettering; the entry is
		// obsolete and can be dropped.
		return nil
	}
	return err
}

func replayError(err error) string {
	msg := err.Error()
	if len(msg) > maxReplayErrorLen {
		msg = msg[:maxReplayErrorLen]
	}
	return "REPLAY_FAIL: " + msg
}
