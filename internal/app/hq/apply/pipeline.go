// Package apply implements the per-item application pipeline of the sync
// receiver: idempotency check, schema check, entity apply, dead-lettering.
package apply

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/plantops/site-sync-service/internal/app/hq/contracts"
	"github.com/plantops/site-sync-service/internal/app/hq/domain"
	"github.com/plantops/site-sync-service/internal/pkg/clock"
)

const maxStoredErrorLen = 200

// Pipeline processes authenticated, parsed batches. Item failures never
// cross the per-item boundary as errors; they are reduced into the batch
// summary and captured as dead letters.
type Pipeline struct {
	Ledger      contracts.Ledger
	Store       contracts.EntityStore
	DeadLetters contracts.DeadLetterStore
	Notifier    contracts.Notifier
	Clock       clock.Clock
	Log         *zerolog.Logger
}

func NewPipeline(ledger contracts.Ledger, store contracts.EntityStore, deadLetters contracts.DeadLetterStore, notifier contracts.Notifier, clk clock.Clock, log *zerolog.Logger) *Pipeline {
	return &Pipeline{
		Ledger:      ledger,
		Store:       store,
		DeadLetters: deadLetters,
		Notifier:    notifier,
		Clock:       clk,
		Log:         log,
	}
}

// ProcessBatch applies every item independently and returns the aggregate
// counts. It never fails: batch-level rejections (auth, parse) happen
// before this point.
func (p *Pipeline) ProcessBatch(ctx context.Context, batch *domain.Batch) domain.Summary {
	var summary domain.Summary
	for i := range batch.Items {
		outcome := p.ApplyItem(ctx, &batch.Items[i])
		summary.Add(outcome)
	}
	return summary
}

// ApplyItem runs the per-item state machine:
// IDEMPOTENCY_CHECK -> SCHEMA_CHECK -> APPLY.
func (p *Pipeline) ApplyItem(ctx context.Context, item *domain.Item) domain.Outcome {
	now := p.Clock.Now()

	applied, err := p.Ledger.Applied(ctx, item.CorrelationID)
	if err != nil {
		return p.deadLetter(ctx, item, fmt.Sprintf("apply_failed: ledger check: %s", truncateErr(err)))
	}
	if applied {
		return domain.Skipped()
	}

	payload, err := domain.DecodePayload(item.EntityType, item.Payload)
	if err != nil {
		return p.deadLetter(ctx, item, fmt.Sprintf("schema_invalid: %s", truncateErr(err)))
	}

	if err := p.Store.Apply(ctx, item, payload, now, false); err != nil {
		if errors.Is(err, domain.ErrAlreadyApplied) {
			// Lost a race to a concurrent duplicate; its effect is ours.
			return domain.Skipped()
		}
		return p.deadLetter(ctx, item, fmt.Sprintf("apply_failed: %s", truncateErr(err)))
	}

	return domain.Applied()
}

// deadLetter records the failed item. No ledger row is written, so a
// corrected payload replayed under the same correlation ID can still apply.
func (p *Pipeline) deadLetter(ctx context.Context, item *domain.Item, reason string) domain.Outcome {
	entry := &domain.DeadLetterEntry{
		ID:            uuid.New().String(),
		SiteCode:      item.SiteCode,
		EntityType:    item.EntityType,
		EntityID:      item.EntityID,
		CorrelationID: item.CorrelationID,
		PayloadJSON:   string(item.Payload),
		Error:         reason,
		CreatedAt:     p.Clock.Now(),
	}

	if err := p.DeadLetters.Add(ctx, entry); err != nil {
		// The outcome stays DeadLettered so the counts stay truthful; the
		// sender will redeliver since no ledger row exists.
		p.Log.Error().Err(err).
			Str("correlation_id", item.CorrelationID).
			Msg("dead_letter_write_failed")
		return domain.DeadLettered(reason)
	}

	p.Log.Warn().
		Str("site_code", item.SiteCode).
		Str("entity_type", item.EntityType).
		Str("entity_id", item.EntityID).
		Str("correlation_id", item.CorrelationID).
		Str("reason", reason).
		Msg("item_dead_lettered")

	if p.Notifier != nil {
		p.Notifier.DeadLetterAlert(item.SiteCode, item.EntityType, item.EntityID, item.CorrelationID, reason)
	}

	return domain.DeadLettered(reason)
}

func truncateErr(err error) string {
	msg := err.Error()
	if len(msg) > maxStoredErrorLen {
		msg = msg[:maxStoredErrorLen]
	}
	return msg
}
