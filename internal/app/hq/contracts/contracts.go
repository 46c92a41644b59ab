// Package contracts defines the interfaces between the apply pipeline and
// its storage/notification adapters. Usecases depend on these, never on
// driver details.
package contracts

import (
	"context"
	"time"

	"github.com/plantops/site-sync-service/internal/app/hq/domain"
)

// Ledger is the read side of the applied-correlations table.
type Ledger interface {
	// Applied reports whether correlationID has already been processed.
	Applied(ctx context.Context, correlationID string) (bool, error)
}

// EntityStore applies one schema-checked item: the entity-specific upsert,
// the site registry refresh and the ledger insert commit atomically.
// It returns domain.ErrAlreadyApplied if the correlation ID won a concurrent
// race or was applied earlier. With dryRun set the transaction is always
// rolled back after the writes are staged.
type EntityStore interface {
	Apply(ctx context.Context, item *domain.Item, payload domain.Payload, now time.Time, dryRun bool) error
}

// DeadLetterStore holds items that failed schema checking or application.
type DeadLetterStore interface {
	Add(ctx context.Context, entry *domain.DeadLetterEntry) error
	ListOldest(ctx context.Context, limit int) ([]*domain.DeadLetterEntry, error)
	Delete(ctx context.Context, id string) error
	UpdateError(ctx context.Context, id, message string) error
}

// Notifier raises operator alerts. Delivery is fire-and-forget; failures
// must never affect sync correctness.
type Notifier interface {
	DeadLetterAlert(siteCode, entityType, entityID, correlationID, message string)
}
