// Package repo contains the Spanner adapters behind the HQ contracts.
// Repos build mutations; the entity repo is the only one that applies them,
// because the per-item atomicity boundary lives there.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/grpc/codes"

	"github.com/plantops/site-sync-service/internal/app/hq/domain"
	"github.com/plantops/site-sync-service/internal/models/m_ledger"
	"github.com/plantops/site-sync-service/internal/models/m_rollup"
	"github.com/plantops/site-sync-service/internal/models/m_site"
	"github.com/plantops/site-sync-service/internal/models/m_ticket"
	"github.com/plantops/site-sync-service/internal/models/m_timeline"
)

// errDryRunRollback aborts a dry-run transaction after all writes are
// staged, so nothing commits.
var errDryRunRollback = errors.New("dry run rollback")

// EntityRepo applies sync items to the replicated entity tables. One item
// is one read-write transaction: ledger check, entity upsert, site registry
// refresh and ledger insert commit atomically.
type EntityRepo struct {
	client *spanner.Client
}

func NewEntityRepo(client *spanner.Client) *EntityRepo {
	return &EntityRepo{client: client}
}

// Apply implements contracts.EntityStore.
func (r *EntityRepo) Apply(ctx context.Context, item *domain.Item, payload domain.Payload, now time.Time, dryRun bool) error {
	_, err := r.client.ReadWriteTransaction(ctx, func(ctx context.Context, tx *spanner.ReadWriteTransaction) error {
		// Idempotency gate inside the transaction: the loser of a
		// concurrent duplicate sees this row, or fails the ledger insert.
		_, err := tx.ReadRow(ctx, m_ledger.TableName, spanner.Key{item.CorrelationID}, []string{m_ledger.ColCorrelationID})
		if err == nil {
			return domain.ErrAlreadyApplied
		}
		if spanner.ErrCode(err) != codes.NotFound {
			return err
		}

		muts := make([]*spanner.Mutation, 0, 8)

		siteMut, err := r.siteMutation(ctx, tx, item.SiteCode, now)
		if err != nil {
			return err
		}
		muts = append(muts, siteMut)

		switch p := payload.(type) {
		case domain.RollupPayload:
			muts = append(muts, rollupMutations(item.SiteCode, p, now)...)
		case domain.TicketPayload:
			ticketMut, err := r.ticketMutation(ctx, tx, item, p, now)
			if err != nil {
				return err
			}
			muts = append(muts, ticketMut)
		case domain.TimelineEventPayload:
			eventMut, err := r.timelineMutation(ctx, tx, item, p, now)
			if err != nil {
				return err
			}
			if eventMut != nil {
				muts = append(muts, eventMut)
			}
		case domain.UnknownPayload:
			// Liveness signal only; the site registry refresh above is the
			// whole effect.
		default:
			return fmt.Errorf("apply: unhandled payload %T", payload)
		}

		muts = append(muts, m_ledger.InsertMutation(item.CorrelationID, now))

		if err := tx.BufferWrite(muts); err != nil {
			return err
		}
		if dryRun {
			return errDryRunRollback
		}
		return nil
	})

	if errors.Is(err, errDryRunRollback) {
		return nil
	}
	if spanner.ErrCode(err) == codes.AlreadyExists {
		return domain.ErrAlreadyApplied
	}
	return err
}

func (r *EntityRepo) siteMutation(ctx context.Context, tx *spanner.ReadWriteTransaction, siteCode string, now time.Time) (*spanner.Mutation, error) {
	_, err := tx.ReadRow(ctx, m_site.TableName, spanner.Key{siteCode}, []string{m_site.ColSiteCode})
	if err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return m_site.RegisterMutation(siteCode, now), nil
		}
		return nil, err
	}
	return m_site.TouchMutation(siteCode, now), nil
}

// rollupMutations overwrites the daily snapshot and every reported
// per-reason breakdown row.
func rollupMutations(siteCode string, p domain.RollupPayload, now time.Time) []*spanner.Mutation {
	muts := make([]*spanner.Mutation, 0, 1+len(p.StopReasons))
	muts = append(muts, m_rollup.UpsertMutation(siteCode, p.DayUTC,
		p.Stops, p.Faults, p.TicketsOpen, p.SLABreaches, p.DowntimeMinutes, now))
	for _, sr := range p.StopReasons {
		code := sr.ReasonCode
		if code == "" {
			code = "UNKNOWN"
		}
		muts = append(muts, m_rollup.ReasonUpsertMutation(siteCode, p.DayUTC, code, sr.Stops, sr.DowntimeMinutes))
	}
	return muts
}

// ticketMutation merges the incoming snapshot over the stored row.
// Scalars are last-writer-wins; timestamp columns keep the stored value
// when the incoming one is null, and created_at is immutable once set.
func (r *EntityRepo) ticketMutation(ctx context.Context, tx *spanner.ReadWriteTransaction, item *domain.Item, p domain.TicketPayload, now time.Time) (*spanner.Mutation, error) {
	values := map[string]interface{}{
		m_ticket.ColSiteCode:  item.SiteCode,
		m_ticket.ColTicketID:  item.EntityID,
		m_ticket.ColAssetID:   p.AssetID,
		m_ticket.ColTitle:     truncate(p.Title, 256),
		m_ticket.ColStatus:    truncate(p.Status, 32),
		m_ticket.ColPriority:  truncate(p.Priority, 32),
		m_ticket.ColUpdatedAt: now,
	}

	row, err := tx.ReadRow(ctx, m_ticket.TableName, spanner.Key{item.SiteCode, item.EntityID},
		[]string{m_ticket.ColCreatedAt, m_ticket.ColSLADueAt, m_ticket.ColAcknowledgedAt, m_ticket.ColResolvedAt})
	if err != nil {
		if spanner.ErrCode(err) != codes.NotFound {
			return nil, err
		}
		// First sight of this ticket.
		createdAt := now
		if p.CreatedAt != nil {
			createdAt = *p.CreatedAt
		}
		values[m_ticket.ColCreatedAt] = createdAt
		values[m_ticket.ColSLADueAt] = p.SLADueAt
		values[m_ticket.ColAcknowledgedAt] = p.AcknowledgedAt
		values[m_ticket.ColResolvedAt] = p.ResolvedAt
		return m_ticket.UpsertMutation(values), nil
	}

	var createdAt time.Time
	var slaDueAt, acknowledgedAt, resolvedAt spanner.NullTime
	if err := row.Columns(&createdAt, &slaDueAt, &acknowledgedAt, &resolvedAt); err != nil {
		return nil, err
	}

	values[m_ticket.ColCreatedAt] = createdAt
	values[m_ticket.ColSLADueAt] = mergeTime(p.SLADueAt, slaDueAt)
	values[m_ticket.ColAcknowledgedAt] = mergeTime(p.AcknowledgedAt, acknowledgedAt)
	values[m_ticket.ColResolvedAt] = mergeTime(p.ResolvedAt, resolvedAt)
	return m_ticket.UpsertMutation(values), nil
}

// timelineMutation inserts a first-seen event or back-fills null optional
// fields of a stored one. Core fields are immutable after first insert;
// a redelivery with nothing new yields no mutation.
func (r *EntityRepo) timelineMutation(ctx context.Context, tx *spanner.ReadWriteTransaction, item *domain.Item, p domain.TimelineEventPayload, now time.Time) (*spanner.Mutation, error) {
	row, err := tx.ReadRow(ctx, m_timeline.TableName, spanner.Key{item.SiteCode, item.EntityID},
		[]string{m_timeline.ColAssetID, m_timeline.ColReasonCode, m_timeline.ColDurationSeconds})
	if err != nil {
		if spanner.ErrCode(err) != codes.NotFound {
			return nil, err
		}

		occurredAt := now
		if p.OccurredAt != nil {
			occurredAt = *p.OccurredAt
		}
		values := m_timeline.BuildInsertMap(
			item.SiteCode,
			item.EntityID,
			truncate(p.EventType, 32),
			occurredAt,
			optString(p.AssetID, 128),
			optString(p.ReasonCode, 64),
			p.DurationSeconds,
			string(item.Payload),
		)
		return m_timeline.InsertMutation(values), nil
	}

	var assetID, reasonCode spanner.NullString
	var durationSeconds spanner.NullInt64
	if err := row.Columns(&assetID, &reasonCode, &durationSeconds); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if !reasonCode.Valid && p.ReasonCode != "" {
		updates[m_timeline.ColReasonCode] = truncate(p.ReasonCode, 64)
	}
	if !assetID.Valid && p.AssetID != "" {
		updates[m_timeline.ColAssetID] = truncate(p.AssetID, 128)
	}
	if (!durationSeconds.Valid || durationSeconds.Int64 == 0) && p.DurationSeconds != 0 {
		updates[m_timeline.ColDurationSeconds] = p.DurationSeconds
	}
	if len(updates) == 0 {
		return nil, nil
	}
	return m_timeline.BackfillMutation(item.SiteCode, item.EntityID, updates), nil
}

func mergeTime(incoming *time.Time, existing spanner.NullTime) interface{} {
	if incoming != nil {
		return *incoming
	}
	if existing.Valid {
		return existing.Time
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

func optString(s string, max int) *string {
	if s == "" {
		return nil
	}
	t := truncate(s, max)
	return &t
}
