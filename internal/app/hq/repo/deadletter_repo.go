package repo

import (
	"context"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"

	"github.com/plantops/site-sync-service/internal/app/hq/domain"
	"github.com/plantops/site-sync-service/internal/models/m_deadletter"
	"github.com/plantops/site-sync-service/internal/pkg/committer"
)

// DeadLetterRepo is the Spanner implementation of the dead-letter store.
// Writes go through a committer plan in their own transaction: a dead letter
// must survive even though the apply that produced it did not.
type DeadLetterRepo struct {
	client    *spanner.Client
	committer *committer.Adapter
}

func NewDeadLetterRepo(client *spanner.Client) *DeadLetterRepo {
	return &DeadLetterRepo{client: client, committer: committer.NewAdapter(client)}
}

// Add persists one dead letter.
func (r *DeadLetterRepo) Add(ctx context.Context, entry *domain.DeadLetterEntry) error {
	values := m_deadletter.BuildInsertMap(
		entry.ID,
		entry.SiteCode,
		entry.EntityType,
		entry.EntityID,
		entry.CorrelationID,
		entry.PayloadJSON,
		entry.Error,
		entry.CreatedAt,
	)

	plan := committer.NewPlan()
	plan.Add(m_deadletter.InsertMutation(values))
	return r.committer.Apply(ctx, plan)
}

// ListOldest returns up to limit entries, oldest first, so the replayer
// drains in arrival order.
func (r *DeadLetterRepo) ListOldest(ctx context.Context, limit int) ([]*domain.DeadLetterEntry, error) {
	stmt := spanner.Statement{
		SQL: `SELECT id, site_code, entity_type, entity_id, correlation_id, payload_json, error, created_at_utc
		      FROM dead_letters
		      ORDER BY created_at_utc ASC, id ASC
		      LIMIT @limit`,
		Params: map[string]interface{}{"limit": int64(limit)},
	}

	iter := r.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	out := make([]*domain.DeadLetterEntry, 0, limit)
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		var e domain.DeadLetterEntry
		var createdAt time.Time
		if err := row.Columns(&e.ID, &e.SiteCode, &e.EntityType, &e.EntityID, &e.CorrelationID, &e.PayloadJSON, &e.Error, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = createdAt.UTC()
		out = append(out, &e)
	}
}

// Delete removes a successfully replayed entry.
func (r *DeadLetterRepo) Delete(ctx context.Context, id string) error {
	plan := committer.NewPlan()
	plan.Add(m_deadletter.DeleteMutation(id))
	return r.committer.Apply(ctx, plan)
}

// UpdateError overwrites the stored error after a failed replay attempt.
func (r *DeadLetterRepo) UpdateError(ctx context.Context, id, message string) error {
	plan := committer.NewPlan()
	plan.Add(m_deadletter.UpdateErrorMutation(id, message))
	return r.committer.Apply(ctx, plan)
}
