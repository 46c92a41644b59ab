package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantops/site-sync-service/internal/app/hq/domain"
	"github.com/plantops/site-sync-service/internal/app/hq/replay"
)

func parkEntry(ctx context.Context, t *testing.T, site, entityType, entityID, correlationID, payload, cause string) *domain.DeadLetterEntry {
	t.Helper()
	entry := &domain.DeadLetterEntry{
		ID:            uuid.New().String(),
		SiteCode:      site,
		EntityType:    entityType,
		EntityID:      entityID,
		CorrelationID: correlationID,
		PayloadJSON:   payload,
		Error:         cause,
		CreatedAt:     clk.Now(),
	}
	require.NoError(t, deadLetters.Add(ctx, entry))
	return entry
}

func newE2EReplayer(dryRun bool) *replay.Replayer {
	log := zerolog.Nop()
	return &replay.Replayer{
		DeadLetters: deadLetters,
		Store:       entityRepo,
		Clock:       clk,
		Log:         &log,
		DryRun:      dryRun,
	}
}

func TestReplayAppliesParkedItem(t *testing.T) {
	requireEmulator(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Parked on a transient apply failure; the payload itself is fine.
	parkEntry(ctx, t, "RPLY01", domain.EntityTicket, "TCK-1", "ticket_open:RPLY01-TCK-1",
		`{"asset_id":"PRESS-4","status":"OPEN","created_at_utc":"2026-03-14T08:00:00Z"}`,
		"apply_failed: deadline exceeded")

	res, err := newE2EReplayer(false).Run(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Replayed, 1)

	applied, err := ledgerRepo.Applied(ctx, "ticket_open:RPLY01-TCK-1")
	require.NoError(t, err)
	assert.True(t, applied)

	n := countRows(ctx, t,
		"SELECT COUNT(*) FROM dead_letters WHERE correlation_id = @cid",
		map[string]interface{}{"cid": "ticket_open:RPLY01-TCK-1"})
	assert.Equal(t, int64(0), n, "replayed entry is removed")

	n = countRows(ctx, t,
		"SELECT COUNT(*) FROM ticket_snapshots WHERE site_code = 'RPLY01'",
		map[string]interface{}{})
	assert.Equal(t, int64(1), n)
}

func TestReplayDryRunCommitsNothing(t *testing.T) {
	requireEmulator(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	parkEntry(ctx, t, "RPLY02", domain.EntityTicket, "TCK-1", "ticket_open:RPLY02-TCK-1",
		`{"asset_id":"PRESS-4","status":"OPEN","created_at_utc":"2026-03-14T08:00:00Z"}`,
		"apply_failed: deadline exceeded")

	res, err := newE2EReplayer(true).Run(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Replayed, 1)

	applied, err := ledgerRepo.Applied(ctx, "ticket_open:RPLY02-TCK-1")
	require.NoError(t, err)
	assert.False(t, applied, "dry run stages but never commits")

	n := countRows(ctx, t,
		"SELECT COUNT(*) FROM dead_letters WHERE correlation_id = @cid",
		map[string]interface{}{"cid": "ticket_open:RPLY02-TCK-1"})
	assert.Equal(t, int64(1), n, "dry run leaves the entry parked")
}

func TestReplayStillInvalidEntryKept(t *testing.T) {
	requireEmulator(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entry := parkEntry(ctx, t, "RPLY03", domain.EntityTicket, "TCK-1", "ticket_open:RPLY03-TCK-1",
		`{"title":"still missing required keys"}`,
		"schema_invalid: missing keys for ticket: [asset_id status created_at_utc]")

	res, err := newE2EReplayer(false).Run(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Failed, 1)

	var storedErr string
	queryRow(ctx, t,
		"SELECT error FROM dead_letters WHERE id = @id",
		map[string]interface{}{"id": entry.ID}, &storedErr)
	assert.Contains(t, storedErr, "REPLAY_FAIL: ")

	// Park no permanent garbage for the other replay tests.
	require.NoError(t, deadLetters.Delete(ctx, entry.ID))
}

func TestReplayObsoleteEntryDropped(t *testing.T) {
	requireEmulator(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// The item was applied through a later redelivery while parked.
	payload := `{"asset_id":"PRESS-4","status":"OPEN","created_at_utc":"2026-03-14T08:00:00Z"}`
	summary := process(ctx, item("RPLY04", domain.EntityTicket, "TCK-1", "ticket_open:RPLY04-TCK-1", payload))
	require.Equal(t, domain.Summary{Applied: 1}, summary)

	entry := parkEntry(ctx, t, "RPLY04", domain.EntityTicket, "TCK-1", "ticket_open:RPLY04-TCK-1",
		payload, "apply_failed: deadline exceeded")

	res, err := newE2EReplayer(false).Run(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Replayed, 1)

	n := countRows(ctx, t,
		"SELECT COUNT(*) FROM dead_letters WHERE id = @id",
		map[string]interface{}{"id": entry.ID})
	assert.Equal(t, int64(0), n, "obsolete entry is cleaned up")
}
