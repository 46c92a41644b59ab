package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRollup(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"day_utc": "2026-03-14",
		"stops": 7,
		"faults": 2,
		"tickets_open": 3,
		"sla_breaches": 1,
		"downtime_minutes": 42,
		"stop_reasons": [
			{"reason_code": "JAM", "stops": 5, "downtime_minutes": 30},
			{"reason_code": "UNKNOWN", "stops": 2, "downtime_minutes": 12}
		]
	}`)

	p, err := DecodePayload(EntityRollup, raw)
	require.NoError(t, err)

	rollup, ok := p.(RollupPayload)
	require.True(t, ok)
	assert.Equal(t, "2026-03-14", rollup.DayUTC)
	assert.Equal(t, int64(7), rollup.Stops)
	assert.Equal(t, int64(42), rollup.DowntimeMinutes)
	require.Len(t, rollup.StopReasons, 2)
	assert.Equal(t, "JAM", rollup.StopReasons[0].ReasonCode)
	assert.Equal(t, int64(30), rollup.StopReasons[0].DowntimeMinutes)
}

func TestDecodeRollupMissingDay(t *testing.T) {
	t.Parallel()

	_, err := DecodePayload(EntityRollup, json.RawMessage(`{"stops": 7}`))
	require.ErrorIs(t, err, ErrSchemaInvalid)
	assert.Contains(t, err.Error(), "day_utc")
}

func TestDecodeRollupTruncatesTimestampedDay(t *testing.T) {
	t.Parallel()

	p, err := DecodePayload(EntityRollup, json.RawMessage(`{"day_utc": "2026-03-14T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14", p.(RollupPayload).DayUTC)
}

func TestDecodeTicket(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"asset_id": "PRESS-4",
		"title": "Stop: PRESS-4 - jam",
		"status": "RESOLVED",
		"priority": "HIGH",
		"created_at_utc": "2026-03-14T08:00:00Z",
		"resolved_at_utc": "2026-03-14T09:30:00Z"
	}`)

	p, err := DecodePayload(EntityTicket, raw)
	require.NoError(t, err)

	ticket, ok := p.(TicketPayload)
	require.True(t, ok)
	assert.Equal(t, "PRESS-4", ticket.AssetID)
	assert.Equal(t, "RESOLVED", ticket.Status)
	require.NotNil(t, ticket.CreatedAt)
	assert.Equal(t, time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC), *ticket.CreatedAt)
	require.NotNil(t, ticket.ResolvedAt)
	assert.Nil(t, ticket.AcknowledgedAt)
	assert.Nil(t, ticket.SLADueAt)
}

func TestDecodeTicketMissingRequired(t *testing.T) {
	t.Parallel()

	_, err := DecodePayload(EntityTicket, json.RawMessage(`{"title": "no asset"}`))
	require.ErrorIs(t, err, ErrSchemaInvalid)
	assert.Contains(t, err.Error(), "asset_id")
	assert.Contains(t, err.Error(), "status")
	assert.Contains(t, err.Error(), "created_at_utc")
}

func TestDecodeTicketNullRequiredCountsAsMissing(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"asset_id": null, "status": "", "created_at_utc": "2026-03-14T08:00:00Z"}`)
	_, err := DecodePayload(EntityTicket, raw)
	require.ErrorIs(t, err, ErrSchemaInvalid)
}

func TestDecodeTimelineEvent(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"event_type": "STOP",
		"occurred_at_utc": "2026-03-14T07:45:00Z",
		"asset_id": "PRESS-4",
		"reason_code": "JAM",
		"duration_seconds": 900
	}`)

	p, err := DecodePayload(EntityTimelineEvent, raw)
	require.NoError(t, err)

	ev, ok := p.(TimelineEventPayload)
	require.True(t, ok)
	assert.Equal(t, "STOP", ev.EventType)
	assert.Equal(t, int64(900), ev.DurationSeconds)
	require.NotNil(t, ev.OccurredAt)
}

func TestDecodeTimelineEventSparse(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"event_type": "STOP", "occurred_at_utc": "2026-03-14T07:45:00Z"}`)
	p, err := DecodePayload(EntityTimelineEvent, raw)
	require.NoError(t, err)

	ev := p.(TimelineEventPayload)
	assert.Empty(t, ev.ReasonCode)
	assert.Empty(t, ev.AssetID)
	assert.Zero(t, ev.DurationSeconds)
}

func TestDecodeUnknownTypePassesThrough(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"anything": true}`)
	p, err := DecodePayload(EntityAsset, raw)
	require.NoError(t, err)

	unknown, ok := p.(UnknownPayload)
	require.True(t, ok)
	assert.JSONEq(t, `{"anything": true}`, string(unknown.Raw))
}
