package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Payload is the decoded, schema-checked form of an item payload. Exactly
// one concrete type exists per entity type with an applier, plus
// UnknownPayload as the forward-compatibility passthrough.
type Payload interface {
	isPayload()
}

// StopReason is one per-reason breakdown row nested in a rollup snapshot.
type StopReason struct {
	ReasonCode      string `json:"reason_code"`
	Stops           int64  `json:"stops"`
	DowntimeMinutes int64  `json:"downtime_minutes"`
}

// RollupPayload is a full daily snapshot of site counters. Counters are
// absolute values, not deltas; appliers overwrite, never sum.
type RollupPayload struct {
	DayUTC          string       `json:"day_utc"`
	Stops           int64        `json:"stops"`
	Faults          int64        `json:"faults"`
	TicketsOpen     int64        `json:"tickets_open"`
	SLABreaches     int64        `json:"sla_breaches"`
	DowntimeMinutes int64        `json:"downtime_minutes"`
	StopReasons     []StopReason `json:"stop_reasons"`
}

// TicketPayload is a point-in-time snapshot of a maintenance ticket.
type TicketPayload struct {
	AssetID        string     `json:"asset_id"`
	Title          string     `json:"title"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	CreatedAt      *time.Time `json:"created_at_utc"`
	SLADueAt       *time.Time `json:"sla_due_at_utc"`
	AcknowledgedAt *time.Time `json:"acknowledged_at_utc"`
	ResolvedAt     *time.Time `json:"resolved_at_utc"`
}

// TimelineEventPayload is an append-only plant-floor event.
type TimelineEventPayload struct {
	EventType       string     `json:"event_type"`
	OccurredAt      *time.Time `json:"occurred_at_utc"`
	AssetID         string     `json:"asset_id"`
	ReasonCode      string     `json:"reason_code"`
	DurationSeconds int64      `json:"duration_seconds"`
}

// UnknownPayload carries an entity type without a dedicated applier. Such
// items are accepted as a liveness signal and otherwise ignored.
type UnknownPayload struct {
	Raw json.RawMessage
}

func (RollupPayload) isPayload()        {}
func (TicketPayload) isPayload()        {}
func (TimelineEventPayload) isPayload() {}
func (UnknownPayload) isPayload()       {}

// DecodePayload turns the raw payload of an item into its typed variant,
// enforcing the per-entity required fields. A failure wraps
// ErrSchemaInvalid and names the missing keys, which ends up in the
// dead-letter error column.
func DecodePayload(entityType string, raw json.RawMessage) (Payload, error) {
	switch entityType {
	case EntityRollup:
		return decodeRollup(raw)
	case EntityTicket:
		return decodeTicket(raw)
	case EntityTimelineEvent:
		return decodeTimelineEvent(raw)
	default:
		return UnknownPayload{Raw: raw}, nil
	}
}

func decodeRollup(raw json.RawMessage) (Payload, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: rollup payload is not an object", ErrSchemaInvalid)
	}
	if missing := missingKeys(generic, "day_utc"); len(missing) > 0 {
		return nil, missingErr(EntityRollup, missing)
	}

	var p RollupPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: rollup: %v", ErrSchemaInvalid, err)
	}
	if len(p.DayUTC) > 10 {
		p.DayUTC = p.DayUTC[:10]
	}
	if _, err := time.Parse("2006-01-02", p.DayUTC); err != nil {
		return nil, fmt.Errorf("%w: rollup: day_utc %q is not a date", ErrSchemaInvalid, p.DayUTC)
	}
	return p, nil
}

func decodeTicket(raw json.RawMessage) (Payload, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: ticket payload is not an object", ErrSchemaInvalid)
	}
	if missing := missingKeys(generic, "asset_id", "status", "created_at_utc"); len(missing) > 0 {
		return nil, missingErr(EntityTicket, missing)
	}

	p := TicketPayload{
		AssetID:        stringKey(generic, "asset_id"),
		Title:          stringKey(generic, "title"),
		Status:         stringKey(generic, "status"),
		Priority:       stringKey(generic, "priority"),
		CreatedAt:      timeKey(generic, "created_at_utc"),
		SLADueAt:       timeKey(generic, "sla_due_at_utc"),
		AcknowledgedAt: timeKey(generic, "acknowledged_at_utc"),
		ResolvedAt:     timeKey(generic, "resolved_at_utc"),
	}
	if p.Status == "" {
		p.Status = "OPEN"
	}
	if p.Priority == "" {
		p.Priority = "MEDIUM"
	}
	return p, nil
}

func decodeTimelineEvent(raw json.RawMessage) (Payload, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: timeline_event payload is not an object", ErrSchemaInvalid)
	}
	if missing := missingKeys(generic, "event_type", "occurred_at_utc"); len(missing) > 0 {
		return nil, missingErr(EntityTimelineEvent, missing)
	}

	p := TimelineEventPayload{
		EventType:       stringKey(generic, "event_type"),
		OccurredAt:      timeKey(generic, "occurred_at_utc"),
		AssetID:         stringKey(generic, "asset_id"),
		ReasonCode:      stringKey(generic, "reason_code"),
		DurationSeconds: intKey(generic, "duration_seconds"),
	}
	return p, nil
}

// missingKeys reports required keys that are absent, null or empty strings.
func missingKeys(payload map[string]json.RawMessage, required ...string) []string {
	missing := make([]string, 0, len(required))
	for _, key := range required {
		raw, ok := payload[key]
		if !ok || string(raw) == "null" || string(raw) == `""` {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

func missingErr(entityType string, missing []string) error {
	return fmt.Errorf("%w: missing keys for %s: [%s]", ErrSchemaInvalid, entityType, strings.Join(missing, " "))
}

func stringKey(payload map[string]json.RawMessage, key string) string {
	raw, ok := payload[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func intKey(payload map[string]json.RawMessage, key string) int64 {
	raw, ok := payload[key]
	if !ok {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	return n
}

// timeKey parses an RFC3339 timestamp key. Unparseable or absent values
// become nil so a stale snapshot cannot blank a known timestamp downstream.
func timeKey(payload map[string]json.RawMessage, key string) *time.Time {
	s := stringKey(payload, key)
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	u := t.UTC()
	return &u
}
