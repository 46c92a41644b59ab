// Package domain holds the sync wire envelope, the typed payload union and
// the per-item outcome model shared by the receiver and the replayer.
package domain

import (
	"encoding/json"
	"fmt"
)

// Entity types with dedicated appliers at HQ. Anything else is accepted as
// a liveness signal only.
const (
	EntityRollup        = "rollup"
	EntityTicket        = "ticket"
	EntityTimelineEvent = "timeline_event"
	EntityAsset         = "asset"
)

// Wire limits mirrored on both sides of the protocol.
const (
	MaxSiteCodeLen      = 16
	MaxEntityTypeLen    = 32
	MaxEntityIDLen      = 64
	MaxCorrelationIDLen = 128
)

// Item is one element of a sync batch as it travels on the wire. Payload
// stays raw until schema checking decodes it into a typed variant.
type Item struct {
	SiteCode      string          `json:"site_code"`
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlation_id"`
}

// Batch is the request envelope for POST /sync/receive.
type Batch struct {
	Items []Item `json:"items"`
}

// Validate checks the envelope-level constraints of a single item. Payload
// field requirements are the job of DecodePayload.
func (it *Item) Validate() error {
	if it.SiteCode == "" {
		return ErrEmptySiteCode
	}
	if len(it.SiteCode) > MaxSiteCodeLen {
		return fmt.Errorf("site code exceeds %d characters", MaxSiteCodeLen)
	}
	if it.EntityType == "" {
		return ErrEmptyEntityType
	}
	if len(it.EntityType) > MaxEntityTypeLen {
		return fmt.Errorf("entity type exceeds %d characters", MaxEntityTypeLen)
	}
	if it.EntityID == "" {
		return ErrEmptyEntityID
	}
	if len(it.EntityID) > MaxEntityIDLen {
		return fmt.Errorf("entity id exceeds %d characters", MaxEntityIDLen)
	}
	if it.CorrelationID == "" {
		return ErrEmptyCorrelationID
	}
	if len(it.CorrelationID) > MaxCorrelationIDLen {
		return ErrCorrelationIDTooLong
	}
	return nil
}

// ParseBatch decodes the batch and validates every item envelope. An
// envelope violation rejects the whole batch: without a sound envelope
// there is no correlation ID to dead-letter under. Payload schemas are
// deliberately not checked here; a bad payload must not reject the batch.
func ParseBatch(raw []byte) (*Batch, error) {
	var b Batch
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	if b.Items == nil {
		return nil, fmt.Errorf("decode batch: missing items")
	}
	for i := range b.Items {
		if err := b.Items[i].Validate(); err != nil {
			return nil, fmt.Errorf("decode batch: item %d: %w", i, err)
		}
	}
	return &b, nil
}
