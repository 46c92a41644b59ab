package m_timeline

import (
	"time"

	"cloud.google.com/go/spanner"
)

// BuildInsertMap constructs the values for a first-seen timeline event.
// Optional fields are passed as pointers so absent values land as NULL and
// stay back-fillable.
func BuildInsertMap(siteCode, eventID, eventType string, occurredAt time.Time, assetID, reasonCode *string, durationSeconds int64, payloadJSON string) map[string]interface{} {
	return map[string]interface{}{
		ColSiteCode:        siteCode,
		ColEventID:         eventID,
		ColEventType:       eventType,
		ColOccurredAt:      occurredAt,
		ColAssetID:         assetID,
		ColReasonCode:      reasonCode,
		ColDurationSeconds: durationSeconds,
		ColPayload:         payloadJSON,
	}
}

// InsertMutation constructs the first-insert mutation for an event.
func InsertMutation(values map[string]interface{}) *spanner.Mutation {
	cols := make([]string, 0, len(values))
	vals := make([]interface{}, 0, len(values))
	for c, v := range values {
		cols = append(cols, c)
		vals = append(vals, v)
	}
	return spanner.Insert(TableName, cols, vals)
}

// BackfillMutation updates only the provided optional columns of an
// existing event. Core fields are immutable after first insert.
func BackfillMutation(siteCode, eventID string, updates map[string]interface{}) *spanner.Mutation {
	cols := make([]string, 0, len(updates)+2)
	vals := make([]interface{}, 0, len(updates)+2)
	cols = append(cols, ColSiteCode, ColEventID)
	vals = append(vals, siteCode, eventID)
	for c, v := range updates {
		cols = append(cols, c)
		vals = append(vals, v)
	}
	return spanner.Update(TableName, cols, vals)
}
