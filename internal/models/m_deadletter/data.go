package m_deadletter

import (
	"time"

	"cloud.google.com/go/spanner"
)

// BuildInsertMap constructs a map with fields for a dead-letter insertion.
func BuildInsertMap(id, siteCode, entityType, entityID, correlationID, payloadJSON, errMsg string, createdAt time.Time) map[string]interface{} {
	return map[string]interface{}{
		ColID:            id,
		ColSiteCode:      siteCode,
		ColEntityType:    entityType,
		ColEntityID:      entityID,
		ColCorrelationID: correlationID,
		ColPayload:       payloadJSON,
		ColError:         errMsg,
		ColCreatedAt:     createdAt,
	}
}

// InsertMutation constructs a mutation for the dead-letter table.
func InsertMutation(values map[string]interface{}) *spanner.Mutation {
	cols := make([]string, 0, len(values))
	vals := make([]interface{}, 0, len(values))
	for c, v := range values {
		cols = append(cols, c)
		vals = append(vals, v)
	}
	return spanner.Insert(TableName, cols, vals)
}

// DeleteMutation removes a replayed entry.
func DeleteMutation(id string) *spanner.Mutation {
	return spanner.Delete(TableName, spanner.Key{id})
}

// UpdateErrorMutation overwrites the stored error after a failed replay.
func UpdateErrorMutation(id, errMsg string) *spanner.Mutation {
	return spanner.Update(TableName,
		[]string{ColID, ColError},
		[]interface{}{id, errMsg},
	)
}
