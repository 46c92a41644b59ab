package m_ledger

import (
	"time"

	"cloud.google.com/go/spanner"
)

// InsertMutation constructs the ledger insert for one correlation ID.
// Insert (not InsertOrUpdate) is deliberate: the primary key is the
// idempotency barrier and a duplicate must fail with AlreadyExists.
func InsertMutation(correlationID string, appliedAt time.Time) *spanner.Mutation {
	return spanner.Insert(TableName,
		[]string{ColCorrelationID, ColAppliedAt},
		[]interface{}{correlationID, appliedAt},
	)
}
