package m_rollup

import (
	"time"

	"cloud.google.com/go/spanner"
)

// UpsertMutation overwrites the daily counters with the incoming snapshot.
// Each rollup payload is a full snapshot, not a delta, so counters are
// replaced rather than summed; this keeps application order-tolerant.
func UpsertMutation(siteCode, day string, stops, faults, ticketsOpen, slaBreaches, downtimeMinutes int64, updatedAt time.Time) *spanner.Mutation {
	return spanner.InsertOrUpdate(TableName,
		[]string{ColSiteCode, ColDay, ColStops, ColFaults, ColTicketsOpen, ColSLABreaches, ColDowntimeMinutes, ColUpdatedAt},
		[]interface{}{siteCode, day, stops, faults, ticketsOpen, slaBreaches, downtimeMinutes, updatedAt},
	)
}

// ReasonUpsertMutation overwrites one per-reason breakdown row.
func ReasonUpsertMutation(siteCode, day, reasonCode string, stops, downtimeMinutes int64) *spanner.Mutation {
	return spanner.InsertOrUpdate(ReasonTableName,
		[]string{ReasonColSiteCode, ReasonColDay, ReasonColReasonCode, ReasonColStops, ReasonColDowntimeMinutes},
		[]interface{}{siteCode, day, reasonCode, stops, downtimeMinutes},
	)
}
