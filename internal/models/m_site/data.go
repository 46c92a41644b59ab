package m_site

import (
	"time"

	"cloud.google.com/go/spanner"
)

// RegisterMutation records a first-seen site. Display name defaults to the
// site code until an operator renames it. InsertOrUpdate keeps two parallel
// first batches from the same new site from aborting each other.
func RegisterMutation(siteCode string, now time.Time) *spanner.Mutation {
	return spanner.InsertOrUpdate(TableName,
		[]string{ColSiteCode, ColDisplayName, ColIsActive, ColLastSeenAt, ColCreatedAt, ColUpdatedAt},
		[]interface{}{siteCode, siteCode, true, now, now, now},
	)
}

// TouchMutation refreshes the liveness columns of a known site.
func TouchMutation(siteCode string, now time.Time) *spanner.Mutation {
	return spanner.Update(TableName,
		[]string{ColSiteCode, ColLastSeenAt, ColUpdatedAt},
		[]interface{}{siteCode, now, now},
	)
}
