package m_timeline

const (
	TableName = "timeline_events"

	ColSiteCode        = "site_code"
	ColEventID         = "event_id"
	ColEventType       = "event_type"
	ColOccurredAt      = "occurred_at_utc"
	ColAssetID         = "asset_id"
	ColReasonCode      = "reason_code"
	ColDurationSeconds = "duration_seconds"
	ColPayload         = "payload_json"
)
