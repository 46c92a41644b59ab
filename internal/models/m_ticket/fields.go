package m_ticket

const (
	TableName = "ticket_snapshots"

	ColSiteCode       = "site_code"
	ColTicketID       = "ticket_id"
	ColAssetID        = "asset_id"
	ColTitle          = "title"
	ColStatus         = "status"
	ColPriority       = "priority"
	ColCreatedAt      = "created_at_utc"
	ColSLADueAt       = "sla_due_at_utc"
	ColAcknowledgedAt = "acknowledged_at_utc"
	ColResolvedAt     = "resolved_at_utc"
	ColUpdatedAt      = "updated_at_utc"
)
