package m_site

const (
	TableName = "plant_registry"

	ColSiteCode    = "site_code"
	ColDisplayName = "display_name"
	ColIsActive    = "is_active"
	ColLastSeenAt  = "last_seen_at_utc"
	ColCreatedAt   = "created_at_utc"
	ColUpdatedAt   = "updated_at_utc"
)
