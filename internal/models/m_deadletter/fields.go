package m_deadletter

const (
	TableName = "dead_letters"

	ColID            = "id"
	ColSiteCode      = "site_code"
	ColEntityType    = "entity_type"
	ColEntityID      = "entity_id"
	ColCorrelationID = "correlation_id"
	ColPayload       = "payload_json"
	ColError         = "error"
	ColCreatedAt     = "created_at_utc"
)
