package m_rollup

const (
	TableName = "rollup_daily"

	ColSiteCode        = "site_code"
	ColDay             = "day_utc"
	ColStops           = "stops"
	ColFaults          = "faults"
	ColTicketsOpen     = "tickets_open"
	ColSLABreaches     = "sla_breaches"
	ColDowntimeMinutes = "downtime_minutes"
	ColUpdatedAt       = "updated_at_utc"
)

// Per-reason breakdown rows nested in a rollup snapshot.
const (
	ReasonTableName = "stop_reason_daily"

	ReasonColSiteCode        = "site_code"
	ReasonColDay             = "day_utc"
	ReasonColReasonCode      = "reason_code"
	ReasonColStops           = "stops"
	ReasonColDowntimeMinutes = "downtime_minutes"
)
