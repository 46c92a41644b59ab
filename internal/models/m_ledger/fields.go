package m_ledger

const (
	TableName = "applied_correlations"

	ColCorrelationID = "correlation_id"
	ColAppliedAt     = "applied_at_utc"
)
