package domain

import "time"

// OutcomeKind classifies the result of processing one batch item.
type OutcomeKind int

const (
	// OutcomeApplied means the item's entity upsert and ledger insert committed.
	OutcomeApplied OutcomeKind = iota
	// OutcomeSkipped means the correlation ID was already in the ledger.
	OutcomeSkipped
	// OutcomeDeadLettered means schema checking or application failed and the
	// item was routed to the dead-letter store.
	OutcomeDeadLettered
)

// Outcome is the result of processing a single item. Failures never cross
// the per-item boundary as errors; they are data.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

// Applied constructs an applied outcome.
func Applied() Outcome { return Outcome{Kind: OutcomeApplied} }

// Skipped constructs a skipped (idempotent duplicate) outcome.
func Skipped() Outcome { return Outcome{Kind: OutcomeSkipped} }

// DeadLettered constructs a dead-lettered outcome with the stored reason.
func DeadLettered(reason string) Outcome {
	return Outcome{Kind: OutcomeDeadLettered, Reason: reason}
}

// Summary aggregates per-item outcomes into the batch response counts.
type Summary struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Add folds one outcome into the summary.
func (s *Summary) Add(o Outcome) {
	switch o.Kind {
	case OutcomeApplied:
		s.Applied++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeDeadLettered:
		s.Failed++
	}
}

// DeadLetterEntry is a per-item failure held for inspection and replay.
// It never has a companion ledger row, so a corrected replay under the same
// correlation ID can still apply.
type DeadLetterEntry struct {
	ID            string    `json:"id"`
	SiteCode      string    `json:"site_code"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	CorrelationID string    `json:"correlation_id"`
	PayloadJSON   string    `json:"payload_json"`
	Error         string    `json:"error"`
	CreatedAt     time.Time `json:"created_at_utc"`
}

// Item reconstructs the wire item from a stored dead letter so the replayer
// can run the same schema check + apply path as the receiver.
func (d *DeadLetterEntry) Item() Item {
	return Item{
		SiteCode:      d.SiteCode,
		EntityType:    d.EntityType,
		EntityID:      d.EntityID,
		Payload:       []byte(d.PayloadJSON),
		CorrelationID: d.CorrelationID,
	}
}
