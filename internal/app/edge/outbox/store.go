// Package outbox persists plant-floor events destined for HQ in the local
// SQLite database, in the same transaction as the business write that
// produced them. A crash between the write and the send loses nothing; the
// dispatcher picks the row up on the next cycle.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/plantops/site-sync-service/internal/pkg/backoff"
)

const (
	// MaxRetries is the number of delivery attempts before an event is
	// parked locally and an operator is alerted.
	MaxRetries = 10

	// BackoffBase scales the retry schedule: a row holding retry_count r
	// waits min(BackoffCap, BackoffBase * 2^r) before its next attempt.
	BackoffBase = 5 * time.Second
	BackoffCap  = 10 * time.Minute

	maxStoredErrorLen = 300

	// timeLayout is RFC 3339 with a fixed-width fractional second, so the
	// stored strings compare lexically in chronological order. RFC3339Nano
	// trims trailing zeros, which would sort "...00.15Z" before "...00.1Z".
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS event_outbox (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		correlation_id TEXT NOT NULL UNIQUE,
		created_at_utc TEXT NOT NULL,
		sent_at_utc TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		next_attempt_at_utc TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_pending
		ON event_outbox (created_at_utc) WHERE sent_at_utc IS NULL`,
	`CREATE TABLE IF NOT EXISTS dead_letters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		correlation_id TEXT NOT NULL,
		error TEXT NOT NULL,
		created_at_utc TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS alert_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		severity TEXT NOT NULL,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at_utc TEXT NOT NULL,
		sent_at_utc TEXT
	)`,
}

// Event is one row of the transactional outbox.
type Event struct {
	ID            int64
	EntityType    string
	EntityID      string
	PayloadJSON   string
	CorrelationID string
	RetryCount    int
	CreatedAt     time.Time
}

// Alert is a queued operator notification. Alerts are written in the same
// transaction as the condition that raised them and drained best-effort.
type Alert struct {
	ID        int64
	Severity  string
	Subject   string
	Body      string
	CreatedAt time.Time
}

// Store owns the plant-local SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the plant database and applies the schema.
// The connection is capped at a single writer; SQLite serializes writes
// anyway and a cap avoids busy-timeout churn between the app and the
// dispatcher.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("outbox: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("outbox: apply schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle so callers can open transactions that
// span their own tables and the outbox.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue stages an event inside the caller's transaction. The event becomes
// visible to the dispatcher only when that transaction commits, which is the
// whole point: the business write and the replication intent are atomic.
// Re-enqueueing a correlation id that is already staged is a no-op.
func (s *Store) Enqueue(ctx context.Context, tx *sql.Tx, ev *Event) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO event_outbox
			(entity_type, entity_id, payload_json, correlation_id, created_at_utc)
		VALUES (?, ?, ?, ?, ?)`,
		ev.EntityType, ev.EntityID, ev.PayloadJSON, ev.CorrelationID,
		ev.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("outbox: enqueue %s: %w", ev.CorrelationID, err)
	}
	return nil
}

// SelectDue returns up to limit unsent events whose backoff window has
// elapsed, oldest first. Send order preserves creation order so HQ sees
// timeline events before the rollups that summarize them.
func (s *Store) SelectDue(ctx context.Context, now time.Time, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_type, entity_id, payload_json, correlation_id, retry_count, created_at_utc
		FROM event_outbox
		WHERE sent_at_utc IS NULL
			AND (next_attempt_at_utc IS NULL OR next_attempt_at_utc <= ?)
		ORDER BY created_at_utc ASC, id ASC
		LIMIT ?`,
		now.UTC().Format(timeLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: select due: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			ev        Event
			createdAt string
		)
		if err := rows.Scan(&ev.ID, &ev.EntityType, &ev.EntityID, &ev.PayloadJSON,
			&ev.CorrelationID, &ev.RetryCount, &createdAt); err != nil {
			return nil, fmt.Errorf("outbox: scan due: %w", err)
		}
		ev.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// MarkBatchSent stamps every event in the batch as delivered and clears any
// retry bookkeeping left by earlier failed attempts.
func (s *Store) MarkBatchSent(ctx context.Context, events []*Event, now time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		sentAt := now.UTC().Format(timeLayout)
		for _, ev := range events {
			if _, err := tx.ExecContext(ctx,
				`UPDATE event_outbox
				SET sent_at_utc = ?, last_error = NULL, next_attempt_at_utc = NULL
				WHERE id = ?`,
				sentAt, ev.ID); err != nil {
				return fmt.Errorf("outbox: mark sent %d: %w", ev.ID, err)
			}
		}
		return nil
	})
}

// RecordBatchFailure bumps the retry count of every event in the failed
// batch and schedules the next attempt with exponential backoff. Events that
// exhaust MaxRetries are moved to the local dead_letters table and a
// critical alert is queued, all in one transaction.
func (s *Store) RecordBatchFailure(ctx context.Context, events []*Event, cause string, now time.Time) error {
	cause = truncate(cause, maxStoredErrorLen)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		nowStr := now.UTC().Format(timeLayout)
		for _, ev := range events {
			retries := ev.RetryCount + 1
			if retries >= MaxRetries {
				if err := s.deadLetter(ctx, tx, ev, cause, nowStr); err != nil {
					return err
				}
				continue
			}

			// The delay is derived from the incremented count, so a row
			// stored with retry_count r waits base * 2^r.
			nextAttempt := now.Add(backoff.Capped(BackoffBase, retries, BackoffCap))
			if _, err := tx.ExecContext(ctx,
				`UPDATE event_outbox
				SET retry_count = ?, last_error = ?, next_attempt_at_utc = ?
				WHERE id = ?`,
				retries, cause, nextAttempt.UTC().Format(timeLayout), ev.ID); err != nil {
				return fmt.Errorf("outbox: record failure %d: %w", ev.ID, err)
			}
		}
		return nil
	})
}

// deadLetter parks an exhausted event. The outbox row is stamped sent so the
// dispatcher stops picking it up; the authoritative copy lives in
// dead_letters from here on.
func (s *Store) deadLetter(ctx context.Context, tx *sql.Tx, ev *Event, cause, nowStr string) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE event_outbox
		SET sent_at_utc = ?, retry_count = ?, last_error = ?
		WHERE id = ?`,
		nowStr, ev.RetryCount+1, cause, ev.ID); err != nil {
		return fmt.Errorf("outbox: retire %d: %w", ev.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dead_letters
			(entity_type, entity_id, payload_json, correlation_id, error, created_at_utc)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.EntityType, ev.EntityID, ev.PayloadJSON, ev.CorrelationID, cause, nowStr); err != nil {
		return fmt.Errorf("outbox: dead-letter %s: %w", ev.CorrelationID, err)
	}

	subject := fmt.Sprintf("sync dead letter: %s %s", ev.EntityType, ev.EntityID)
	body := fmt.Sprintf("correlation_id=%s retries=%d error=%s", ev.CorrelationID, ev.RetryCount+1, cause)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO alert_queue (severity, subject, body, created_at_utc)
		VALUES ('critical', ?, ?, ?)`,
		subject, body, nowStr); err != nil {
		return fmt.Errorf("outbox: queue alert for %s: %w", ev.CorrelationID, err)
	}
	return nil
}

// QueueAlert stages an operator alert outside of any outbox event, for
// conditions like consecutive cycle failures.
func (s *Store) QueueAlert(ctx context.Context, severity, subject, body string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_queue (severity, subject, body, created_at_utc)
		VALUES (?, ?, ?, ?)`,
		severity, subject, body, now.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("outbox: queue alert: %w", err)
	}
	return nil
}

// PendingAlerts returns unsent alerts, oldest first.
func (s *Store) PendingAlerts(ctx context.Context, limit int) ([]*Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, severity, subject, body, created_at_utc
		FROM alert_queue
		WHERE sent_at_utc IS NULL
		ORDER BY created_at_utc ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: pending alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		var (
			a         Alert
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.Severity, &a.Subject, &a.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("outbox: scan alert: %w", err)
		}
		a.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// MarkAlertSent stamps one alert as delivered.
func (s *Store) MarkAlertSent(ctx context.Context, id int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE alert_queue SET sent_at_utc = ? WHERE id = ?`,
		now.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("outbox: mark alert sent %d: %w", id, err)
	}
	return nil
}

// DeadLetters lists locally parked events, oldest first.
func (s *Store) DeadLetters(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_type, entity_id, payload_json, correlation_id, created_at_utc
		FROM dead_letters
		ORDER BY created_at_utc ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: list dead letters: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			ev        Event
			createdAt string
		)
		if err := rows.Scan(&ev.ID, &ev.EntityType, &ev.EntityID, &ev.PayloadJSON,
			&ev.CorrelationID, &createdAt); err != nil {
			return nil, fmt.Errorf("outbox: scan dead letter: %w", err)
		}
		ev.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("outbox: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
