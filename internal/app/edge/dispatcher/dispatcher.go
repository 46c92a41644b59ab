// Package dispatcher drives the plant-side sync loop: drain due outbox
// events, sign them, post them to the HQ receiver, and record the outcome
// back into the outbox.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantops/site-sync-service/internal/app/edge/outbox"
	"github.com/plantops/site-sync-service/internal/pkg/clock"
	"github.com/plantops/site-sync-service/internal/pkg/signing"
)

const (
	// DefaultTimeout bounds one receiver round trip.
	DefaultTimeout = 15 * time.Second

	// failStreakAlertThreshold is how many consecutive failed cycles it
	// takes before operators are paged. Transient blips self-heal through
	// backoff; a streak means the link or the receiver is down.
	failStreakAlertThreshold = 3

	alertDrainLimit = 20
)

// AlertSender delivers queued operator alerts. Delivery is best-effort; an
// undeliverable alert stays queued for the next cycle.
type AlertSender interface {
	SendAlert(severity, subject, body string) error
}

type wireItem struct {
	SiteCode      string          `json:"site_code"`
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlation_id"`
}

type wireBatch struct {
	Items []wireItem `json:"items"`
}

type receiveSummary struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Dispatcher posts outbox batches to the HQ receiver.
type Dispatcher struct {
	Store     *outbox.Store
	Client    *http.Client
	URL       string
	Keyring   signing.Keyring
	SiteCode  string
	BatchSize int
	Interval  time.Duration
	Clock     clock.Clock
	Alerts    AlertSender
	Log       *zerolog.Logger

	failStreak int
}

// New builds a dispatcher with a timeout-bounded HTTP client.
func New(store *outbox.Store, url, siteCode string, keyring signing.Keyring, batchSize int, interval time.Duration, timeout time.Duration, alerts AlertSender, log *zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		Store:     store,
		Client:    &http.Client{Timeout: timeout},
		URL:       url,
		Keyring:   keyring,
		SiteCode:  siteCode,
		BatchSize: batchSize,
		Interval:  interval,
		Clock:     clock.RealClock{},
		Alerts:    alerts,
		Log:       log,
	}
}

// Run cycles at a fixed interval until ctx is cancelled. Failed cycles are
// counted; a streak of them raises a critical alert through the local alert
// queue so it survives its own delivery failures.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	for {
		if err := d.Cycle(ctx); err != nil {
			d.failStreak++
			d.Log.Error().Err(err).Int("fail_streak", d.failStreak).Msg("sync_cycle_failed")
			if d.failStreak == failStreakAlertThreshold {
				d.queueStreakAlert(ctx, err)
			}
		} else {
			d.failStreak = 0
		}
		d.drainAlerts(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cycle sends one batch of due events. An empty outbox is a successful
// cycle. The batch succeeds or fails as a unit: item-level problems are the
// receiver's to dead-letter, and it reports them inside a 200 response.
func (d *Dispatcher) Cycle(ctx context.Context) error {
	now := d.Clock.Now()

	events, err := d.Store.SelectDue(ctx, now, d.BatchSize)
	if err != nil {
		return fmt.Errorf("select due events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	summary, sendErr := d.send(ctx, events)
	if sendErr != nil {
		if ferr := d.Store.RecordBatchFailure(ctx, events, sendErr.Error(), d.Clock.Now()); ferr != nil {
			d.Log.Error().Err(ferr).Msg("record_failure_failed")
		}
		return sendErr
	}

	if err := d.Store.MarkBatchSent(ctx, events, d.Clock.Now()); err != nil {
		return fmt.Errorf("mark batch sent: %w", err)
	}

	d.Log.Info().
		Int("batch", len(events)).
		Int("applied", summary.Applied).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("batch_synced")
	return nil
}

// send marshals, signs, and posts one batch. The signature covers the exact
// bytes on the wire, so the marshaled form is signed, not re-derived.
func (d *Dispatcher) send(ctx context.Context, events []*outbox.Event) (*receiveSummary, error) {
	batch := wireBatch{Items: make([]wireItem, 0, len(events))}
	for _, ev := range events {
		batch.Items = append(batch.Items, wireItem{
			SiteCode:      d.SiteCode,
			EntityType:    ev.EntityType,
			EntityID:      ev.EntityID,
			Payload:       json.RawMessage(ev.PayloadJSON),
			CorrelationID: ev.CorrelationID,
		})
	}

	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	sig, kid := d.Keyring.Sign(body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signing.HeaderSignature, sig)
	req.Header.Set(signing.HeaderKeyID, kid)

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("receiver returned %d: %s", resp.StatusCode, snippet)
	}

	var summary receiveSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("decode receiver response: %w", err)
	}
	return &summary, nil
}

func (d *Dispatcher) queueStreakAlert(ctx context.Context, cause error) {
	subject := fmt.Sprintf("sync failing at %s", d.SiteCode)
	body := fmt.Sprintf("%d consecutive sync cycles failed, last error: %v", d.failStreak, cause)
	if err := d.Store.QueueAlert(ctx, "critical", subject, body, d.Clock.Now()); err != nil {
		d.Log.Error().Err(err).Msg("queue_streak_alert_failed")
	}
}

// drainAlerts delivers queued alerts best-effort. A send failure leaves the
// alert queued; delivery never blocks or fails the sync cycle.
func (d *Dispatcher) drainAlerts(ctx context.Context) {
	if d.Alerts == nil {
		return
	}

	alerts, err := d.Store.PendingAlerts(ctx, alertDrainLimit)
	if err != nil {
		d.Log.Error().Err(err).Msg("list_alerts_failed")
		return
	}

	for _, a := range alerts {
		if err := d.Alerts.SendAlert(a.Severity, a.Subject, a.Body); err != nil {
			d.Log.Warn().Err(err).Int64("alert_id", a.ID).Msg("alert_send_failed")
			return
		}
		if err := d.Store.MarkAlertSent(ctx, a.ID, d.Clock.Now()); err != nil {
			d.Log.Error().Err(err).Int64("alert_id", a.ID).Msg("mark_alert_sent_failed")
			return
		}
	}
}
