package apply

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plantops/site-sync-service/internal/app/hq/domain"
	"github.com/plantops/site-sync-service/internal/pkg/clock"
)

// fakeStore is an in-memory EntityStore + Ledger sharing one correlation
// set, like the real adapters share one database.
type fakeStore struct {
	mu           sync.Mutex
	correlations map[string]bool
	appliedItems []string
	failWith     map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		correlations: map[string]bool{},
		failWith:     map[string]error{},
	}
}

func (f *fakeStore) Applied(_ context.Context, correlationID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.correlations[correlationID], nil
}

func (f *fakeStore) Apply(_ context.Context, item *domain.Item, _ domain.Payload, _ time.Time, dryRun bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.correlations[item.CorrelationID] {
		return domain.ErrAlreadyApplied
	}
	if err := f.failWith[item.CorrelationID]; err != nil {
		return err
	}
	if dryRun {
		return nil
	}
	f.correlations[item.CorrelationID] = true
	f.appliedItems = append(f.appliedItems, item.CorrelationID)
	return nil
}

type fakeDeadLetters struct {
	mu      sync.Mutex
	entries []*domain.DeadLetterEntry
	addErr  error
}

func (f *fakeDeadLetters) Add(_ context.Context, entry *domain.DeadLetterEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeDeadLetters) ListOldest(_ context.Context, limit int) ([]*domain.DeadLetterEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.entries) {
		limit = len(f.entries)
	}
	return f.entries[:limit], nil
}

func (f *fakeDeadLetters) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeDeadLetters) UpdateError(_ context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ID == id {
			e.Error = message
		}
	}
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (f *fakeNotifier) DeadLetterAlert(_, _, _, correlationID, _ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, correlationID)
}

func newTestPipeline(store *fakeStore, dls *fakeDeadLetters, notifier *fakeNotifier) *Pipeline {
	log := zerolog.Nop()
	return NewPipeline(store, store, dls, notifier, clock.NewFake(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)), &log)
}

func ticketItem(n int) domain.Item {
	return domain.Item{
		SiteCode:      "PLANT01",
		EntityType:    domain.EntityTicket,
		EntityID:      fmt.Sprintf("TCK-%d", n),
		Payload:       json.RawMessage(`{"asset_id":"PRESS-4","status":"OPEN","created_at_utc":"2026-03-14T08:00:00Z"}`),
		CorrelationID: fmt.Sprintf("ticket_close:TCK-%d", n),
	}
}

func TestProcessBatchIdempotent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	dls := &fakeDeadLetters{}
	p := newTestPipeline(store, dls, &fakeNotifier{})

	batch := &domain.Batch{Items: []domain.Item{ticketItem(1), ticketItem(2), ticketItem(3)}}

	first := p.ProcessBatch(context.Background(), batch)
	assert.Equal(t, domain.Summary{Applied: 3}, first)

	second := p.ProcessBatch(context.Background(), batch)
	assert.Equal(t, domain.Summary{Skipped: 3}, second)

	assert.Len(t, store.appliedItems, 3, "second delivery must not re-apply")
	assert.Empty(t, dls.entries)
}

func TestProcessBatchDeadLetterIsolation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	dls := &fakeDeadLetters{}
	notifier := &fakeNotifier{}
	p := newTestPipeline(store, dls, notifier)

	items := []domain.Item{ticketItem(1), ticketItem(2), ticketItem(3), ticketItem(4), ticketItem(5)}
	// Item 3 is missing required fields.
	items[2].Payload = json.RawMessage(`{"title":"no asset"}`)

	summary := p.ProcessBatch(context.Background(), &domain.Batch{Items: items})
	assert.Equal(t, domain.Summary{Applied: 4, Failed: 1}, summary)

	for _, n := range []int{1, 2, 4, 5} {
		assert.True(t, store.correlations[fmt.Sprintf("ticket_close:TCK-%d", n)], "item %d has a ledger row", n)
	}
	assert.False(t, store.correlations["ticket_close:TCK-3"], "dead-lettered item must not consume its correlation id")

	require.Len(t, dls.entries, 1)
	assert.Equal(t, "ticket_close:TCK-3", dls.entries[0].CorrelationID)
	assert.Contains(t, dls.entries[0].Error, "schema_invalid")
	assert.Equal(t, []string{"ticket_close:TCK-3"}, notifier.alerts)
}

func TestApplyItemUnknownTypeIsLivenessOnly(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	p := newTestPipeline(store, &fakeDeadLetters{}, &fakeNotifier{})

	item := domain.Item{
		SiteCode:      "PLANT01",
		EntityType:    "shift_report",
		EntityID:      "SR-1",
		Payload:       json.RawMessage(`{"future":"shape"}`),
		CorrelationID: "shift_report:SR-1",
	}

	outcome := p.ApplyItem(context.Background(), &item)
	assert.Equal(t, domain.OutcomeApplied, outcome.Kind)
	assert.True(t, store.correlations["shift_report:SR-1"], "unknown types still consume their correlation id")
}

func TestApplyItemApplicationFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failWith["ticket_close:TCK-1"] = errors.New("constraint violation")
	dls := &fakeDeadLetters{}
	p := newTestPipeline(store, dls, &fakeNotifier{})

	item := ticketItem(1)
	outcome := p.ApplyItem(context.Background(), &item)
	assert.Equal(t, domain.OutcomeDeadLettered, outcome.Kind)

	require.Len(t, dls.entries, 1)
	assert.Contains(t, dls.entries[0].Error, "apply_failed")
	assert.False(t, store.correlations["ticket_close:TCK-1"])
}

func TestApplyItemConcurrentDuplicateCountsSkipped(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.failWith["ticket_close:TCK-1"] = domain.ErrAlreadyApplied
	dls := &fakeDeadLetters{}
	p := newTestPipeline(store, dls, &fakeNotifier{})

	item := ticketItem(1)
	outcome := p.ApplyItem(context.Background(), &item)
	assert.Equal(t, domain.OutcomeSkipped, outcome.Kind)
	assert.Empty(t, dls.entries)
}

func TestApplyItemDeadLetterWriteFailureStillCountsFailed(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	dls := &fakeDeadLetters{addErr: errors.New("hq db down")}
	p := newTestPipeline(store, dls, &fakeNotifier{})

	item := ticketItem(1)
	item.Payload = json.RawMessage(`{"title":"no asset"}`)

	outcome := p.ApplyItem(context.Background(), &item)
	assert.Equal(t, domain.OutcomeDeadLettered, outcome.Kind)
}
