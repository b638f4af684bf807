package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/messaging"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

type statusUpdate struct {
	status model.OutboxStatus
	errMsg *string
}

type fakeOutboxStore struct {
	mu       sync.Mutex
	pending  []*model.OutboxEvent
	updates  map[uuid.UUID]statusUpdate
	fetchErr error
	deleted  time.Time
}

func newFakeOutboxStore(events ...*model.OutboxEvent) *fakeOutboxStore {
	return &fakeOutboxStore{pending: events, updates: map[uuid.UUID]statusUpdate{}}
}

func (f *fakeOutboxStore) GetPendingEvents(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeOutboxStore) UpdateStatus(_ context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = statusUpdate{status: status, errMsg: errMsg}
	return nil
}

func (f *fakeOutboxStore) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	f.deleted = before
	return 3, nil
}

type fakeBroker struct {
	failures  int
	published []messaging.Message
	calls     int
}

func (b *fakeBroker) Publish(_ context.Context, _ string, message interface{}) error {
	b.calls++
	if b.failures > 0 {
		b.failures--
		return errors.New("redis unavailable")
	}
	b.published = append(b.published, message.(messaging.Message))
	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBroker) Ping(context.Context) error { return nil }
func (b *fakeBroker) Close() error { return nil }

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		Channel:       "clinic.appointments",
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}
}

func newEvent(t *testing.T) *model.OutboxEvent {
	t.Helper()
	evt, err := model.NewOutboxEvent(model.EventAppointmentCreated, map[string]string{"date": "2026-10-19"})
	require.NoError(t, err)
	return evt
}

func TestNewOutboxProcessorRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 0
	_, err := NewOutboxProcessor(newFakeOutboxStore(), &fakeBroker{}, cfg, logger.Nop(), metrics.NewTestMetrics())
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Channel = ""
	_, err = NewOutboxProcessor(newFakeOutboxStore(), &fakeBroker{}, cfg, logger.Nop(), metrics.NewTestMetrics())
	assert.Error(t, err)
}

func TestProcessEventsPublishesAndMarksProcessed(t *testing.T) {
	evt := newEvent(t)
	store := newFakeOutboxStore(evt)
	broker := &fakeBroker{}

	p, err := NewOutboxProcessor(store, broker, testConfig(), logger.Nop(), metrics.NewTestMetrics())
	require.NoError(t, err)

	require.NoError(t, p.processEvents(context.Background()))

	require.Len(t, broker.published, 1)
	assert.Equal(t, evt.ID.String(), broker.published[0].ID)
	assert.Equal(t, model.EventAppointmentCreated, broker.published[0].Type)
	assert.JSONEq(t, `{"date":"2026-10-19"}`, string(broker.published[0].Payload))
	assert.Equal(t, model.OutboxStatusProcessed, store.updates[evt.ID].status)
}

func TestProcessEventsRetriesThenSucceeds(t *testing.T) {
	evt := newEvent(t)
	store := newFakeOutboxStore(evt)
	broker := &fakeBroker{failures: 2}

	p, err := NewOutboxProcessor(store, broker, testConfig(), logger.Nop(), metrics.NewTestMetrics())
	require.NoError(t, err)

	require.NoError(t, p.processEvents(context.Background()))
	assert.Equal(t, 3, broker.calls)
	assert.Equal(t, model.OutboxStatusProcessed, store.updates[evt.ID].status)
}

func TestProcessEventsMarksFailedAfterRetries(t *testing.T) {
	evt := newEvent(t)
	store := newFakeOutboxStore(evt)
	broker := &fakeBroker{failures: 10}

	p, err := NewOutboxProcessor(store, broker, testConfig(), logger.Nop(), metrics.NewTestMetrics())
	require.NoError(t, err)

	require.NoError(t, p.processEvents(context.Background()))
	assert.Equal(t, 3, broker.calls)

	update := store.updates[evt.ID]
	assert.Equal(t, model.OutboxStatusFailed, update.status)
	require.NotNil(t, update.errMsg)
	assert.Contains(t, *update.errMsg, "redis unavailable")
}

func TestProcessEventsFetchError(t *testing.T) {
	store := newFakeOutboxStore()
	store.fetchErr = errors.New("db down")

	p, err := NewOutboxProcessor(store, &fakeBroker{}, testConfig(), logger.Nop(), metrics.NewTestMetrics())
	require.NoError(t, err)

	assert.ErrorContains(t, p.processEvents(context.Background()), "db down")
}

func TestOutboxCleanup(t *testing.T) {
	store := newFakeOutboxStore()
	w := NewOutboxCleanupWorker(store, 24*time.Hour, time.Hour, logger.Nop())
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	require.NoError(t, w.cleanup(context.Background()))
	assert.Equal(t, now.Add(-24*time.Hour), store.deleted)
}
