package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightkeepers/fieldsync/internal/model"
	"github.com/lightkeepers/fieldsync/internal/repository"
)

func testEvent(t *testing.T, repo *repository.MemoryOutboxRepository, appender *Appender, eventType string) string {
	t.Helper()
	id, err := appender.Append(context.Background(), nil, eventType, model.AggregateAlert, "alert-1",
		map[string]string{"severity": "critical"}, model.EventMetadata{UserID: "u1"})
	require.NoError(t, err)
	return id
}

func TestPublisherPublishesPending(t *testing.T) {
	repo := repository.NewMemoryOutboxRepository()
	bus := NewBus()
	appender := NewAppender(repo)

	var got []model.OutboxEvent
	bus.Subscribe("alert.issued", func(_ context.Context, e model.OutboxEvent) error {
		got = append(got, e)
		return nil
	})

	id := testEvent(t, repo, appender, "alert.issued")

	pub := NewPublisher(repo, bus, 10, 5, time.Second)
	require.NoError(t, pub.RunOnce(context.Background()))

	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)

	e, ok := repo.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.EventPublished, e.Status)
	require.NotNil(t, e.PublishedAt)
	require.NotNil(t, e.ProcessedAt)
}

func TestPublisherRetriesUntilDeadLetter(t *testing.T) {
	repo := repository.NewMemoryOutboxRepository()
	bus := NewBus()
	appender := NewAppender(repo)

	calls := 0
	bus.Subscribe("task.updated", func(_ context.Context, _ model.OutboxEvent) error {
		calls++
		return errors.New("subscriber down")
	})

	id := testEvent(t, repo, appender, "task.updated")
	pub := NewPublisher(repo, bus, 10, 5, time.Second)

	// run well past the ceiling; attempts must stop at exactly 5
	for i := 0; i < 8; i++ {
		require.NoError(t, pub.RunOnce(context.Background()))
	}

	assert.Equal(t, 5, calls)

	e, ok := repo.Get(id)
	require.True(t, ok)
	assert.Equal(t, model.EventFailed, e.Status)
	assert.Equal(t, 5, e.RetryCount)
	assert.Equal(t, "subscriber down", e.LastError)

	failed, err := repo.ListFailed(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, id, failed[0].ID)
}

func TestPublisherManualRetryResetsDeadLetter(t *testing.T) {
	repo := repository.NewMemoryOutboxRepository()
	bus := NewBus()
	appender := NewAppender(repo)

	healthy := false
	bus.Subscribe("resource.requested", func(_ context.Context, _ model.OutboxEvent) error {
		if !healthy {
			return errors.New("unreachable")
		}
		return nil
	})

	id := testEvent(t, repo, appender, "resource.requested")
	pub := NewPublisher(repo, bus, 10, 5, time.Second)
	for i := 0; i < 5; i++ {
		require.NoError(t, pub.RunOnce(context.Background()))
	}

	e, _ := repo.Get(id)
	require.Equal(t, model.EventFailed, e.Status)

	healthy = true
	require.NoError(t, repo.Retry(context.Background(), id))
	require.NoError(t, pub.RunOnce(context.Background()))

	e, _ = repo.Get(id)
	assert.Equal(t, model.EventPublished, e.Status)
	assert.Equal(t, 0, e.RetryCount)
}

func TestPublisherPoisonedEventDoesNotBlockBatch(t *testing.T) {
	repo := repository.NewMemoryOutboxRepository()
	bus := NewBus()
	appender := NewAppender(repo)

	bus.Subscribe("bad.event", func(_ context.Context, _ model.OutboxEvent) error {
		panic("boom")
	})
	delivered := 0
	bus.Subscribe("good.event", func(_ context.Context, _ model.OutboxEvent) error {
		delivered++
		return nil
	})

	badID := testEvent(t, repo, appender, "bad.event")
	goodID := testEvent(t, repo, appender, "good.event")

	pub := NewPublisher(repo, bus, 10, 5, time.Second)
	require.NoError(t, pub.RunOnce(context.Background()))

	assert.Equal(t, 1, delivered)
	bad, _ := repo.Get(badID)
	assert.Equal(t, 1, bad.RetryCount)
	good, _ := repo.Get(goodID)
	assert.Equal(t, model.EventPublished, good.Status)
}

func TestPublisherDispatchesOldestFirst(t *testing.T) {
	repo := repository.NewMemoryOutboxRepository()
	bus := NewBus()

	var order []string
	bus.Subscribe(WildcardEventType, func(_ context.Context, e model.OutboxEvent) error {
		order = append(order, e.ID)
		return nil
	})

	// insert directly so creation times are deterministic
	base := time.Now().UTC()
	for i, id := range []string{"c", "a", "b"} {
		require.NoError(t, repo.Insert(context.Background(), nil, model.OutboxEvent{
			ID:            id,
			EventType:     "any.event",
			AggregateType: model.AggregateTask,
			AggregateID:   "t1",
			Payload:       json.RawMessage(`{}`),
			CreatedAt:     base.Add(time.Duration(2-i) * time.Second),
		}))
	}

	pub := NewPublisher(repo, bus, 10, 5, time.Second)
	require.NoError(t, pub.RunOnce(context.Background()))

	assert.Equal(t, []string{"b", "a", "c"}, order)
}

func TestRetentionPrunesOldPublishedRows(t *testing.T) {
	repo := repository.NewMemoryOutboxRepository()
	bus := NewBus()
	bus.Subscribe(WildcardEventType, func(_ context.Context, _ model.OutboxEvent) error { return nil })
	appender := NewAppender(repo)

	id := testEvent(t, repo, appender, "person.checked_in")
	pub := NewPublisher(repo, bus, 10, 5, time.Second)
	require.NoError(t, pub.RunOnce(context.Background()))

	ret := NewRetention(repo, 7*24*time.Hour, time.Hour)
	ret.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	ret.RunOnce(context.Background())

	_, ok := repo.Get(id)
	assert.False(t, ok, "published row past the window should be pruned")
}

func TestPublisherStatus(t *testing.T) {
	repo := repository.NewMemoryOutboxRepository()
	bus := NewBus()
	appender := NewAppender(repo)
	bus.Subscribe("ok.event", func(_ context.Context, _ model.OutboxEvent) error { return nil })
	bus.Subscribe("bad.event", func(_ context.Context, _ model.OutboxEvent) error { return errors.New("nope") })

	testEvent(t, repo, appender, "ok.event")
	testEvent(t, repo, appender, "bad.event")
	testEvent(t, repo, appender, "pending.event") // no subscriber: publishes trivially

	pub := NewPublisher(repo, bus, 10, 1, time.Second)
	require.NoError(t, pub.RunOnce(context.Background()))

	status, err := pub.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, status.Published)
	assert.Equal(t, 1, status.Failed)
	assert.Equal(t, 0, status.Pending)
	require.NotNil(t, status.LastPublishedAt)
}
