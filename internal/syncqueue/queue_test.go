package syncqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightkeepers/fieldsync/internal/metrics"
	"github.com/lightkeepers/fieldsync/internal/model"
)

func TestStrictPriorityPrecedence(t *testing.T) {
	q := New(NewMemoryStore(), 5)
	ctx := context.Background()

	low, err := q.Enqueue(ctx, "housekeeping", map[string]string{"k": "v"}, model.PriorityLow, 0)
	require.NoError(t, err)
	crit, err := q.Enqueue(ctx, "sos", map[string]string{"k": "v"}, model.PriorityCritical, 0)
	require.NoError(t, err)

	// the Critical item dequeues first even though the Low item is older
	first, ok, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, crit.ID, first.ID)

	second, ok, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, low.ID, second.ID)

	_, ok, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDequeueBatchOrdering(t *testing.T) {
	q := New(NewMemoryStore(), 5)
	ctx := context.Background()

	// enqueue in reverse priority order; batch must come back by lane
	sos, err := q.EnqueueSOS(ctx, map[string]string{"lat": "23.5"}, 0)
	require.NoError(t, err)
	res, err := q.EnqueueResourceRequest(ctx, map[string]string{"item": "water"}, 0)
	require.NoError(t, err)
	ping, err := q.EnqueueStatusUpdate(ctx, map[string]string{"ok": "true"}, 0)
	require.NoError(t, err)

	items, err := q.DequeueBatch(ctx, 3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{sos.ID, res.ID, ping.ID}, []string{items[0].ID, items[1].ID, items[2].ID})
	assert.Equal(t, "sos", items[0].Type)
	assert.Equal(t, "resource_request", items[1].Type)
	assert.Equal(t, "status_update", items[2].Type)
}

func TestFIFOWithinLane(t *testing.T) {
	q := New(NewMemoryStore(), 5)
	ctx := context.Background()

	a, err := q.Enqueue(ctx, "ping", nil, model.PriorityNormal, 0)
	require.NoError(t, err)
	b, err := q.Enqueue(ctx, "ping", nil, model.PriorityNormal, 0)
	require.NoError(t, err)

	first, _, err := q.Dequeue(ctx)
	require.NoError(t, err)
	second, _, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, first.ID)
	assert.Equal(t, b.ID, second.ID)
}

func TestUrgentSignalOnCritical(t *testing.T) {
	q := New(NewMemoryStore(), 5)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "ping", nil, model.PriorityNormal, 0)
	require.NoError(t, err)
	select {
	case <-q.Urgent():
		t.Fatal("normal enqueue must not raise the urgent signal")
	default:
	}

	_, err = q.EnqueueSOS(ctx, nil, 0)
	require.NoError(t, err)
	select {
	case <-q.Urgent():
	default:
		t.Fatal("critical enqueue must raise the urgent signal")
	}
}

func TestMarkFailedReenqueuesUntilCeiling(t *testing.T) {
	q := New(NewMemoryStore(), 5)
	ctx := context.Background()

	item, err := q.Enqueue(ctx, "report", nil, model.PriorityHigh, 0)
	require.NoError(t, err)

	attempts := 0
	for {
		got, ok, err := q.Dequeue(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		attempts++
		require.Equal(t, item.ID, got.ID)
		require.NoError(t, q.MarkFailed(ctx, got, errors.New("link down")))
	}

	// failed exactly 5 times, never a 6th
	assert.Equal(t, 5, attempts)

	status, err := q.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Failed)
	assert.Equal(t, 0, status.Pending[model.PriorityHigh])
}

func TestMarkFailedKeepsLane(t *testing.T) {
	q := New(NewMemoryStore(), 5)
	ctx := context.Background()

	item, err := q.Enqueue(ctx, "report", nil, model.PriorityHigh, 0)
	require.NoError(t, err)
	got, _, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.MarkFailed(ctx, got, errors.New("x")))

	// a retried item stays in its own lane, behind nothing of lower priority
	_, err = q.Enqueue(ctx, "ping", nil, model.PriorityNormal, 0)
	require.NoError(t, err)

	next, _, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, item.ID, next.ID)
	assert.Equal(t, model.PriorityHigh, next.Priority)
	assert.Equal(t, 1, next.Attempts)
}

func TestCleanupExpired(t *testing.T) {
	q := New(NewMemoryStore(), 5)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "stale", nil, model.PriorityNormal, time.Minute)
	require.NoError(t, err)
	keep, err := q.Enqueue(ctx, "fresh", nil, model.PriorityNormal, 10*time.Hour)
	require.NoError(t, err)

	q.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	removed, err := q.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	got, ok, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, keep.ID, got.ID)
}

func TestExpiredItemNeverDequeued(t *testing.T) {
	q := New(NewMemoryStore(), 5)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "stale", nil, model.PriorityCritical, time.Minute)
	require.NoError(t, err)

	// no cleanup ran, but an expired item must still not surface
	q.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, ok, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatusCounters(t *testing.T) {
	q := New(NewMemoryStore(), 5)
	ctx := context.Background()

	item, err := q.EnqueueSOS(ctx, nil, 0)
	require.NoError(t, err)
	_, err = q.EnqueueStatusUpdate(ctx, nil, 0)
	require.NoError(t, err)

	status, err := q.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Pending[model.PriorityCritical])
	assert.Equal(t, 1, status.Pending[model.PriorityNormal])
	assert.Nil(t, status.LastSyncedAt)

	got, _, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, item.ID, got.ID)
	q.MarkSynced(got)

	status, err = q.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Synced)
	require.NotNil(t, status.LastSyncedAt)
}

func TestMarkSyncedRecordsLane(t *testing.T) {
	q := New(NewMemoryStore(), 5)
	ctx := context.Background()

	_, err := q.EnqueueSOS(ctx, nil, 0)
	require.NoError(t, err)
	got, _, err := q.Dequeue(ctx)
	require.NoError(t, err)

	before := testutil.ToFloat64(metrics.SyncItemsTotal.WithLabelValues("synced", "critical"))
	q.MarkSynced(got)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.SyncItemsTotal.WithLabelValues("synced", "critical")))
}

func TestRetryIntervalsPerLane(t *testing.T) {
	assert.Equal(t, 5*time.Second, model.PriorityCritical.RetryInterval())
	assert.Equal(t, 60*time.Second, model.PriorityHigh.RetryInterval())
	assert.Equal(t, 300*time.Second, model.PriorityNormal.RetryInterval())
	assert.Equal(t, 900*time.Second, model.PriorityLow.RetryInterval())
}
