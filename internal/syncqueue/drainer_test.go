package syncqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightkeepers/fieldsync/internal/model"
)

func TestDrainerDeliversStrictPriorityOrder(t *testing.T) {
	q := New(NewMemoryStore(), 5)
	ctx := context.Background()

	low, err := q.Enqueue(ctx, "housekeeping", nil, model.PriorityLow, 0)
	require.NoError(t, err)
	crit, err := q.EnqueueSOS(ctx, nil, 0)
	require.NoError(t, err)
	high, err := q.EnqueueResourceRequest(ctx, nil, 0)
	require.NoError(t, err)

	var order []string
	d := NewDrainer(q, func(_ context.Context, item model.SyncItem) error {
		order = append(order, item.ID)
		return nil
	}, time.Second, time.Minute)

	pause, err := d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, pause)
	assert.Equal(t, []string{crit.ID, high.ID, low.ID}, order)

	status, err := q.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), status.Synced)
	assert.Equal(t, 0, status.Pending[model.PriorityCritical])
	assert.Equal(t, 0, status.Pending[model.PriorityLow])
}

func TestDrainerPacesFailedLane(t *testing.T) {
	q := New(NewMemoryStore(), 5)
	ctx := context.Background()

	_, err := q.EnqueueResourceRequest(ctx, map[string]string{"item": "fuel"}, 0)
	require.NoError(t, err)

	healthy := false
	d := NewDrainer(q, func(_ context.Context, _ model.SyncItem) error {
		if !healthy {
			return errors.New("uplink down")
		}
		return nil
	}, time.Second, time.Minute)

	// failed delivery stops the pass and asks for the lane's retry interval
	pause, err := d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.PriorityHigh.RetryInterval(), pause)

	status, err := q.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Pending[model.PriorityHigh], "failed item stays queued in its lane")

	healthy = true
	pause, err = d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, pause)

	status, err = q.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Synced)
	assert.Equal(t, 0, status.Pending[model.PriorityHigh])
}

func TestDrainerCeilingDropsItem(t *testing.T) {
	q := New(NewMemoryStore(), 5)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "report", nil, model.PriorityNormal, 0)
	require.NoError(t, err)

	calls := 0
	d := NewDrainer(q, func(_ context.Context, _ model.SyncItem) error {
		calls++
		return errors.New("still down")
	}, time.Second, time.Minute)

	for i := 0; i < 8; i++ {
		_, err := d.RunOnce(ctx)
		require.NoError(t, err)
	}

	// attempted exactly up to the ceiling, then dropped as permanently failed
	assert.Equal(t, 5, calls)
	status, err := q.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Failed)
	assert.Equal(t, 0, status.Pending[model.PriorityNormal])
}

func TestDrainerSweepsExpired(t *testing.T) {
	q := New(NewMemoryStore(), 5)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "stale", nil, model.PriorityNormal, time.Minute)
	require.NoError(t, err)

	delivered := 0
	d := NewDrainer(q, func(_ context.Context, _ model.SyncItem) error {
		delivered++
		return nil
	}, time.Second, time.Minute)

	future := func() time.Time { return time.Now().Add(2 * time.Hour) }
	q.now = future
	d.now = future

	pause, err := d.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, pause)
	assert.Equal(t, 0, delivered, "expired item must never be delivered")

	status, err := q.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Pending[model.PriorityNormal])
}
