package syncqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lightkeepers/fieldsync/internal/logger"
	"github.com/lightkeepers/fieldsync/internal/metrics"
	"github.com/lightkeepers/fieldsync/internal/model"
	"github.com/lightkeepers/fieldsync/internal/util"
)

// Queue holds not-yet-synchronized items across four strict-priority lanes.
// Critical always drains before High, High before Normal, Normal before Low;
// a single SOS never waits behind a backlog of routine pings.
type Queue struct {
	store       Store
	maxAttempts int
	now         func() time.Time

	urgent chan struct{}

	synced       atomic.Int64
	failed       atomic.Int64
	lastSyncedNS atomic.Int64
}

// Status is the operator-facing snapshot used to judge whether the queue is
// falling behind.
type Status struct {
	Pending      map[model.Priority]int `json:"pending"`
	Synced       int64                  `json:"synced"`
	Failed       int64                  `json:"failed"`
	LastSyncedAt *time.Time             `json:"last_synced_at,omitempty"`
}

func New(store Store, maxAttempts int) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Queue{
		store:       store,
		maxAttempts: maxAttempts,
		now:         time.Now,
		urgent:      make(chan struct{}, 1),
	}
}

// Urgent signals when a Critical item has been enqueued so the consumer can
// short-circuit its normal polling cadence.
func (q *Queue) Urgent() <-chan struct{} { return q.urgent }

// Enqueue creates a SyncItem and appends it to its lane. ttl of zero means the
// item never expires.
func (q *Queue) Enqueue(ctx context.Context, itemType string, payload any, priority model.Priority, ttl time.Duration) (model.SyncItem, error) {
	if itemType == "" {
		return model.SyncItem{}, fmt.Errorf("empty item type")
	}
	if !priority.Valid() {
		return model.SyncItem{}, fmt.Errorf("unknown priority %q", priority)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return model.SyncItem{}, fmt.Errorf("marshal payload: %w", err)
	}

	item := model.SyncItem{
		ID:        util.NewID(),
		Type:      itemType,
		Priority:  priority,
		Payload:   body,
		CreatedAt: q.now().UTC(),
	}
	if ttl > 0 {
		exp := item.CreatedAt.Add(ttl)
		item.ExpiresAt = &exp
	}

	if err := q.store.Push(ctx, item); err != nil {
		return model.SyncItem{}, fmt.Errorf("push: %w", err)
	}
	metrics.SyncItemsTotal.WithLabelValues("enqueued", priority.String()).Inc()

	if priority == model.PriorityCritical {
		select {
		case q.urgent <- struct{}{}:
		default: // a signal is already pending
		}
	}
	return item, nil
}

// EnqueueSOS queues a life-safety signal on the Critical lane.
func (q *Queue) EnqueueSOS(ctx context.Context, payload any, ttl time.Duration) (model.SyncItem, error) {
	return q.Enqueue(ctx, "sos", payload, model.PriorityCritical, ttl)
}

// EnqueueResourceRequest queues a resource request on the High lane.
func (q *Queue) EnqueueResourceRequest(ctx context.Context, payload any, ttl time.Duration) (model.SyncItem, error) {
	return q.Enqueue(ctx, "resource_request", payload, model.PriorityHigh, ttl)
}

// EnqueueStatusUpdate queues a routine status ping on the Normal lane.
func (q *Queue) EnqueueStatusUpdate(ctx context.Context, payload any, ttl time.Duration) (model.SyncItem, error) {
	return q.Enqueue(ctx, "status_update", payload, model.PriorityNormal, ttl)
}

// Dequeue returns the head of the highest non-empty lane. Expired items are
// skipped (and counted) rather than returned.
func (q *Queue) Dequeue(ctx context.Context) (model.SyncItem, bool, error) {
	for {
		item, ok, err := q.store.PopHighest(ctx)
		if err != nil || !ok {
			return model.SyncItem{}, false, err
		}
		if item.Expired(q.now()) {
			q.countExpired(item)
			continue
		}
		return item, true, nil
	}
}

// DequeueBatch drains up to n items preserving strict priority order.
func (q *Queue) DequeueBatch(ctx context.Context, n int) ([]model.SyncItem, error) {
	items := make([]model.SyncItem, 0, n)
	for len(items) < n {
		item, ok, err := q.Dequeue(ctx)
		if err != nil {
			return items, err
		}
		if !ok {
			break
		}
		items = append(items, item)
	}
	return items, nil
}

// MarkSynced finalizes a successful delivery.
func (q *Queue) MarkSynced(item model.SyncItem) {
	q.synced.Add(1)
	q.lastSyncedNS.Store(q.now().UnixNano())
	metrics.SyncItemsTotal.WithLabelValues("synced", item.Priority.String()).Inc()
	logger.Log.Debug("sync item delivered",
		zap.String("item_id", item.ID),
		zap.String("lane", item.Priority.String()),
	)
}

// MarkFailed records a delivery failure. Below the attempt ceiling the item is
// re-enqueued at the tail of its own lane; at the ceiling it is counted as
// permanently failed and dropped, never silently.
func (q *Queue) MarkFailed(ctx context.Context, item model.SyncItem, cause error) error {
	item.Attempts++
	now := q.now().UTC()
	item.LastAttempt = &now

	if item.Attempts >= q.maxAttempts {
		q.failed.Add(1)
		metrics.SyncItemsTotal.WithLabelValues("failed", item.Priority.String()).Inc()
		logger.Log.Error("sync item permanently failed",
			zap.String("item_id", item.ID),
			zap.String("type", item.Type),
			zap.String("lane", item.Priority.String()),
			zap.Int("attempts", item.Attempts),
			zap.Error(cause),
		)
		return nil
	}

	metrics.SyncItemsTotal.WithLabelValues("retried", item.Priority.String()).Inc()
	logger.Log.Warn("sync item re-enqueued",
		zap.String("item_id", item.ID),
		zap.String("lane", item.Priority.String()),
		zap.Int("attempts", item.Attempts),
		zap.Error(cause),
	)
	return q.store.Push(ctx, item)
}

// CleanupExpired removes items whose ttl has elapsed regardless of lane.
func (q *Queue) CleanupExpired(ctx context.Context) (int, error) {
	dropped, err := q.store.DropExpired(ctx, q.now())
	for _, item := range dropped {
		q.countExpired(item)
	}
	return len(dropped), err
}

func (q *Queue) countExpired(item model.SyncItem) {
	metrics.SyncItemsTotal.WithLabelValues("expired", item.Priority.String()).Inc()
	logger.Log.Info("sync item expired",
		zap.String("item_id", item.ID),
		zap.String("lane", item.Priority.String()),
	)
}

// Status reports pending-per-lane counts, cumulative synced/failed totals, and
// the last successful sync time.
func (q *Queue) Status(ctx context.Context) (Status, error) {
	lens, err := q.store.Lens(ctx)
	if err != nil {
		return Status{}, err
	}
	for p, n := range lens {
		metrics.SyncPending.WithLabelValues(p.String()).Set(float64(n))
	}

	s := Status{
		Pending: lens,
		Synced:  q.synced.Load(),
		Failed:  q.failed.Load(),
	}
	if ns := q.lastSyncedNS.Load(); ns > 0 {
		t := time.Unix(0, ns).UTC()
		s.LastSyncedAt = &t
	}
	return s, nil
}
