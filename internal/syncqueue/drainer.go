package syncqueue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lightkeepers/fieldsync/internal/logger"
	"github.com/lightkeepers/fieldsync/internal/model"
)

// DeliverFunc hands one dequeued item to the upstream delivery pipeline.
type DeliverFunc func(ctx context.Context, item model.SyncItem) error

// Drainer is the queue's consumer. It drains lanes in strict priority order,
// paces retries per lane, and periodically sweeps expired items so the queue
// cannot grow without bound during an extended outage.
type Drainer struct {
	queue   *Queue
	deliver DeliverFunc

	interval        time.Duration
	cleanupInterval time.Duration
	now             func() time.Time

	lastCleanup time.Time
}

func NewDrainer(queue *Queue, deliver DeliverFunc, interval, cleanupInterval time.Duration) *Drainer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	return &Drainer{
		queue:           queue,
		deliver:         deliver,
		interval:        interval,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
	}
}

// Run drains on a fixed cadence and short-circuits the wait whenever a
// Critical item lands. After a failed delivery the loop pauses for the failed
// lane's retry interval; the urgent signal cuts that pause short too.
func (d *Drainer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.queue.Urgent():
		}

		pause, err := d.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Warn("sync drain pass failed", zap.Error(err))
			continue
		}
		if pause > 0 {
			timer := time.NewTimer(pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			case <-d.queue.Urgent():
				timer.Stop()
			}
		}
	}
}

// RunOnce drains until the queue is empty or a delivery fails. The returned
// duration is how long the caller should wait before the next pass: zero when
// the queue is drained, the failed item's lane retry interval otherwise.
func (d *Drainer) RunOnce(ctx context.Context) (time.Duration, error) {
	if d.now().Sub(d.lastCleanup) >= d.cleanupInterval {
		if _, err := d.queue.CleanupExpired(ctx); err != nil {
			logger.Log.Warn("sync queue cleanup failed", zap.Error(err))
		}
		d.lastCleanup = d.now()
	}

	for {
		item, ok, err := d.queue.Dequeue(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}

		if err := d.deliver(ctx, item); err != nil {
			if markErr := d.queue.MarkFailed(ctx, item, err); markErr != nil {
				return 0, markErr
			}
			return item.Priority.RetryInterval(), nil
		}
		d.queue.MarkSynced(item)
	}
}
