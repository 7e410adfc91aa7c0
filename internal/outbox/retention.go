package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lightkeepers/fieldsync/internal/logger"
	"github.com/lightkeepers/fieldsync/internal/metrics"
	"github.com/lightkeepers/fieldsync/internal/repository"
)

// Retention prunes published rows past their keep window so the outbox table
// does not grow without bound during long deployments.
type Retention struct {
	repo     repository.OutboxRepository
	keep     time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewRetention(repo repository.OutboxRepository, keep, interval time.Duration) *Retention {
	if keep <= 0 {
		keep = 7 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Retention{repo: repo, keep: keep, interval: interval, now: time.Now}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (r *Retention) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep.
func (r *Retention) RunOnce(ctx context.Context) {
	cutoff := r.now().UTC().Add(-r.keep)
	n, err := r.repo.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		logger.Log.Warn("outbox retention sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		metrics.OutboxEventsTotal.WithLabelValues("pruned").Add(float64(n))
		logger.Log.Info("outbox retention sweep", zap.Int64("pruned", n))
	}
}
