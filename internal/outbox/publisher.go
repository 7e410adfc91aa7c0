package outbox

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lightkeepers/fieldsync/internal/logger"
	"github.com/lightkeepers/fieldsync/internal/metrics"
	"github.com/lightkeepers/fieldsync/internal/model"
	"github.com/lightkeepers/fieldsync/internal/repository"
)

// Publisher drains pending outbox rows and dispatches them to local
// subscribers. Each event is processed independently so one poisoned event
// cannot block the batch.
type Publisher struct {
	repo       repository.OutboxRepository
	bus        *Bus
	batchSize  int
	maxRetries int
	interval   time.Duration
	now        func() time.Time

	lastPublished atomic.Int64 // unix nanos of the most recent successful delivery
}

// Status is the operator-facing snapshot of outbox health.
type Status struct {
	Pending         int        `json:"pending"`
	Published       int        `json:"published"`
	Failed          int        `json:"failed"`
	LastPublishedAt *time.Time `json:"last_published_at,omitempty"`
}

func NewPublisher(repo repository.OutboxRepository, bus *Bus, batchSize, maxRetries int, interval time.Duration) *Publisher {
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Publisher{
		repo:       repo,
		bus:        bus,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		interval:   interval,
		now:        time.Now,
	}
}

// Run polls on a fixed interval until ctx is cancelled. Storage errors skip
// the cycle; the next tick retries.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				logger.Log.Warn("outbox poll skipped", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single poll/dispatch cycle. Exposed so tests and
// connectivity-change hooks can drive the publisher without wall-clock waits.
func (p *Publisher) RunOnce(ctx context.Context) error {
	events, err := p.repo.FetchPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("fetch pending: %w", err)
	}

	for _, e := range events {
		p.dispatch(ctx, e)
	}
	return nil
}

func (p *Publisher) dispatch(ctx context.Context, e model.OutboxEvent) {
	if err := p.deliver(ctx, e); err != nil {
		metrics.OutboxEventsTotal.WithLabelValues("retried").Inc()
		logger.Log.Warn("outbox delivery failed",
			zap.String("event_id", e.ID),
			zap.String("event_type", e.EventType),
			zap.Int("retry_count", e.RetryCount+1),
			zap.Error(err),
		)
		if markErr := p.repo.MarkFailed(ctx, e.ID, err.Error(), p.maxRetries); markErr != nil {
			logger.Log.Error("outbox mark failed", zap.String("event_id", e.ID), zap.Error(markErr))
			return
		}
		if e.RetryCount+1 >= p.maxRetries {
			metrics.OutboxEventsTotal.WithLabelValues("failed").Inc()
			logger.Log.Error("outbox event dead-lettered",
				zap.String("event_id", e.ID),
				zap.String("event_type", e.EventType),
			)
		}
		return
	}

	if err := p.repo.MarkPublished(ctx, e.ID, p.now().UTC()); err != nil {
		// Delivery succeeded but the status write did not; the event stays
		// pending and subscribers will see it again.
		logger.Log.Error("outbox mark published", zap.String("event_id", e.ID), zap.Error(err))
		return
	}
	p.lastPublished.Store(p.now().UnixNano())
	metrics.OutboxEventsTotal.WithLabelValues("published").Inc()
}

// Status reports per-status counts and the last successful delivery time.
func (p *Publisher) Status(ctx context.Context) (Status, error) {
	counts, err := p.repo.CountByStatus(ctx)
	if err != nil {
		return Status{}, err
	}
	s := Status{
		Pending:   counts[model.EventPending],
		Published: counts[model.EventPublished],
		Failed:    counts[model.EventFailed],
	}
	if ns := p.lastPublished.Load(); ns > 0 {
		t := time.Unix(0, ns).UTC()
		s.LastPublishedAt = &t
	}
	return s, nil
}

// deliver runs every subscriber for the event, converting panics into errors
// so a misbehaving handler never kills the poll loop.
func (p *Publisher) deliver(ctx context.Context, e model.OutboxEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()

	handlers := p.bus.HandlersFor(e.EventType)
	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
