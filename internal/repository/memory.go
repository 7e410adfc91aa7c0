package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lightkeepers/fieldsync/internal/model"
)

// MemoryOutboxRepository keeps outbox rows in process memory. Field relays run
// as a single binary without MySQL; tests use it to drive the publisher
// without a database. The tx argument is ignored since there is nothing to
// join a transaction with.
type MemoryOutboxRepository struct {
	mu     sync.Mutex
	events map[string]model.OutboxEvent
}

func NewMemoryOutboxRepository() *MemoryOutboxRepository {
	return &MemoryOutboxRepository{events: make(map[string]model.OutboxEvent)}
}

func (r *MemoryOutboxRepository) Insert(_ context.Context, _ *sqlx.Tx, e model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Status = model.EventPending
	e.RetryCount = 0
	r.events[e.ID] = e
	return nil
}

func (r *MemoryOutboxRepository) FetchPending(_ context.Context, limit int) ([]model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := make([]model.OutboxEvent, 0, len(r.events))
	for _, e := range r.events {
		if e.Status == model.EventPending {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *MemoryOutboxRepository) MarkPublished(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok || e.Status != model.EventPending {
		return ErrNotFound
	}
	e.Status = model.EventPublished
	e.PublishedAt = &at
	e.ProcessedAt = &at
	r.events[id] = e
	return nil
}

func (r *MemoryOutboxRepository) MarkFailed(_ context.Context, id string, errMsg string, maxRetries int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok || e.Status != model.EventPending {
		return ErrNotFound
	}
	now := time.Now().UTC()
	e.RetryCount++
	e.LastError = errMsg
	e.ProcessedAt = &now
	if e.RetryCount >= maxRetries {
		e.Status = model.EventFailed
	}
	r.events[id] = e
	return nil
}

func (r *MemoryOutboxRepository) ListFailed(_ context.Context, limit int) ([]model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	failed := make([]model.OutboxEvent, 0)
	for _, e := range r.events {
		if e.Status == model.EventFailed {
			failed = append(failed, e)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].CreatedAt.Before(failed[j].CreatedAt) })
	if limit > 0 && len(failed) > limit {
		failed = failed[:limit]
	}
	return failed, nil
}

func (r *MemoryOutboxRepository) Retry(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok || e.Status != model.EventFailed {
		return ErrNotFound
	}
	e.Status = model.EventPending
	e.RetryCount = 0
	e.LastError = ""
	r.events[id] = e
	return nil
}

func (r *MemoryOutboxRepository) DeletePublishedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, e := range r.events {
		if e.Status == model.EventPublished && e.PublishedAt != nil && e.PublishedAt.Before(cutoff) {
			delete(r.events, id)
			removed++
		}
	}
	return removed, nil
}

func (r *MemoryOutboxRepository) CountByStatus(_ context.Context) (map[model.EventStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[model.EventStatus]int)
	for _, e := range r.events {
		counts[e.Status]++
	}
	return counts, nil
}

// Get returns a copy of the stored event, mainly for tests.
func (r *MemoryOutboxRepository) Get(id string) (model.OutboxEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	return e, ok
}
