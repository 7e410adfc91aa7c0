package devicesync

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

// ErrSyncInProgress is returned when a sync pass is already running.
// Overlapping triggers are coalesced, not parallelized, so the same record
// is never delivered twice by concurrent passes.
var ErrSyncInProgress = fmt.Errorf("sync already in progress")

// Report summarizes one sync pass.
type Report struct {
	Attempted  int `json:"attempted"`
	Synced     int `json:"synced"`
	Failed     int `json:"failed"`
	Backlogged int `json:"backlogged"`
}

// Manager is the client-side durable sync manager. Mutations are persisted
// before AddToQueue returns and replayed oldest-first when connectivity
// allows.
type Manager struct {
	store       Store
	remote      Remote
	maxAttempts int
	now         func() time.Time

	syncing atomic.Bool
}

func NewManager(store Store, remote Remote, maxAttempts int) *Manager {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Manager{
		store:       store,
		remote:      remote,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// AddToQueue persists a mutation record to durable storage before returning.
// The caller may report optimistic success to the user once this returns.
func (m *Manager) AddToQueue(ctx context.Context, op model.MutationOp, entity, entityID string, payload any) (model.Mutation, error) {
	if !op.Valid() {
		return model.Mutation{}, fmt.Errorf("unknown mutation op %q", op)
	}
	if entity == "" {
		return model.Mutation{}, fmt.Errorf("empty entity")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return model.Mutation{}, fmt.Errorf("marshal payload: %w", err)
	}

	rec := model.Mutation{
		ID:        util.NewID(),
		Op:        op,
		Entity:    entity,
		EntityID:  entityID,
		Payload:   body,
		CreatedAt: m.now().UTC(),
	}
	if err := m.store.Put(ctx, rec); err != nil {
		return model.Mutation{}, fmt.Errorf("persist mutation: %w", err)
	}
	return rec, nil
}

// ProcessSyncQueue replays persisted mutations oldest-first. It is
// non-reentrant; a second trigger while a pass is running returns
// ErrSyncInProgress. Records at the attempt ceiling are left in place as a
// manual-intervention backlog and skipped.
func (m *Manager) ProcessSyncQueue(ctx context.Context) (Report, error) {
	if !m.syncing.CompareAndSwap(false, true) {
		return Report{}, ErrSyncInProgress
	}
	defer m.syncing.Store(false)

	records, err := m.store.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list mutations: %w", err)
	}

	var report Report
	for _, rec := range records {
		if rec.Attempts >= m.maxAttempts {
			report.Backlogged++
			continue
		}
		report.Attempted++

		if err := m.remote.Apply(ctx, rec); err != nil {
			report.Failed++
			rec.Attempts++
			rec.LastError = err.Error()
			if rec.Attempts >= m.maxAttempts {
				report.Backlogged++
				metrics.MutationsReplayed.WithLabelValues("backlogged").Inc()
				logger.Log.Error("mutation moved to manual backlog",
					zap.String("mutation_id", rec.ID),
					zap.String("entity", rec.Entity),
					zap.Int("attempts", rec.Attempts),
					zap.Error(err),
				)
			} else {
				metrics.MutationsReplayed.WithLabelValues("retried").Inc()
				logger.Log.Warn("mutation replay failed",
					zap.String("mutation_id", rec.ID),
					zap.Int("attempts", rec.Attempts),
					zap.Error(err),
				)
			}
			if updErr := m.store.Update(ctx, rec); updErr != nil {
				logger.Log.Error("mutation update failed", zap.String("mutation_id", rec.ID), zap.Error(updErr))
			}
			continue
		}

		if err := m.store.Delete(ctx, rec.ID); err != nil {
			// The mutation will be replayed next pass; the server must treat
			// it idempotently, same as outbox subscribers.
			logger.Log.Error("mutation delete failed", zap.String("mutation_id", rec.ID), zap.Error(err))
		}
		report.Synced++
		metrics.MutationsReplayed.WithLabelValues("synced").Inc()
	}
	return report, nil
}

// Run triggers a sync pass periodically and whenever the connectivity signal
// fires. An in-flight pass absorbs extra triggers.
func (m *Manager) Run(ctx context.Context, interval time.Duration, online <-chan struct{}) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-online:
		}
		if _, err := m.ProcessSyncQueue(ctx); err != nil && err != ErrSyncInProgress {
			logger.Log.Warn("sync pass failed", zap.Error(err))
		}
	}
}

// ListBacklog returns records that exhausted their retries and need manual
// intervention.
func (m *Manager) ListBacklog(ctx context.Context) ([]model.Mutation, error) {
	records, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var backlog []model.Mutation
	for _, rec := range records {
		if rec.Attempts >= m.maxAttempts {
			backlog = append(backlog, rec)
		}
	}
	return backlog, nil
}

// PendingCount is the background indicator surfaced to the user while queued
// work awaits connectivity.
func (m *Manager) PendingCount(ctx context.Context) (int, error) {
	records, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}
