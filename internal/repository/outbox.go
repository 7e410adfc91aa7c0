package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lightkeepers/fieldsync/internal/model"
)

// ErrNotFound indicates the requested outbox row does not exist.
var ErrNotFound = errors.New("outbox event not found")

// OutboxRepository defines persistence for the outbox table.
type OutboxRepository interface {
	// Insert writes a single outbox event. If tx is nil, it will open/commit
	// an internal transaction; otherwise it uses the given tx so the event
	// commits atomically with the caller's state change.
	Insert(ctx context.Context, tx *sqlx.Tx, e model.OutboxEvent) error

	// FetchPending returns up to limit pending events ordered created_at ASC.
	FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error)

	// MarkPublished sets status=published and stamps published_at/processed_at.
	MarkPublished(ctx context.Context, id string, at time.Time) error

	// MarkFailed increments retry_count and records the error. Once the count
	// reaches maxRetries the row flips to status=failed and stays there until
	// a manual Retry.
	MarkFailed(ctx context.Context, id string, errMsg string, maxRetries int) error

	// ListFailed returns dead-lettered events for manual review.
	ListFailed(ctx context.Context, limit int) ([]model.OutboxEvent, error)

	// Retry resets a failed event to pending with retry_count=0.
	Retry(ctx context.Context, id string) error

	// DeletePublishedBefore prunes published rows older than cutoff and
	// returns how many were removed.
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// CountByStatus reports row counts keyed by status.
	CountByStatus(ctx context.Context) (map[model.EventStatus]int, error)
}

// OutboxRepositoryImpl is a sqlx-backed implementation.
type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

// NewOutboxRepository constructs an OutboxRepositoryImpl.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

// withTx runs fn in the provided tx, or starts a new transaction when tx is nil.
func (r *OutboxRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}

	return t.Commit()
}

func (r *OutboxRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, e model.OutboxEvent) error {
	const q = `
		INSERT INTO outbox
		    (id, event_type, aggregate_type, aggregate_id, payload, metadata, status, retry_count, created_at)
		VALUES
		    (?,  ?,          ?,              ?,            ?,       ?,        'pending', 0,       ?)
	`
	return r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			e.ID, e.EventType, e.AggregateType.String(), e.AggregateID,
			[]byte(e.Payload), []byte(e.Metadata), e.CreatedAt,
		)
		return err
	})
}

func (r *OutboxRepositoryImpl) FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	const q = `
		SELECT id, event_type, aggregate_type, aggregate_id, payload, metadata,
		       status, retry_count, last_error, created_at, published_at, processed_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT ?
	`
	var events []model.OutboxEvent
	if err := r.db.SelectContext(ctx, &events, q, limit); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *OutboxRepositoryImpl) MarkPublished(ctx context.Context, id string, at time.Time) error {
	const q = `
		UPDATE outbox
		SET status = 'published', published_at = ?, processed_at = ?
		WHERE id = ? AND status = 'pending'
	`
	res, err := r.db.ExecContext(ctx, q, at, at, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *OutboxRepositoryImpl) MarkFailed(ctx context.Context, id string, errMsg string, maxRetries int) error {
	// A single statement keeps the count and the status flip atomic; the
	// status is derived from the incremented value.
	const q = `
		UPDATE outbox
		SET retry_count = retry_count + 1,
		    last_error  = ?,
		    processed_at = ?,
		    status = IF(retry_count + 1 >= ?, 'failed', 'pending')
		WHERE id = ? AND status = 'pending'
	`
	res, err := r.db.ExecContext(ctx, q, errMsg, time.Now().UTC(), maxRetries, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *OutboxRepositoryImpl) ListFailed(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	const q = `
		SELECT id, event_type, aggregate_type, aggregate_id, payload, metadata,
		       status, retry_count, last_error, created_at, published_at, processed_at
		FROM outbox
		WHERE status = 'failed'
		ORDER BY created_at ASC
		LIMIT ?
	`
	var events []model.OutboxEvent
	if err := r.db.SelectContext(ctx, &events, q, limit); err != nil {
		return nil, err
	}
	return events, nil
}

func (r *OutboxRepositoryImpl) Retry(ctx context.Context, id string) error {
	const q = `
		UPDATE outbox
		SET status = 'pending', retry_count = 0, last_error = ''
		WHERE id = ? AND status = 'failed'
	`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *OutboxRepositoryImpl) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM outbox WHERE status = 'published' AND published_at < ?`
	res, err := r.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *OutboxRepositoryImpl) CountByStatus(ctx context.Context) (map[model.EventStatus]int, error) {
	const q = `SELECT status, COUNT(*) AS n FROM outbox GROUP BY status`
	rows := []struct {
		Status model.EventStatus `db:"status"`
		N      int               `db:"n"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, err
	}
	counts := make(map[model.EventStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.N
	}
	return counts, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
