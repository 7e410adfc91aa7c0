package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lightkeepers/fieldsync/internal/metrics"
	"github.com/lightkeepers/fieldsync/internal/model"
	"github.com/lightkeepers/fieldsync/internal/repository"
	"github.com/lightkeepers/fieldsync/internal/util"
)

// Appender is the write side of the outbox. Domain modules call Append inside
// their own state-changing transaction; delivery happens later and is never
// awaited here.
type Appender struct {
	repo repository.OutboxRepository
}

func NewAppender(repo repository.OutboxRepository) *Appender {
	return &Appender{repo: repo}
}

// Append marshals the payload and metadata, assigns a ULID, and inserts the
// event through the repository. Pass the caller's tx so the event commits
// atomically with its cause; pass nil for standalone writes.
func (a *Appender) Append(
	ctx context.Context,
	tx *sqlx.Tx,
	eventType string,
	aggregateType model.AggregateType,
	aggregateID string,
	payload any,
	meta model.EventMetadata,
) (string, error) {
	if eventType == "" {
		return "", fmt.Errorf("empty event type")
	}
	if !aggregateType.Valid() {
		return "", fmt.Errorf("unknown aggregate type %q", aggregateType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	metaBody, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	e := model.OutboxEvent{
		ID:            util.NewID(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       body,
		Metadata:      metaBody,
		Status:        model.EventPending,
		CreatedAt:     time.Now().UTC(),
	}

	if err := a.repo.Insert(ctx, tx, e); err != nil {
		return "", fmt.Errorf("insert outbox: %w", err)
	}
	metrics.OutboxEventsTotal.WithLabelValues("appended").Inc()
	return e.ID, nil
}
