package model

import (
	"encoding/json"
	"strings"
	"time"
)

type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventPublished EventStatus = "published"
	EventFailed    EventStatus = "failed"
)

func (s EventStatus) String() string { return string(s) }

func (s EventStatus) Valid() bool {
	return s == EventPending || s == EventPublished || s == EventFailed
}

type AggregateType string

const (
	AggregateAlert      AggregateType = "alert"
	AggregateIncident   AggregateType = "incident"
	AggregateTask       AggregateType = "task"
	AggregateResource   AggregateType = "resource"
	AggregatePerson     AggregateType = "person"
	AggregateComms      AggregateType = "comms"
	AggregateAttachment AggregateType = "attachment"
)

func (a AggregateType) String() string { return string(a) }

// ParseAggregateType normalizes input. Returns (value, true) if valid;
// otherwise (alert, false).
func ParseAggregateType(s string) (AggregateType, bool) {
	switch AggregateType(strings.ToLower(strings.TrimSpace(s))) {
	case AggregateAlert:
		return AggregateAlert, true
	case AggregateIncident:
		return AggregateIncident, true
	case AggregateTask:
		return AggregateTask, true
	case AggregateResource:
		return AggregateResource, true
	case AggregatePerson:
		return AggregatePerson, true
	case AggregateComms:
		return AggregateComms, true
	case AggregateAttachment:
		return AggregateAttachment, true
	default:
		return AggregateAlert, false
	}
}

func (a AggregateType) Valid() bool {
	_, ok := ParseAggregateType(string(a))
	return ok
}

// EventMetadata travels with every outbox event so subscribers can attribute
// and deduplicate deliveries.
type EventMetadata struct {
	UserID        string `json:"user_id,omitempty"`
	TenantID      string `json:"tenant_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	SchemaVersion int    `json:"schema_version,omitempty"`
}

// OutboxEvent is the DB entity persisted in the outbox table. It is created in
// the same transaction as the state change it describes and mutated only by
// the publisher afterwards.
type OutboxEvent struct {
	ID            string          `db:"id"`
	EventType     string          `db:"event_type"`
	AggregateType AggregateType   `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	Payload       json.RawMessage `db:"payload"`
	Metadata      json.RawMessage `db:"metadata"`
	Status        EventStatus     `db:"status"`
	RetryCount    int             `db:"retry_count"`
	LastError     string          `db:"last_error"`
	CreatedAt     time.Time       `db:"created_at"`
	PublishedAt   *time.Time      `db:"published_at"`
	ProcessedAt   *time.Time      `db:"processed_at"`
}

// Meta decodes the metadata column. A missing or malformed column yields zero
// metadata rather than an error; attribution is best effort.
func (e OutboxEvent) Meta() EventMetadata {
	var m EventMetadata
	if len(e.Metadata) > 0 {
		_ = json.Unmarshal(e.Metadata, &m)
	}
	return m
}
