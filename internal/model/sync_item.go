package model

import (
	"encoding/json"
	"strings"
	"time"
)

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Priorities lists all lanes in strict precedence order, highest first.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}

func (p Priority) String() string { return string(p) }

// ParsePriority normalizes input; empty => normal.
// Returns (value, true) if valid; otherwise (normal, false).
func ParsePriority(s string) (Priority, bool) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityCritical:
		return PriorityCritical, true
	case PriorityHigh:
		return PriorityHigh, true
	case "", PriorityNormal:
		return PriorityNormal, true
	case PriorityLow:
		return PriorityLow, true
	default:
		return PriorityNormal, false
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// RetryInterval is how long a consumer waits before retrying a failed item in
// this lane. Critical traffic is life-safety signalling and retries almost
// immediately; lower lanes tolerate increasing delay.
func (p Priority) RetryInterval() time.Duration {
	switch p {
	case PriorityCritical:
		return 5 * time.Second
	case PriorityHigh:
		return 60 * time.Second
	case PriorityLow:
		return 900 * time.Second
	default:
		return 300 * time.Second
	}
}

// SyncItem is one not-yet-delivered field mutation waiting in a priority lane.
type SyncItem struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Priority    Priority        `json:"priority"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	Attempts    int             `json:"attempts"`
	LastAttempt *time.Time      `json:"last_attempt,omitempty"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
}

// Expired reports whether the item's ttl has elapsed at the given instant.
// Items without an expiry never expire.
func (i SyncItem) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}
