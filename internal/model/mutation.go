package model

import (
	"encoding/json"
	"strings"
	"time"
)

type MutationOp string

const (
	OpCreate MutationOp = "create"
	OpUpdate MutationOp = "update"
	OpDelete MutationOp = "delete"
)

func (o MutationOp) String() string { return string(o) }

// ParseMutationOp normalizes input. Returns (value, true) if valid;
// otherwise (create, false).
func ParseMutationOp(s string) (MutationOp, bool) {
	switch MutationOp(strings.ToLower(strings.TrimSpace(s))) {
	case OpCreate:
		return OpCreate, true
	case OpUpdate:
		return OpUpdate, true
	case OpDelete:
		return OpDelete, true
	default:
		return OpCreate, false
	}
}

func (o MutationOp) Valid() bool {
	return o == OpCreate || o == OpUpdate || o == OpDelete
}

// Mutation is a locally-originated change persisted on the device before it is
// replayed against the server. It must survive process restarts, so it lives
// in durable storage from the moment the user acts.
type Mutation struct {
	ID        string          `json:"id"`
	Op        MutationOp      `json:"op"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entity_id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
}
