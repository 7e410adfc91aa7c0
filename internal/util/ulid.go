package util

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// One shared monotonic source keeps IDs minted within the same millisecond in
// issue order; a per-call source would randomize them.
var entropy = &ulid.LockedMonotonicReader{MonotonicReader: ulid.Monotonic(rand.Reader, 0)}

// NewID generates a new ULID string. ULIDs sort lexicographically by creation
// time, which the queues rely on for oldest-first iteration.
func NewID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
