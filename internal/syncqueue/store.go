package syncqueue

import (
	"context"
	"time"

	"github.com/lightkeepers/fieldsync/internal/model"
)

// Store persists the four priority lanes. Implementations keep FIFO order
// inside a lane; lane precedence is the queue's concern.
type Store interface {
	// Push appends the item to the tail of its lane.
	Push(ctx context.Context, item model.SyncItem) error

	// PopHighest removes and returns the head of the highest non-empty lane.
	// ok is false when every lane is empty.
	PopHighest(ctx context.Context) (item model.SyncItem, ok bool, err error)

	// Lens reports the number of waiting items per lane.
	Lens(ctx context.Context) (map[model.Priority]int, error)

	// DropExpired removes items whose ttl elapsed before now and returns the
	// removed items so the caller can count and log them.
	DropExpired(ctx context.Context, now time.Time) ([]model.SyncItem, error)
}
