package outbox

import (
	"context"
	"sync"

	"github.com/lightkeepers/fieldsync/internal/model"
)

// Handler processes one delivered event. Delivery is at-least-once, so
// handlers must be idempotent against duplicates.
type Handler func(ctx context.Context, e model.OutboxEvent) error

// WildcardEventType subscribes a handler to every event type.
const WildcardEventType = "*"

// Bus is the in-process subscriber registry. Domain modules register handlers
// for the event types they care about; the publisher dispatches through it.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for the given event type. Registration after
// the publisher has started is safe; the next poll picks it up.
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
}

// HandlersFor returns the handlers subscribed to eventType, including
// wildcard subscribers.
func (b *Bus) HandlersFor(eventType string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	specific := b.handlers[eventType]
	wild := b.handlers[WildcardEventType]
	if len(wild) == 0 {
		return specific
	}
	out := make([]Handler, 0, len(specific)+len(wild))
	out = append(out, specific...)
	out = append(out, wild...)
	return out
}
