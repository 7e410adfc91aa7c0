package syncqueue

import (
	"context"
	"sync"
	"time"

	"github.com/lightkeepers/fieldsync/internal/model"
)

// MemoryStore keeps lanes as in-process slices guarded by a single mutex.
// Enqueue/dequeue never touch I/O, so a caller reporting an SOS is never
// stalled by the store.
type MemoryStore struct {
	mu    sync.Mutex
	lanes map[model.Priority][]model.SyncItem
}

func NewMemoryStore() *MemoryStore {
	lanes := make(map[model.Priority][]model.SyncItem, len(model.Priorities))
	for _, p := range model.Priorities {
		lanes[p] = nil
	}
	return &MemoryStore{lanes: lanes}
}

func (s *MemoryStore) Push(_ context.Context, item model.SyncItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lanes[item.Priority] = append(s.lanes[item.Priority], item)
	return nil
}

func (s *MemoryStore) PopHighest(_ context.Context) (model.SyncItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range model.Priorities {
		lane := s.lanes[p]
		if len(lane) == 0 {
			continue
		}
		item := lane[0]
		s.lanes[p] = lane[1:]
		return item, true, nil
	}
	return model.SyncItem{}, false, nil
}

func (s *MemoryStore) Lens(_ context.Context) (map[model.Priority]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lens := make(map[model.Priority]int, len(model.Priorities))
	for _, p := range model.Priorities {
		lens[p] = len(s.lanes[p])
	}
	return lens, nil
}

func (s *MemoryStore) DropExpired(_ context.Context, now time.Time) ([]model.SyncItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dropped []model.SyncItem
	for _, p := range model.Priorities {
		kept := s.lanes[p][:0]
		for _, item := range s.lanes[p] {
			if item.Expired(now) {
				dropped = append(dropped, item)
				continue
			}
			kept = append(kept, item)
		}
		s.lanes[p] = kept
	}
	return dropped, nil
}
