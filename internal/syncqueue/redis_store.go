package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lightkeepers/fieldsync/internal/model"
)

// RedisStore keeps each lane as a Redis list so queued items survive relay
// restarts. Items are JSON-encoded; RPUSH/LPOP preserve FIFO order per lane.
type RedisStore struct {
	rdb    *redis.Client
	prefix string // e.g. "sync:lane:"
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "sync:lane:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) key(p model.Priority) string { return s.prefix + p.String() }

func (s *RedisStore) Push(ctx context.Context, item model.SyncItem) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return s.rdb.RPush(ctx, s.key(item.Priority), raw).Err()
}

func (s *RedisStore) PopHighest(ctx context.Context) (model.SyncItem, bool, error) {
	for _, p := range model.Priorities {
		raw, err := s.rdb.LPop(ctx, s.key(p)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return model.SyncItem{}, false, err
		}
		var item model.SyncItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return model.SyncItem{}, false, err
		}
		return item, true, nil
	}
	return model.SyncItem{}, false, nil
}

func (s *RedisStore) Lens(ctx context.Context) (map[model.Priority]int, error) {
	lens := make(map[model.Priority]int, len(model.Priorities))
	for _, p := range model.Priorities {
		n, err := s.rdb.LLen(ctx, s.key(p)).Result()
		if err != nil {
			return nil, err
		}
		lens[p] = int(n)
	}
	return lens, nil
}

func (s *RedisStore) DropExpired(ctx context.Context, now time.Time) ([]model.SyncItem, error) {
	var dropped []model.SyncItem
	for _, p := range model.Priorities {
		key := s.key(p)
		raws, err := s.rdb.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			return dropped, err
		}

		kept := make([]any, 0, len(raws))
		var laneDropped []model.SyncItem
		for _, raw := range raws {
			var item model.SyncItem
			if err := json.Unmarshal([]byte(raw), &item); err != nil {
				// Unreadable entries are dropped with the expired ones.
				continue
			}
			if item.Expired(now) {
				laneDropped = append(laneDropped, item)
				continue
			}
			kept = append(kept, raw)
		}
		if len(laneDropped) == 0 {
			continue
		}

		// Rewrite the lane atomically so a concurrent push lands after the
		// surviving items.
		pipe := s.rdb.TxPipeline()
		pipe.Del(ctx, key)
		if len(kept) > 0 {
			pipe.RPush(ctx, key, kept...)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return dropped, err
		}
		dropped = append(dropped, laneDropped...)
	}
	return dropped, nil
}
