package credential

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenHash is the denylist key for a revoked token. Revocation never edits
// the token itself; the verifier consults this hash set instead.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RevocationStore is the local denylist. It is local-only until connectivity
// returns, so a device that never reconnects honors a revoked token until its
// natural expiry; that propagation window is part of the contract.
type RevocationStore interface {
	// AddToken denylists a single token by hash.
	AddToken(ctx context.Context, hash string) error

	// ContainsToken reports whether the hash is denylisted.
	ContainsToken(ctx context.Context, hash string) (bool, error)

	// RevokeUser invalidates every token the user was issued at or before the
	// given instant.
	RevokeUser(ctx context.Context, userID string, at time.Time) error

	// UserRevokedAt returns the user's revocation cutoff, if any.
	UserRevokedAt(ctx context.Context, userID string) (time.Time, bool, error)
}

// MemoryRevocationStore is the in-process denylist used on field devices.
type MemoryRevocationStore struct {
	mu     sync.RWMutex
	tokens map[string]struct{}
	users  map[string]time.Time
}

func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		tokens: make(map[string]struct{}),
		users:  make(map[string]time.Time),
	}
}

func (s *MemoryRevocationStore) AddToken(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[hash] = struct{}{}
	return nil
}

func (s *MemoryRevocationStore) ContainsToken(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[hash]
	return ok, nil
}

func (s *MemoryRevocationStore) RevokeUser(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.users[userID]; !ok || at.After(prev) {
		s.users[userID] = at
	}
	return nil
}

func (s *MemoryRevocationStore) UserRevokedAt(_ context.Context, userID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.users[userID]
	return at, ok, nil
}

// RedisRevocationStore backs the denylist with Redis so relays sharing an
// instance reconcile revocations as soon as they reconnect.
type RedisRevocationStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisRevocationStore(rdb *redis.Client, prefix string) *RedisRevocationStore {
	if prefix == "" {
		prefix = "revoked:"
	}
	return &RedisRevocationStore{rdb: rdb, prefix: prefix}
}

func (s *RedisRevocationStore) AddToken(ctx context.Context, hash string) error {
	return s.rdb.SAdd(ctx, s.prefix+"tokens", hash).Err()
}

func (s *RedisRevocationStore) ContainsToken(ctx context.Context, hash string) (bool, error) {
	return s.rdb.SIsMember(ctx, s.prefix+"tokens", hash).Result()
}

func (s *RedisRevocationStore) RevokeUser(ctx context.Context, userID string, at time.Time) error {
	return s.rdb.Set(ctx, s.prefix+"user:"+userID, strconv.FormatInt(at.UnixNano(), 10), 0).Err()
}

func (s *RedisRevocationStore) UserRevokedAt(ctx context.Context, userID string) (time.Time, bool, error) {
	raw, err := s.rdb.Get(ctx, s.prefix+"user:"+userID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ns, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(0, ns), true, nil
}
