package credential

import (
	"sync"
	"time"

	"github.com/lightkeepers/fieldsync/internal/model"
)

// PermissionCache holds time-boxed snapshots of each user's roles and
// permissions, used when a full token reissue is not possible but
// authorization must still be checked against recently fetched role data.
type PermissionCache struct {
	mu        sync.RWMutex
	snapshots map[string]model.PermissionSnapshot
	ttl       time.Duration
	now       func() time.Time
}

func NewPermissionCache(ttl time.Duration) *PermissionCache {
	if ttl <= 0 {
		ttl = 168 * time.Hour
	}
	return &PermissionCache{
		snapshots: make(map[string]model.PermissionSnapshot),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Cache stores a fresh snapshot, superseding any previous one for the user.
func (c *PermissionCache) Cache(userID string, roles, permissions []string) model.PermissionSnapshot {
	now := c.now().UTC()
	snap := model.PermissionSnapshot{
		UserID:      userID,
		Roles:       roles,
		Permissions: permissions,
		CachedAt:    now,
		ValidUntil:  now.Add(c.ttl),
	}

	c.mu.Lock()
	c.snapshots[userID] = snap
	c.mu.Unlock()
	return snap
}

// Get returns the user's snapshot if it has not outlived its TTL. A snapshot
// past validUntil is never consulted.
func (c *PermissionCache) Get(userID string) (model.PermissionSnapshot, bool) {
	c.mu.RLock()
	snap, ok := c.snapshots[userID]
	c.mu.RUnlock()
	if !ok || !snap.Usable(c.now()) {
		return model.PermissionSnapshot{}, false
	}
	return snap, true
}

// Drop removes the user's snapshot, typically on revocation.
func (c *PermissionCache) Drop(userID string) {
	c.mu.Lock()
	delete(c.snapshots, userID)
	c.mu.Unlock()
}
