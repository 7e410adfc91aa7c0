package model

import "time"

// OfflineToken is a self-contained signed credential. The detached signature
// lets a relay verify the token out-of-band without re-parsing the JWT.
type OfflineToken struct {
	Token       string    `json:"token"`
	Signature   string    `json:"signature"`
	UserID      string    `json:"user_id"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
}

// PermissionSnapshot is a time-boxed copy of a user's roles and permissions
// for authorization checks made while offline.
type PermissionSnapshot struct {
	UserID      string    `json:"user_id"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	CachedAt    time.Time `json:"cached_at"`
	ValidUntil  time.Time `json:"valid_until"`
}

// Usable reports whether the snapshot may still be consulted.
func (s PermissionSnapshot) Usable(now time.Time) bool {
	return now.Before(s.ValidUntil)
}
