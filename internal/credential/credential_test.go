package credential

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, now func() time.Time) *Service {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	issuer := NewIssuer("fieldsync", "fieldsync-field", priv, 72*time.Hour)
	issuer.now = now
	revocations := NewMemoryRevocationStore()
	verifier := NewVerifier("fieldsync", "fieldsync-field", pub, revocations, 24*time.Hour)
	verifier.now = now
	cache := NewPermissionCache(168 * time.Hour)
	cache.now = now

	return NewService(issuer, verifier, revocations, cache)
}

func TestIssueAndVerify(t *testing.T) {
	svc := newTestService(t, time.Now)

	tok, err := svc.Issue("u1", []string{"medic"}, []string{"report:write", "sos:send"})
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Token)
	assert.NotEmpty(t, tok.Signature)
	assert.Equal(t, 72*time.Hour, tok.ExpiresAt.Sub(tok.IssuedAt))

	res := svc.Verify(context.Background(), tok.Token)
	require.True(t, res.Valid)
	assert.Equal(t, ReasonValid, res.Reason)
	assert.Equal(t, "u1", res.UserID)
	assert.Equal(t, []string{"medic"}, res.Roles)
	assert.Equal(t, []string{"report:write", "sos:send"}, res.Permissions)
}

func TestDetachedSignatureVerifies(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	issuer := NewIssuer("fieldsync", "fieldsync-field", priv, 72*time.Hour)
	tok, err := issuer.Issue("u1", nil, nil)
	require.NoError(t, err)

	sig, err := base64.RawURLEncoding.DecodeString(tok.Signature)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, []byte(tok.Token), sig))
}

func TestTokenExpiryBoundary(t *testing.T) {
	issued := time.Now()
	clock := issued
	now := func() time.Time { return clock }

	svc := newTestService(t, now)
	tok, err := svc.Issue("u1", nil, nil)
	require.NoError(t, err)

	// valid one hour before expiry
	clock = issued.Add(71 * time.Hour)
	res := svc.Verify(context.Background(), tok.Token)
	assert.True(t, res.Valid)

	// invalid one hour after
	clock = issued.Add(73 * time.Hour)
	res = svc.Verify(context.Background(), tok.Token)
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonExpired, res.Reason)
}

func TestRevokeFailsImmediately(t *testing.T) {
	svc := newTestService(t, time.Now)
	ctx := context.Background()

	tok, err := svc.Issue("u1", []string{"driver"}, nil)
	require.NoError(t, err)
	require.True(t, svc.Verify(ctx, tok.Token).Valid)

	require.NoError(t, svc.Revoke(ctx, tok.Token))

	res := svc.Verify(ctx, tok.Token)
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonRevoked, res.Reason)

	// revocation also clears the cached snapshot
	_, ok := svc.GetCachedPermissions("u1")
	assert.False(t, ok)
}

func TestRevokeAllForUser(t *testing.T) {
	clock := time.Now()
	svc := newTestService(t, func() time.Time { return clock })
	ctx := context.Background()

	tok1, err := svc.Issue("u1", nil, nil)
	require.NoError(t, err)
	clock = clock.Add(time.Minute)
	tok2, err := svc.Issue("u1", nil, nil)
	require.NoError(t, err)
	other, err := svc.Issue("u2", nil, nil)
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	require.NoError(t, svc.RevokeAllForUser(ctx, "u1"))

	assert.False(t, svc.Verify(ctx, tok1.Token).Valid)
	assert.False(t, svc.Verify(ctx, tok2.Token).Valid)
	assert.True(t, svc.Verify(ctx, other.Token).Valid)

	// a token issued after the revocation cutoff is accepted again
	clock = clock.Add(time.Minute)
	fresh, err := svc.Issue("u1", nil, nil)
	require.NoError(t, err)
	assert.True(t, svc.Verify(ctx, fresh.Token).Valid)
}

func TestMalformedAndForeignTokensRejected(t *testing.T) {
	svc := newTestService(t, time.Now)
	ctx := context.Background()

	res := svc.Verify(ctx, "not-a-token")
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonInvalid, res.Reason)

	// token signed by a different key
	otherSvc := newTestService(t, time.Now)
	foreign, err := otherSvc.Issue("u1", nil, nil)
	require.NoError(t, err)
	res = svc.Verify(ctx, foreign.Token)
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonInvalid, res.Reason)
}

func TestShouldRenewWindow(t *testing.T) {
	issued := time.Now()
	clock := issued
	svc := newTestService(t, func() time.Time { return clock })
	ctx := context.Background()

	tok, err := svc.Issue("u1", nil, nil)
	require.NoError(t, err)

	clock = issued.Add(time.Hour)
	assert.False(t, svc.ShouldRenew(ctx, tok.Token), "fresh token needs no renewal")

	clock = issued.Add(49 * time.Hour) // under 24h remaining
	assert.True(t, svc.ShouldRenew(ctx, tok.Token))

	clock = issued.Add(73 * time.Hour) // already expired, renewal is pointless
	assert.False(t, svc.ShouldRenew(ctx, tok.Token))
}

func TestPermissionCacheTTL(t *testing.T) {
	cachedAt := time.Now()
	clock := cachedAt
	cache := NewPermissionCache(168 * time.Hour)
	cache.now = func() time.Time { return clock }

	cache.Cache("u1", []string{"logistics"}, []string{"resource:request"})

	snap, ok := cache.Get("u1")
	require.True(t, ok)
	assert.Equal(t, []string{"logistics"}, snap.Roles)

	clock = cachedAt.Add(167 * time.Hour)
	_, ok = cache.Get("u1")
	assert.True(t, ok)

	clock = cachedAt.Add(169 * time.Hour)
	_, ok = cache.Get("u1")
	assert.False(t, ok, "snapshot past validUntil must never be consulted")
}

func TestCacheSuperseded(t *testing.T) {
	cache := NewPermissionCache(168 * time.Hour)
	cache.Cache("u1", []string{"medic"}, nil)
	cache.Cache("u1", []string{"coordinator"}, nil)

	snap, ok := cache.Get("u1")
	require.True(t, ok)
	assert.Equal(t, []string{"coordinator"}, snap.Roles)
}
