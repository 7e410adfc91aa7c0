package credential

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lightkeepers/fieldsync/internal/logger"
	"github.com/lightkeepers/fieldsync/internal/model"
)

// Service is the offline credential subsystem: issuing, verifying, revoking,
// and permission caching behind one surface.
type Service struct {
	issuer      *Issuer
	verifier    *Verifier
	revocations RevocationStore
	cache       *PermissionCache
}

func NewService(issuer *Issuer, verifier *Verifier, revocations RevocationStore, cache *PermissionCache) *Service {
	return &Service{
		issuer:      issuer,
		verifier:    verifier,
		revocations: revocations,
		cache:       cache,
	}
}

// Issue mints a token and primes the permission cache, so authorization keeps
// working even if the device goes dark immediately afterwards.
func (s *Service) Issue(userID string, roles, permissions []string) (model.OfflineToken, error) {
	tok, err := s.issuer.Issue(userID, roles, permissions)
	if err != nil {
		return model.OfflineToken{}, err
	}
	s.cache.Cache(userID, roles, permissions)
	return tok, nil
}

// Verify checks the token against local key material and the denylist.
func (s *Service) Verify(ctx context.Context, token string) Result {
	return s.verifier.Verify(ctx, token)
}

// ShouldRenew reports whether the token is inside the renewal window.
func (s *Service) ShouldRenew(ctx context.Context, token string) bool {
	return s.verifier.ShouldRenew(ctx, token)
}

// Revoke denylists a single token and clears the holder's cached permissions.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if err := s.revocations.AddToken(ctx, TokenHash(token)); err != nil {
		return fmt.Errorf("denylist token: %w", err)
	}
	// Best effort: read the subject so the cache can be cleared too. The
	// token may be expired; revocation must still land.
	if claims, ok := s.verifier.parse(token); ok && claims.Subject != "" {
		s.cache.Drop(claims.Subject)
		logger.Log.Info("token revoked", zap.String("user_id", claims.Subject))
	} else {
		logger.Log.Info("token revoked (unparseable subject)")
	}
	return nil
}

// RevokeAllForUser invalidates every token issued to the user up to now and
// clears their cached permissions.
func (s *Service) RevokeAllForUser(ctx context.Context, userID string) error {
	if err := s.revocations.RevokeUser(ctx, userID, s.verifier.now().UTC()); err != nil {
		return fmt.Errorf("revoke user: %w", err)
	}
	s.cache.Drop(userID)
	logger.Log.Info("all tokens revoked for user", zap.String("user_id", userID))
	return nil
}

// CachePermissions refreshes the user's snapshot from opportunistically
// fetched role data.
func (s *Service) CachePermissions(userID string, roles, permissions []string) model.PermissionSnapshot {
	return s.cache.Cache(userID, roles, permissions)
}

// GetCachedPermissions returns the user's snapshot if still inside its TTL.
func (s *Service) GetCachedPermissions(userID string) (model.PermissionSnapshot, bool) {
	return s.cache.Get(userID)
}
