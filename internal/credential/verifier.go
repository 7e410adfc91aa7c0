package credential

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/lightkeepers/fieldsync/internal/logger"
	"github.com/lightkeepers/fieldsync/internal/metrics"
)

// Reason classifies why verification failed. Callers across the offline
// boundary only see Valid=false; the reason is for logs and metrics.
type Reason string

const (
	ReasonValid   Reason = "valid"
	ReasonInvalid Reason = "invalid"
	ReasonExpired Reason = "expired"
	ReasonRevoked Reason = "revoked"
)

// Result is the normalized verification outcome. Verification never returns
// an error: a device operating without connectivity cannot do anything useful
// with one.
type Result struct {
	Valid       bool
	Reason      Reason
	UserID      string
	Roles       []string
	Permissions []string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Verifier checks offline tokens using only locally available key material
// and the local revocation denylist.
type Verifier struct {
	issuer      string
	audience    string
	key         ed25519.PublicKey
	revocations RevocationStore
	renewWindow time.Duration
	now         func() time.Time
}

func NewVerifier(issuer, audience string, key ed25519.PublicKey, revocations RevocationStore, renewWindow time.Duration) *Verifier {
	if renewWindow <= 0 {
		renewWindow = 24 * time.Hour
	}
	return &Verifier{
		issuer:      issuer,
		audience:    audience,
		key:         key,
		revocations: revocations,
		renewWindow: renewWindow,
		now:         time.Now,
	}
}

// Verify checks signature, then expiry, then the revocation denylist. The
// ordering matters: a cryptographically well-formed token must still fail
// when expired or revoked.
func (v *Verifier) Verify(ctx context.Context, token string) Result {
	claims, ok := v.parse(token)
	if !ok {
		metrics.TokenVerifications.WithLabelValues(string(ReasonInvalid)).Inc()
		logger.Log.Warn("token rejected: bad signature or format")
		return Result{Valid: false, Reason: ReasonInvalid}
	}

	res := Result{
		Reason:      ReasonValid,
		UserID:      claims.Subject,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}
	if claims.IssuedAt != nil {
		res.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		res.ExpiresAt = claims.ExpiresAt.Time
	}

	now := v.now()
	if claims.ExpiresAt == nil || now.After(res.ExpiresAt) {
		res.Reason = ReasonExpired
		metrics.TokenVerifications.WithLabelValues(string(ReasonExpired)).Inc()
		logger.Log.Info("token rejected: expired", zap.String("user_id", res.UserID))
		return res
	}

	if v.revoked(ctx, token, res) {
		res.Reason = ReasonRevoked
		metrics.TokenVerifications.WithLabelValues(string(ReasonRevoked)).Inc()
		logger.Log.Info("token rejected: revoked", zap.String("user_id", res.UserID))
		return res
	}

	res.Valid = true
	metrics.TokenVerifications.WithLabelValues(string(ReasonValid)).Inc()
	return res
}

// ShouldRenew flags a still-valid token with less than the renew window
// remaining, so a renewal can be attempted whenever connectivity appears.
func (v *Verifier) ShouldRenew(ctx context.Context, token string) bool {
	res := v.Verify(ctx, token)
	if !res.Valid {
		return false
	}
	return res.ExpiresAt.Sub(v.now()) < v.renewWindow
}

func (v *Verifier) parse(token string) (*tokenClaims, bool) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		// Expiry is checked explicitly so it maps to its own reason.
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, false
	}
	if claims.Issuer != v.issuer {
		return nil, false
	}
	if v.audience != "" && !hasAudience(claims.Audience, v.audience) {
		return nil, false
	}
	return &claims, true
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

func (v *Verifier) revoked(ctx context.Context, token string, res Result) bool {
	if v.revocations == nil {
		return false
	}
	if hit, err := v.revocations.ContainsToken(ctx, TokenHash(token)); err == nil && hit {
		return true
	}
	if res.UserID != "" {
		if cutoff, ok, err := v.revocations.UserRevokedAt(ctx, res.UserID); err == nil && ok {
			if !res.IssuedAt.After(cutoff) {
				return true
			}
		}
	}
	return false
}
