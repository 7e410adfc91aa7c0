package credential

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lightkeepers/fieldsync/internal/model"
)

// tokenClaims is the internal claims type embedded in offline tokens.
type tokenClaims struct {
	jwt.RegisteredClaims
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// Issuer mints offline tokens: EdDSA-signed JWTs a field device can verify
// with only the public key, no server round trip.
type Issuer struct {
	issuer   string
	audience string
	key      ed25519.PrivateKey
	ttl      time.Duration
	now      func() time.Time
}

func NewIssuer(issuer, audience string, key ed25519.PrivateKey, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &Issuer{
		issuer:   issuer,
		audience: audience,
		key:      key,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Issue produces a signed token embedding the subject, role set, permission
// set, and a fixed-TTL expiry, plus a detached signature over the compact
// token usable for out-of-band verification.
func (i *Issuer) Issue(userID string, roles, permissions []string) (model.OfflineToken, error) {
	if userID == "" {
		return model.OfflineToken{}, fmt.Errorf("empty user id")
	}
	if len(i.key) != ed25519.PrivateKeySize {
		return model.OfflineToken{}, fmt.Errorf("issuer key is not configured")
	}

	issuedAt := i.now().UTC()
	expiresAt := issuedAt.Add(i.ttl)

	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Roles:       roles,
		Permissions: permissions,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(i.key)
	if err != nil {
		return model.OfflineToken{}, fmt.Errorf("sign token: %w", err)
	}

	detached := ed25519.Sign(i.key, []byte(signed))

	return model.OfflineToken{
		Token:       signed,
		Signature:   base64.RawURLEncoding.EncodeToString(detached),
		UserID:      userID,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
		Roles:       roles,
		Permissions: permissions,
	}, nil
}

// DecodeKeys decodes a base64 ed25519 keypair from config. The private key
// may be a 32-byte seed or a full 64-byte key.
func DecodeKeys(privB64, pubB64 string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	privRaw, err := base64.StdEncoding.DecodeString(privB64)
	if err != nil {
		return nil, nil, fmt.Errorf("decode private key: %w", err)
	}
	var priv ed25519.PrivateKey
	switch len(privRaw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(privRaw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(privRaw)
	default:
		return nil, nil, fmt.Errorf("private key must be %d or %d bytes", ed25519.SeedSize, ed25519.PrivateKeySize)
	}

	pubRaw, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil {
		return nil, nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(pubRaw) != ed25519.PublicKeySize {
		return nil, nil, fmt.Errorf("public key must be %d bytes", ed25519.PublicKeySize)
	}

	return priv, ed25519.PublicKey(pubRaw), nil
}
