// Package auth issues and verifies presign tokens: short-lived HS256 JWTs
// that stand in for an API credential in embedded and headless flows.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// MaxPresignTTLMinutes is seven days.
	MaxPresignTTLMinutes = 7 * 24 * 60

	issuer = "envelopekeeper"

	envelopeScopePrefix = "envelope:"
)

// PresignClaims are the registered claims plus an optional scope.
// Subject carries the issuing credential id.
type PresignClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

// EnvelopeScope returns the scope that restricts a token to one envelope.
func EnvelopeScope(envelopeID string) string {
	return envelopeScopePrefix + envelopeID
}

// ScopeAllows reports whether a token carrying scope may act on an envelope
// known by any of ids. An empty scope allows everything the credential can see.
func ScopeAllows(scope string, ids ...string) bool {
	if scope == "" {
		return true
	}
	for _, id := range ids {
		if id != "" && scope == EnvelopeScope(id) {
			return true
		}
	}
	return false
}

// PresignService signs and checks presign tokens. Verification needs no
// storage: the signature and the exp claim are all it looks at.
type PresignService struct {
	secret     []byte
	defaultTTL time.Duration
	now        func() time.Time
}

func NewPresignService(secret []byte, defaultTTL time.Duration) *PresignService {
	return &PresignService{secret: secret, defaultTTL: defaultTTL, now: time.Now}
}

// Issue mints a token for credentialID. ttlMinutes nil selects the default;
// values outside [0, MaxPresignTTLMinutes] are rejected, never clamped.
func (s *PresignService) Issue(credentialID string, ttlMinutes *int, scope string) (*models.PresignToken, error) {
	if credentialID == "" {
		return nil, common.ErrorUnauthorized
	}

	ttl := s.defaultTTL
	if ttlMinutes != nil {
		if *ttlMinutes < 0 || *ttlMinutes > MaxPresignTTLMinutes {
			return nil, fmt.Errorf("%w: ttl must be between 0 and %d minutes, got %d",
				common.ErrInvalidRequest, MaxPresignTTLMinutes, *ttlMinutes)
		}
		ttl = time.Duration(*ttlMinutes) * time.Minute
	}

	if scope != "" {
		if !strings.HasPrefix(scope, envelopeScopePrefix) || len(scope) == len(envelopeScopePrefix) {
			return nil, fmt.Errorf("%w: unsupported scope %q", common.ErrInvalidRequest, scope)
		}
	}

	issuedAt := jwt.NewNumericDate(s.now())
	expiresAt := jwt.NewNumericDate(issuedAt.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, PresignClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   credentialID,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
		},
		Scope: scope,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	return &models.PresignToken{
		Token:        signed,
		CredentialID: credentialID,
		Scope:        scope,
		IssuedAt:     issuedAt.Time,
		ExpiresAt:    expiresAt.Time,
	}, nil
}

// Verify checks the signature, expiry and, when requiredScope is given, that
// a scoped token was scoped to it. Every failure is common.ErrInvalidToken so
// callers cannot tell an expired token from a forged one.
func (s *PresignService) Verify(tokenString, requiredScope string) (*PresignClaims, error) {
	claims := &PresignClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	if requiredScope != "" && claims.Scope != "" && claims.Scope != requiredScope {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

// LooksLikePresignToken reports whether a bearer value has JWT shape, so the
// caller can route it here instead of to the API credential lookup.
func LooksLikePresignToken(bearer string) bool {
	return strings.Count(bearer, ".") == 2
}
