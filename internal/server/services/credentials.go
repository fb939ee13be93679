package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/cryptox"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/logging"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/auth"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/repomanager"
)

// CredentialResolver turns a bearer value into the principal behind it.
type CredentialResolver interface {
	Resolve(ctx context.Context, bearer string) (models.Principal, error)
}

// AuthService resolves API credentials and presign tokens, and issues
// presign tokens on behalf of a credential.
type AuthService struct {
	runner      dbx.TxRunner
	repomanager repomanager.RepositoryManager
	presign     *auth.PresignService
	envelopes   *EnvelopeService
	log         logging.Logger
	now         func() time.Time
}

func NewAuthService(runner dbx.TxRunner, m repomanager.RepositoryManager, presign *auth.PresignService,
	envelopes *EnvelopeService, log logging.Logger) *AuthService {
	return &AuthService{
		runner:      runner,
		repomanager: m,
		presign:     presign,
		envelopes:   envelopes,
		log:         log.With("module", "auth"),
		now:         time.Now,
	}
}

func (s *AuthService) principalFor(ctx context.Context, lookup func(context.Context, string) (*models.ApiCredential, error), key string) (models.Principal, error) {
	c, err := lookup(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return models.Principal{}, common.ErrorUnauthorized
		}
		return models.Principal{}, err
	}
	if c.ExpiresAt != nil && !s.now().Before(*c.ExpiresAt) {
		return models.Principal{}, fmt.Errorf("%w: credential expired", common.ErrorUnauthorized)
	}
	return models.Principal{UserID: c.UserID, TeamID: c.TeamID, CredentialID: c.ID}, nil
}

// Resolve accepts either a presign token or an API credential token.
func (s *AuthService) Resolve(ctx context.Context, bearer string) (models.Principal, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return models.Principal{}, common.ErrorUnauthorized
	}
	repo := s.repomanager.ApiTokens(s.runner.Conn())

	if auth.LooksLikePresignToken(bearer) {
		claims, err := s.presign.Verify(bearer, "")
		if err != nil {
			return models.Principal{}, err
		}
		p, err := s.principalFor(ctx, repo.GetByID, claims.Subject)
		if err != nil {
			return models.Principal{}, err
		}
		p.Scope = claims.Scope
		p.ViaPresign = true
		return p, nil
	}

	return s.principalFor(ctx, repo.GetByTokenHash, cryptox.HashToken(bearer))
}

// IssuePresign mints a presign token for the caller's credential. When
// envelopeRef is set the token is scoped to that envelope, which must be
// visible to the caller. Presign tokens cannot mint further tokens.
func (s *AuthService) IssuePresign(ctx context.Context, p models.Principal, ttlMinutes *int, envelopeRef EnvelopeRef) (*models.PresignToken, error) {
	if p.ViaPresign || p.CredentialID == "" {
		return nil, fmt.Errorf("%w: presign tokens require an API credential", common.ErrorUnauthorized)
	}

	scope := ""
	if envelopeRef.ID != "" {
		env, err := s.envelopes.load(ctx, s.runner.Conn(), p, envelopeRef, false)
		if err != nil {
			return nil, err
		}
		scope = auth.EnvelopeScope(env.ID)
	}

	t, err := s.presign.Issue(p.CredentialID, ttlMinutes, scope)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "presign token issued", "credential_id", p.CredentialID, "scope", scope, "expires_at", t.ExpiresAt)
	return t, nil
}

// VerifyPresign checks a token. When envelopeRef is set and the token is
// scoped, the reference is resolved the same way the envelope routes resolve
// it and must name the scoped envelope. An unknown envelope fails the same way
// as a mismatch.
func (s *AuthService) VerifyPresign(ctx context.Context, token string, envelopeRef EnvelopeRef) (*auth.PresignClaims, error) {
	claims, err := s.presign.Verify(token, "")
	if err != nil {
		return nil, err
	}
	if envelopeRef.ID == "" || claims.Scope == "" {
		return claims, nil
	}

	env, err := s.envelopes.find(ctx, s.runner.Conn(), envelopeRef)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrInvalidRequest) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}
	if env.DeletedAt != nil || !auth.ScopeAllows(claims.Scope, env.ID) {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}
