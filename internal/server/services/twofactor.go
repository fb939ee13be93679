package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/cryptox"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/logging"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/config"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// TwoFactorCodeLength is the number of digits in a signing code.
const TwoFactorCodeLength = 6

// IssuedTwoFactorToken is the only place the plaintext code ever appears.
type IssuedTwoFactorToken struct {
	Token        string    `json:"token"`
	TokenID      string    `json:"tokenId"`
	ExpiresAt    time.Time `json:"expiresAt"`
	TTLSeconds   int       `json:"ttlSeconds"`
	AttemptLimit int       `json:"attemptLimit"`
	IssuedAt     time.Time `json:"issuedAt"`
}

// TwoFactorService issues and verifies one-time signing codes bound to a
// recipient of an envelope. Only an argon2id hash of each code is stored.
type TwoFactorService struct {
	runner       dbx.TxRunner
	repomanager  repomanager.RepositoryManager
	envelopes    *EnvelopeService
	audit        *AuditRecorder
	ttl          time.Duration
	attemptLimit int
	log          logging.Logger
	now          func() time.Time
}

func NewTwoFactorService(runner dbx.TxRunner, m repomanager.RepositoryManager, envelopes *EnvelopeService,
	audit *AuditRecorder, cfg *config.Config, log logging.Logger) *TwoFactorService {
	return &TwoFactorService{
		runner:       runner,
		repomanager:  m,
		envelopes:    envelopes,
		audit:        audit,
		ttl:          cfg.TwoFactorTTL,
		attemptLimit: cfg.TwoFactorAttemptLimit,
		log:          log.With("module", "twofactor"),
		now:          time.Now,
	}
}

// Issue creates a code for recipientID and revokes any earlier unused ones.
// The caller is responsible for delivering the code to the recipient.
func (s *TwoFactorService) Issue(ctx context.Context, p models.Principal, ref EnvelopeRef, recipientID string) (*IssuedTwoFactorToken, error) {
	if p.CredentialID == "" {
		return nil, fmt.Errorf("%w: issuing requires an API credential", common.ErrorUnauthorized)
	}

	code, err := common.MakeRandDigits(TwoFactorCodeLength)
	if err != nil {
		return nil, err
	}
	salt := cryptox.NewSalt()
	now := s.now().UTC()

	t := &models.SigningTwoFactorToken{
		ID:           uuid.NewString(),
		RecipientID:  recipientID,
		CredentialID: p.CredentialID,
		TokenHash:    cryptox.HashSecret([]byte(code), salt),
		Salt:         salt,
		AttemptLimit: s.attemptLimit,
		ExpiresAt:    now.Add(s.ttl),
		CreatedAt:    now,
	}

	err = s.runner.RunInTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		env, err := s.envelopes.load(ctx, tx, p, ref, true)
		if err != nil {
			return err
		}
		switch env.Status {
		case models.StatusDraft, models.StatusPending:
		default:
			return fmt.Errorf("%w: envelope is %s", common.ErrInvalidRequest, env.Status)
		}

		recipients, err := s.repomanager.Recipients(tx).ListByEnvelope(ctx, env.ID)
		if err != nil {
			return err
		}
		r := recipientsByID(recipients)[recipientID]
		if r == nil {
			return fmt.Errorf("%w: %s", common.ErrRecipientNotFound, recipientID)
		}
		if r.Finished() {
			return fmt.Errorf("%w: recipient already %s", common.ErrInvalidRequest, r.SigningStatus)
		}
		t.EnvelopeID = env.ID

		repo := s.repomanager.TwoFactorTokens(tx)
		revoked, err := repo.RevokeOutstanding(ctx, recipientID, now)
		if err != nil {
			return err
		}
		if err := repo.Create(ctx, t); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, p, models.AuditTwoFactorIssued, env.ID, map[string]any{
			"tokenId":     t.ID,
			"recipientId": recipientID,
			"revoked":     revoked,
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "signing token issued", "token_id", t.ID, "envelope_id", t.EnvelopeID)
	return &IssuedTwoFactorToken{
		Token:        code,
		TokenID:      t.ID,
		ExpiresAt:    t.ExpiresAt,
		TTLSeconds:   int(s.ttl / time.Second),
		AttemptLimit: t.AttemptLimit,
		IssuedAt:     now,
	}, nil
}

// loadToken reads a token and the envelope it belongs to, hiding tokens of
// envelopes the principal cannot see.
func (s *TwoFactorService) loadToken(ctx context.Context, tx dbx.DBTX, p models.Principal, tokenID string, lock bool) (*models.SigningTwoFactorToken, error) {
	repo := s.repomanager.TwoFactorTokens(tx)
	var t *models.SigningTwoFactorToken
	var err error
	if lock {
		t, err = repo.GetForUpdate(ctx, tokenID)
	} else {
		t, err = repo.GetByID(ctx, tokenID)
	}
	if err != nil {
		return nil, err
	}
	env, err := s.repomanager.Envelopes(tx).GetByID(ctx, t.EnvelopeID)
	if err != nil {
		return nil, err
	}
	if err := checkAccess(p, env); err != nil {
		return nil, err
	}
	return t, nil
}

// Verify checks value against the token. A wrong value burns one attempt and
// that is committed even though the call fails; once the limit is reached the
// token is dead regardless of the value.
func (s *TwoFactorService) Verify(ctx context.Context, p models.Principal, tokenID, value string) (*models.SigningTwoFactorToken, error) {
	var verr error
	var t *models.SigningTwoFactorToken

	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		t, err = s.loadToken(ctx, tx, p, tokenID, true)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrInvalidToken
			}
			return err
		}

		now := s.now().UTC()
		switch {
		case t.UsedAt != nil || t.RevokedAt != nil:
			return common.ErrInvalidToken
		case t.Exhausted():
			return common.ErrTokenAttemptsExceeded
		case !now.Before(t.ExpiresAt):
			return common.ErrTokenExpired
		}

		repo := s.repomanager.TwoFactorTokens(tx)
		candidate := []byte(value)
		ok := cryptox.VerifySecret(candidate, t.Salt, t.TokenHash)
		common.WipeByteArray(candidate)
		if !ok {
			attempts, err := repo.RegisterFailure(ctx, t.ID)
			if err != nil {
				return err
			}
			t.Attempts = attempts
			verr = common.ErrInvalidToken
			return s.audit.Record(ctx, tx, p, models.AuditTwoFactorFailed, t.EnvelopeID, map[string]any{
				"tokenId":  t.ID,
				"attempts": attempts,
			})
		}

		if err := repo.MarkUsed(ctx, t.ID, now); err != nil {
			return err
		}
		t.UsedAt = &now
		return s.audit.Record(ctx, tx, p, models.AuditTwoFactorVerified, t.EnvelopeID, map[string]any{
			"tokenId":     t.ID,
			"recipientId": t.RecipientID,
		})
	})
	if err != nil {
		return nil, err
	}
	if verr != nil {
		return nil, verr
	}
	return redact(t), nil
}

// Get returns the stored token record without its hash or salt.
func (s *TwoFactorService) Get(ctx context.Context, p models.Principal, tokenID string) (*models.SigningTwoFactorToken, error) {
	t, err := s.loadToken(ctx, s.runner.Conn(), p, tokenID, false)
	if err != nil {
		return nil, err
	}
	return redact(t), nil
}

func redact(t *models.SigningTwoFactorToken) *models.SigningTwoFactorToken {
	c := *t
	c.TokenHash = nil
	c.Salt = nil
	return &c
}
