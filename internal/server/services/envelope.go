// Package services contains server-side business logic. EnvelopeService owns
// the envelope graph: every mutation runs as one transaction that locks the
// envelope row, checks guards and quota, writes, and appends one audit entry.
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/logging"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/auth"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/envelopeid"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/quota"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/repomanager"
)

// EnvelopeRef addresses an envelope by primary id, secondary id, or legacy
// number. Kind is required only for legacy numbers.
type EnvelopeRef struct {
	ID   string
	Kind models.EnvelopeType
}

// EnvelopeService implements the builder, the mutator and the lifecycle
// operations over the envelope store.
type EnvelopeService struct {
	runner      dbx.TxRunner
	repomanager repomanager.RepositoryManager
	ids         *envelopeid.Translator
	plans       quota.PlanProvider
	audit       *AuditRecorder
	log         logging.Logger
	now         func() time.Time
}

func NewEnvelopeService(runner dbx.TxRunner, m repomanager.RepositoryManager, ids *envelopeid.Translator,
	plans quota.PlanProvider, audit *AuditRecorder, log logging.Logger) *EnvelopeService {
	return &EnvelopeService{
		runner:      runner,
		repomanager: m,
		ids:         ids,
		plans:       plans,
		audit:       audit,
		log:         log.With("module", "envelopes"),
		now:         time.Now,
	}
}

func (s *EnvelopeService) clock() time.Time {
	return s.now().UTC()
}

// checkAccess hides envelopes the principal cannot see and rejects presign
// tokens scoped to a different envelope.
func checkAccess(p models.Principal, env *models.Envelope) error {
	if env.DeletedAt != nil || !p.CanSee(env) {
		return fmt.Errorf("%w: envelope %s", common.ErrorNotFound, env.ID)
	}
	if !auth.ScopeAllows(p.Scope, env.ID, env.SecondaryID) {
		return fmt.Errorf("%w: token is not scoped to this envelope", common.ErrorUnauthorized)
	}
	return nil
}

// find resolves ref to a stored envelope without any access check.
func (s *EnvelopeService) find(ctx context.Context, tx dbx.DBTX, ref EnvelopeRef) (*models.Envelope, error) {
	r, err := s.ids.Resolve(ref.ID, ref.Kind)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Envelopes(tx)
	if r.PrimaryID != "" {
		return repo.GetByID(ctx, r.PrimaryID)
	}
	return repo.GetBySecondaryID(ctx, r.SecondaryID)
}

// load resolves ref and checks access. With lock set the row stays locked
// until tx ends, which serializes mutations of the same envelope.
func (s *EnvelopeService) load(ctx context.Context, tx dbx.DBTX, p models.Principal, ref EnvelopeRef, lock bool) (*models.Envelope, error) {
	env, err := s.find(ctx, tx, ref)
	if err != nil {
		return nil, err
	}
	repo := s.repomanager.Envelopes(tx)
	if err := checkAccess(p, env); err != nil {
		return nil, err
	}

	if lock {
		env, err = repo.GetForUpdate(ctx, env.ID)
		if err != nil {
			return nil, err
		}
		if env.DeletedAt != nil {
			return nil, fmt.Errorf("%w: envelope %s", common.ErrorNotFound, env.ID)
		}
	}
	return env, nil
}

func (s *EnvelopeService) loadGraph(ctx context.Context, tx dbx.DBTX, env *models.Envelope) (*models.EnvelopeGraph, error) {
	g := &models.EnvelopeGraph{Envelope: env}
	var err error

	g.Meta, err = s.repomanager.Envelopes(tx).GetMeta(ctx, env.ID)
	if errors.Is(err, common.ErrorNotFound) {
		g.Meta, err = models.DefaultDocumentMeta(env.ID), nil
	}
	if err != nil {
		return nil, err
	}
	if g.Items, err = s.repomanager.Items(tx).ListByEnvelope(ctx, env.ID); err != nil {
		return nil, err
	}
	if g.Recipients, err = s.repomanager.Recipients(tx).ListByEnvelope(ctx, env.ID); err != nil {
		return nil, err
	}
	if g.Fields, err = s.repomanager.Fields(tx).ListByEnvelope(ctx, env.ID); err != nil {
		return nil, err
	}
	if g.Attachments, err = s.repomanager.Envelopes(tx).ListAttachments(ctx, env.ID); err != nil {
		return nil, err
	}
	return g, nil
}

// Get returns the whole envelope graph from one consistent snapshot.
func (s *EnvelopeService) Get(ctx context.Context, p models.Principal, ref EnvelopeRef) (*models.EnvelopeGraph, error) {
	var g *models.EnvelopeGraph
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		env, err := s.load(ctx, tx, p, ref, false)
		if err != nil {
			return err
		}
		g, err = s.loadGraph(ctx, tx, env)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// ListAuditLogs returns the audit trail of an envelope, oldest first.
func (s *EnvelopeService) ListAuditLogs(ctx context.Context, p models.Principal, ref EnvelopeRef) ([]*models.AuditLogEntry, error) {
	conn := s.runner.Conn()
	env, err := s.load(ctx, conn, p, ref, false)
	if err != nil {
		return nil, err
	}
	return s.repomanager.AuditLogs(conn).ListByEnvelope(ctx, env.ID)
}

// transition moves env to status and writes it back.
func (s *EnvelopeService) transition(ctx context.Context, tx dbx.DBTX, env *models.Envelope, to models.EnvelopeStatus) error {
	if !models.CanTransition(env.Status, to) {
		return fmt.Errorf("%w: %s -> %s", common.ErrInvalidStateTransition, env.Status, to)
	}
	now := s.clock()
	env.Status = to
	env.UpdatedAt = now
	switch to {
	case models.StatusCompleted:
		env.CompletedAt = &now
	case models.StatusDeleted:
		env.DeletedAt = &now
	}
	return s.repomanager.Envelopes(tx).Update(ctx, env)
}

// Distribute sends a draft document out for signing: DRAFT -> PENDING and
// every recipient marked as notified. From here on items are frozen.
func (s *EnvelopeService) Distribute(ctx context.Context, p models.Principal, ref EnvelopeRef) (*models.EnvelopeGraph, error) {
	var g *models.EnvelopeGraph
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		env, err := s.load(ctx, tx, p, ref, true)
		if err != nil {
			return err
		}
		if env.Type != models.EnvelopeTypeDocument {
			return fmt.Errorf("%w: templates cannot be distributed", common.ErrInvalidRequest)
		}
		g, err = s.loadGraph(ctx, tx, env)
		if err != nil {
			return err
		}
		if len(g.Recipients) == 0 {
			return fmt.Errorf("%w: envelope has no recipients", common.ErrInvalidRequest)
		}

		fieldCount := map[string]int{}
		for _, f := range g.Fields {
			fieldCount[f.RecipientID]++
		}
		for _, r := range g.Recipients {
			if r.Role == models.RoleSigner && fieldCount[r.ID] == 0 {
				return fmt.Errorf("%w: signer %s has no fields", common.ErrInvalidRequest, r.Email)
			}
		}

		if err := s.transition(ctx, tx, env, models.StatusPending); err != nil {
			return err
		}
		recipientRepo := s.repomanager.Recipients(tx)
		for _, r := range g.Recipients {
			r.SendStatus = models.SendStatusSent
			if err := recipientRepo.Update(ctx, r); err != nil {
				return err
			}
		}
		return s.audit.Record(ctx, tx, p, models.AuditEnvelopeDistributed, env.ID, map[string]any{
			"recipients": len(g.Recipients),
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "envelope distributed", "envelope_id", g.Envelope.ID)
	return g, nil
}

// RecipientAction is a state change reported for a recipient.
type RecipientAction string

const (
	ActionOpened   RecipientAction = "OPENED"
	ActionSigned   RecipientAction = "SIGNED"
	ActionRejected RecipientAction = "REJECTED"
)

// RecipientActionInput describes one recorded action. TwoFactorTokenID names
// a verified signing token when the recipient's action auth demands one.
type RecipientActionInput struct {
	RecipientID      string          `json:"recipientId"`
	Action           RecipientAction `json:"action"`
	TwoFactorTokenID string          `json:"twoFactorTokenId,omitempty"`
}

// requiresTwoFactor applies recipient action auth over the envelope's.
func requiresTwoFactor(env *models.Envelope, r *models.Recipient) bool {
	if len(r.AuthOptions.ActionAuth) > 0 {
		return r.AuthOptions.RequiresTwoFactor()
	}
	return env.AuthOptions.RequiresTwoFactor()
}

// RecordRecipientAction records a read or a signing decision. The envelope
// completes once every action-requiring recipient has signed; a rejection
// cancels it.
func (s *EnvelopeService) RecordRecipientAction(ctx context.Context, p models.Principal, ref EnvelopeRef, in RecipientActionInput) (*models.EnvelopeGraph, error) {
	var g *models.EnvelopeGraph
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		env, err := s.load(ctx, tx, p, ref, true)
		if err != nil {
			return err
		}
		if env.Status != models.StatusPending {
			return fmt.Errorf("%w: envelope is %s", common.ErrInvalidRequest, env.Status)
		}
		g, err = s.loadGraph(ctx, tx, env)
		if err != nil {
			return err
		}

		var r *models.Recipient
		for _, x := range g.Recipients {
			if x.ID == in.RecipientID {
				r = x
			}
		}
		if r == nil {
			return fmt.Errorf("%w: %s", common.ErrRecipientNotFound, in.RecipientID)
		}

		auditType := models.AuditRecipientAction
		switch in.Action {
		case ActionOpened:
			r.ReadStatus = models.ReadStatusOpened

		case ActionSigned, ActionRejected:
			if r.Finished() {
				return fmt.Errorf("%w: recipient already %s", common.ErrInvalidRequest, r.SigningStatus)
			}
			if requiresTwoFactor(env, r) {
				if err := s.checkTwoFactor(ctx, tx, env, r, in.TwoFactorTokenID); err != nil {
					return err
				}
			}
			if g.Meta.SigningOrder == models.SigningOrderSequential && in.Action == ActionSigned {
				if err := checkTurn(g.Recipients, r); err != nil {
					return err
				}
			}
			now := s.clock()
			r.ReadStatus = models.ReadStatusOpened
			r.SignedAt = &now
			if in.Action == ActionSigned {
				r.SigningStatus = models.SigningStatusSigned
			} else {
				r.SigningStatus = models.SigningStatusRejected
			}

		default:
			return fmt.Errorf("%w: unknown action %q", common.ErrInvalidRequest, in.Action)
		}

		if err := s.repomanager.Recipients(tx).Update(ctx, r); err != nil {
			return err
		}

		switch {
		case in.Action == ActionRejected:
			if err := s.transition(ctx, tx, env, models.StatusCancelled); err != nil {
				return err
			}
			auditType = models.AuditEnvelopeCancelled
		case in.Action == ActionSigned && allSigned(g.Recipients):
			if err := s.transition(ctx, tx, env, models.StatusCompleted); err != nil {
				return err
			}
			auditType = models.AuditEnvelopeCompleted
		}

		return s.audit.Record(ctx, tx, p, auditType, env.ID, map[string]any{
			"recipientId": r.ID,
			"action":      in.Action,
		})
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *EnvelopeService) checkTwoFactor(ctx context.Context, tx dbx.DBTX, env *models.Envelope, r *models.Recipient, tokenID string) error {
	if tokenID == "" {
		return fmt.Errorf("%w: a verified two-factor token is required", common.ErrorUnauthorized)
	}
	t, err := s.repomanager.TwoFactorTokens(tx).GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidToken
		}
		return err
	}
	if t.UsedAt == nil || t.RecipientID != r.ID || t.EnvelopeID != env.ID {
		return common.ErrInvalidToken
	}
	return nil
}

// checkTurn enforces sequential signing: every action-requiring recipient
// with a lower signing order must have signed already.
func checkTurn(all []*models.Recipient, r *models.Recipient) error {
	mine := orderOf(r)
	for _, x := range all {
		if x.ID == r.ID || !x.Role.RequiresAction() {
			continue
		}
		if orderOf(x) < mine && x.SigningStatus != models.SigningStatusSigned {
			return fmt.Errorf("%w: waiting for %s to sign first", common.ErrInvalidRequest, x.Email)
		}
	}
	return nil
}

func orderOf(r *models.Recipient) int {
	if r.SigningOrder == nil {
		return math.MaxInt
	}
	return *r.SigningOrder
}

func allSigned(rs []*models.Recipient) bool {
	for _, r := range rs {
		if r.Role.RequiresAction() && r.SigningStatus != models.SigningStatusSigned {
			return false
		}
	}
	return true
}

// Cancel stops a draft or pending envelope.
func (s *EnvelopeService) Cancel(ctx context.Context, p models.Principal, ref EnvelopeRef) (*models.Envelope, error) {
	return s.finish(ctx, p, ref, models.StatusCancelled, models.AuditEnvelopeCancelled)
}

// Delete soft-deletes the envelope; it disappears from every read.
func (s *EnvelopeService) Delete(ctx context.Context, p models.Principal, ref EnvelopeRef) (*models.Envelope, error) {
	return s.finish(ctx, p, ref, models.StatusDeleted, models.AuditEnvelopeDeleted)
}

func (s *EnvelopeService) finish(ctx context.Context, p models.Principal, ref EnvelopeRef, to models.EnvelopeStatus, typ models.AuditLogType) (*models.Envelope, error) {
	var env *models.Envelope
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		env, err = s.load(ctx, tx, p, ref, true)
		if err != nil {
			return err
		}
		from := env.Status
		if err := s.transition(ctx, tx, env, to); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, p, typ, env.ID, map[string]any{"from": from})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "envelope status changed", "envelope_id", env.ID, "status", to)
	return env, nil
}
