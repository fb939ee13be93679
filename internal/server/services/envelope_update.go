package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/guard"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

// EnvelopePatch holds optional envelope-level changes; nil keeps the value.
type EnvelopePatch struct {
	Title       *string             `json:"title,omitempty"`
	ExternalID  *string             `json:"externalId,omitempty"`
	Visibility  *models.Visibility  `json:"visibility,omitempty"`
	FolderID    *string             `json:"folderId,omitempty"`
	AuthOptions *models.AuthOptions `json:"authOptions,omitempty"`
}

type UpdateEnvelopeInput struct {
	Envelope EnvelopePatch             `json:"envelope"`
	Meta     *models.DocumentMetaPatch `json:"meta,omitempty"`
}

func (p *EnvelopePatch) apply(env *models.Envelope) error {
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return fmt.Errorf("%w: title cannot be empty", common.ErrInvalidRequest)
		}
		env.Title = t
	}
	if p.Visibility != nil {
		if !p.Visibility.Valid() {
			return fmt.Errorf("%w: unknown visibility %q", common.ErrInvalidRequest, *p.Visibility)
		}
		env.Visibility = *p.Visibility
	}
	if p.AuthOptions != nil {
		if err := p.AuthOptions.Validate(); err != nil {
			return fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
		}
		env.AuthOptions = *p.AuthOptions
	}
	if p.ExternalID != nil {
		env.ExternalID = p.ExternalID
	}
	if p.FolderID != nil {
		env.FolderID = p.FolderID
	}
	return nil
}

// Update patches envelope fields and document meta. Finished envelopes are
// read-only. Applying the same patch twice leaves the same state.
func (s *EnvelopeService) Update(ctx context.Context, p models.Principal, ref EnvelopeRef, in UpdateEnvelopeInput) (*models.EnvelopeGraph, error) {
	var g *models.EnvelopeGraph
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		env, err := s.load(ctx, tx, p, ref, true)
		if err != nil {
			return err
		}
		if !guard.CanEnvelopeBeUpdated(env) {
			return fmt.Errorf("%w: envelope is %s", common.ErrEnvelopeNotEditable, env.Status)
		}

		if err := in.Envelope.apply(env); err != nil {
			return err
		}
		env.UpdatedAt = s.clock()

		envRepo := s.repomanager.Envelopes(tx)
		if err := envRepo.Update(ctx, env); err != nil {
			return err
		}

		if in.Meta != nil {
			meta, err := envRepo.GetMeta(ctx, env.ID)
			if errors.Is(err, common.ErrorNotFound) {
				meta, err = models.DefaultDocumentMeta(env.ID), nil
			}
			if err != nil {
				return err
			}
			if err := in.Meta.Apply(meta); err != nil {
				return fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
			}
			if err := envRepo.UpsertMeta(ctx, meta); err != nil {
				return err
			}
		}

		if err := s.audit.Record(ctx, tx, p, models.AuditEnvelopeUpdated, env.ID, in); err != nil {
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
