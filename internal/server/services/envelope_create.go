package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/envelopeid"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/quota"
	"github.com/google/uuid"
)

type CreateItemInput struct {
	Title          string `json:"title"`
	DocumentDataID string `json:"documentDataId"`
}

// CreateFieldInput places a field for the enclosing recipient. The target
// item is picked by ItemIndex (0-based), else by ItemTitle, else the first item.
type CreateFieldInput struct {
	ItemIndex *int             `json:"itemIndex,omitempty"`
	ItemTitle string           `json:"itemTitle,omitempty"`
	Type      models.FieldType `json:"type"`
	Page      int              `json:"page"`
	PositionX float64          `json:"positionX"`
	PositionY float64          `json:"positionY"`
	Width     float64          `json:"width"`
	Height    float64          `json:"height"`
	Meta      json.RawMessage  `json:"meta,omitempty"`
}

type CreateRecipientInput struct {
	Email        string               `json:"email"`
	Name         string               `json:"name"`
	Role         models.RecipientRole `json:"role"`
	SigningOrder *int                 `json:"signingOrder,omitempty"`
	AuthOptions  models.AuthOptions   `json:"authOptions"`
	Fields       []CreateFieldInput   `json:"fields,omitempty"`
}

type CreateAttachmentInput struct {
	Label string `json:"label"`
	URL   string `json:"url"`
	Type  string `json:"type,omitempty"`
}

type CreateEnvelopeInput struct {
	Type        models.EnvelopeType       `json:"type"`
	Title       string                    `json:"title"`
	ExternalID  *string                   `json:"externalId,omitempty"`
	Visibility  models.Visibility         `json:"visibility,omitempty"`
	FolderID    *string                   `json:"folderId,omitempty"`
	AuthOptions models.AuthOptions        `json:"authOptions"`
	Items       []CreateItemInput         `json:"items"`
	Recipients  []CreateRecipientInput    `json:"recipients,omitempty"`
	Meta        *models.DocumentMetaPatch `json:"meta,omitempty"`
	Attachments []CreateAttachmentInput   `json:"attachments,omitempty"`
}

func (in *CreateEnvelopeInput) validate() error {
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown envelope type %q", common.ErrInvalidRequest, in.Type)
	}
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", common.ErrInvalidRequest)
	}
	if in.Visibility == "" {
		in.Visibility = models.VisibilityEveryone
	}
	if !in.Visibility.Valid() {
		return fmt.Errorf("%w: unknown visibility %q", common.ErrInvalidRequest, in.Visibility)
	}
	if err := in.AuthOptions.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", common.ErrInvalidRequest)
	}
	for i, it := range in.Items {
		if it.DocumentDataID == "" {
			return fmt.Errorf("%w: item %d has no document data", common.ErrInvalidRequest, i)
		}
	}

	seen := map[string]bool{}
	for _, r := range in.Recipients {
		if err := validRecipientShape(r.Email, r.Role, r.SigningOrder, r.AuthOptions); err != nil {
			return err
		}
		key := normalizeEmail(r.Email)
		if seen[key] {
			return fmt.Errorf("%w: %s", common.ErrDuplicateEmail, key)
		}
		seen[key] = true
		if len(r.Fields) > 0 && !r.Role.CanHaveFields() {
			return fmt.Errorf("%w: role %s cannot have fields", common.ErrInvalidRequest, r.Role)
		}
	}

	for i := range in.Attachments {
		a := &in.Attachments[i]
		if a.Type == "" {
			a.Type = models.AttachmentTypeLink
		}
		if a.Type != models.AttachmentTypeLink {
			return fmt.Errorf("%w: unknown attachment type %q", common.ErrInvalidRequest, a.Type)
		}
		u, err := url.Parse(a.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: attachment url %q", common.ErrInvalidRequest, a.URL)
		}
		if strings.TrimSpace(a.Label) == "" {
			return fmt.Errorf("%w: attachment label is required", common.ErrInvalidRequest)
		}
	}
	return nil
}

// resolveItem picks the item a creation-time field refers to.
func resolveItem(items []*models.EnvelopeItem, f CreateFieldInput) (*models.EnvelopeItem, error) {
	switch {
	case f.ItemIndex != nil:
		if *f.ItemIndex < 0 || *f.ItemIndex >= len(items) {
			return nil, fmt.Errorf("%w: item index %d out of range", common.ErrInvalidFieldReference, *f.ItemIndex)
		}
		return items[*f.ItemIndex], nil
	case f.ItemTitle != "":
		for _, it := range items {
			if it.Title == f.ItemTitle {
				return it, nil
			}
		}
		return nil, fmt.Errorf("%w: no item titled %q", common.ErrInvalidFieldReference, f.ItemTitle)
	}
	return items[0], nil
}

// Create builds a new envelope graph in DRAFT. Everything, including the
// quota unit, is written in one transaction or not at all.
func (s *EnvelopeService) Create(ctx context.Context, p models.Principal, in CreateEnvelopeInput) (*models.EnvelopeGraph, error) {
	if p.Scope != "" {
		return nil, fmt.Errorf("%w: scoped tokens cannot create envelopes", common.ErrorUnauthorized)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	limits, err := s.plans.LimitsFor(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := quota.CheckItemCount(limits, 0, 0, len(in.Items)); err != nil {
		return nil, err
	}

	now := s.clock()
	env := &models.Envelope{
		ID:          envelopeid.NewPrimaryID(),
		Type:        in.Type,
		Title:       strings.TrimSpace(in.Title),
		ExternalID:  in.ExternalID,
		Visibility:  in.Visibility,
		Status:      models.StatusDraft,
		UserID:      p.UserID,
		TeamID:      p.TeamID,
		FolderID:    in.FolderID,
		AuthOptions: in.AuthOptions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	meta := models.DefaultDocumentMeta(env.ID)
	if err := in.Meta.Apply(meta); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
	}

	g := &models.EnvelopeGraph{Envelope: env, Meta: meta}

	err = s.runner.RunInTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		content := s.newContentIndex(tx)

		for i, it := range in.Items {
			if _, err := content.requirePDF(ctx, it.DocumentDataID, env); err != nil {
				return err
			}
			g.Items = append(g.Items, &models.EnvelopeItem{
				ID:             uuid.NewString(),
				EnvelopeID:     env.ID,
				Title:          it.Title,
				Order:          i + 1,
				DocumentDataID: it.DocumentDataID,
			})
		}

		for _, rin := range in.Recipients {
			r := &models.Recipient{
				ID:            uuid.NewString(),
				EnvelopeID:    env.ID,
				Email:         strings.TrimSpace(rin.Email),
				Name:          rin.Name,
				Role:          rin.Role,
				SigningOrder:  rin.SigningOrder,
				AuthOptions:   rin.AuthOptions,
				SendStatus:    models.SendStatusNotSent,
				SigningStatus: models.SigningStatusNotSigned,
				ReadStatus:    models.ReadStatusNotOpened,
			}
			g.Recipients = append(g.Recipients, r)

			for _, fin := range rin.Fields {
				item, err := resolveItem(g.Items, fin)
				if err != nil {
					return err
				}
				f := &models.Field{
					ID:             uuid.NewString(),
					EnvelopeID:     env.ID,
					EnvelopeItemID: item.ID,
					RecipientID:    r.ID,
					Type:           fin.Type,
					Page:           fin.Page,
					PositionX:      fin.PositionX,
					PositionY:      fin.PositionY,
					Width:          fin.Width,
					Height:         fin.Height,
					Meta:           fin.Meta,
				}
				pages, err := content.pageCount(ctx, item)
				if err != nil {
					return err
				}
				if err := validateField(f, pages); err != nil {
					return err
				}
				g.Fields = append(g.Fields, f)
			}
		}

		for _, a := range in.Attachments {
			g.Attachments = append(g.Attachments, &models.Attachment{
				ID:         uuid.NewString(),
				EnvelopeID: env.ID,
				Label:      a.Label,
				URL:        a.URL,
				Type:       a.Type,
			})
		}

		// Validation is done; the quota unit is taken in the same transaction
		// as the writes it pays for.
		if quota.Counts(env.Type) {
			if _, err := s.repomanager.Quotas(tx).Consume(ctx, env.OwnerKey(), quota.Period(now), limits.UnitsPerPeriod); err != nil {
				return err
			}
		}

		envRepo := s.repomanager.Envelopes(tx)
		legacy, err := envRepo.NextLegacyID(ctx, env.Type)
		if err != nil {
			return err
		}
		env.LegacyID = legacy
		if env.SecondaryID, err = s.ids.ToSecondaryID(env.Type, legacy); err != nil {
			return err
		}

		if err := envRepo.Create(ctx, env); err != nil {
			return err
		}
		for _, it := range g.Items {
			if err := s.repomanager.Items(tx).Create(ctx, it); err != nil {
				return err
			}
		}
		for _, r := range g.Recipients {
			if err := s.repomanager.Recipients(tx).Create(ctx, r); err != nil {
				return err
			}
		}
		for _, f := range g.Fields {
			if err := s.repomanager.Fields(tx).Create(ctx, f); err != nil {
				return err
			}
		}
		if err := envRepo.UpsertMeta(ctx, meta); err != nil {
			return err
		}
		for _, a := range g.Attachments {
			if err := envRepo.CreateAttachment(ctx, a); err != nil {
				return err
			}
		}

		return s.audit.Record(ctx, tx, p, models.AuditEnvelopeCreated, env.ID, map[string]any{
			"type":       env.Type,
			"legacyId":   env.LegacyID,
			"items":      len(g.Items),
			"recipients": len(g.Recipients),
			"fields":     len(g.Fields),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "envelope created", "envelope_id", env.ID, "secondary_id", env.SecondaryID, "items", len(g.Items))
	return g, nil
}
