package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/guard"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/google/uuid"
)

// FieldInput is one entry of the desired field list. ID selects an existing
// field; RecipientID may be left empty when the call is scoped to a recipient.
type FieldInput struct {
	ID             string           `json:"id,omitempty"`
	RecipientID    string           `json:"recipientId,omitempty"`
	EnvelopeItemID string           `json:"envelopeItemId"`
	Type           models.FieldType `json:"type"`
	Page           int              `json:"page"`
	PositionX      float64          `json:"positionX"`
	PositionY      float64          `json:"positionY"`
	Width          float64          `json:"width"`
	Height         float64          `json:"height"`
	Meta           json.RawMessage  `json:"meta,omitempty"`
}

// SetFieldsInput replaces the fields of one recipient when RecipientID is
// set, otherwise every field of the envelope.
type SetFieldsInput struct {
	RecipientID string       `json:"recipientId,omitempty"`
	Fields      []FieldInput `json:"fields"`
}

func (in *FieldInput) apply(f *models.Field) {
	f.RecipientID = in.RecipientID
	f.EnvelopeItemID = in.EnvelopeItemID
	f.Type = in.Type
	f.Page = in.Page
	f.PositionX = in.PositionX
	f.PositionY = in.PositionY
	f.Width = in.Width
	f.Height = in.Height
	f.Meta = in.Meta
}

func (in *FieldInput) differs(f *models.Field) bool {
	return in.RecipientID != f.RecipientID ||
		in.EnvelopeItemID != f.EnvelopeItemID ||
		in.Type != f.Type ||
		in.Page != f.Page ||
		in.PositionX != f.PositionX ||
		in.PositionY != f.PositionY ||
		in.Width != f.Width ||
		in.Height != f.Height ||
		!bytes.Equal(in.Meta, f.Meta)
}

type fieldDiff struct {
	update []*models.Field
	create []*models.Field
	remove []*models.Field
	result []*models.Field
}

// SetFields replaces fields by diffing against what is stored. Every field must
// point at a recipient and an item of this envelope and fit on its page.
// Fields already filled in, or owned by a recipient who has decided, are
// never changed.
func (s *EnvelopeService) SetFields(ctx context.Context, p models.Principal, ref EnvelopeRef, in SetFieldsInput) ([]*models.Field, error) {
	var d *fieldDiff
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		env, err := s.load(ctx, tx, p, ref, true)
		if err != nil {
			return err
		}
		if !guard.CanEnvelopeBeUpdated(env) {
			return fmt.Errorf("%w: envelope is %s", common.ErrEnvelopeNotEditable, env.Status)
		}

		items, err := s.repomanager.Items(tx).ListByEnvelope(ctx, env.ID)
		if err != nil {
			return err
		}
		recipients, err := s.repomanager.Recipients(tx).ListByEnvelope(ctx, env.ID)
		if err != nil {
			return err
		}
		fieldRepo := s.repomanager.Fields(tx)
		existing, err := fieldRepo.ListByEnvelope(ctx, env.ID)
		if err != nil {
			return err
		}

		d, err = s.diffFields(ctx, tx, env.ID, items, recipients, existing, in)
		if err != nil {
			return err
		}

		for _, f := range d.remove {
			if err := fieldRepo.Delete(ctx, env.ID, f.ID); err != nil {
				return err
			}
		}
		for _, f := range d.update {
			if err := fieldRepo.Update(ctx, f); err != nil {
				return err
			}
		}
		for _, f := range d.create {
			if err := fieldRepo.Create(ctx, f); err != nil {
				return err
			}
		}

		return s.audit.Record(ctx, tx, p, models.AuditFieldsSet, env.ID, map[string]any{
			"recipientId": in.RecipientID,
			"created":     len(d.create),
			"updated":     len(d.update),
			"removed":     len(d.remove),
		})
	})
	if err != nil {
		return nil, err
	}
	return d.result, nil
}

func (s *EnvelopeService) diffFields(ctx context.Context, tx dbx.DBTX, envelopeID string, items []*models.EnvelopeItem,
	recipients []*models.Recipient, existing []*models.Field, in SetFieldsInput) (*fieldDiff, error) {

	itemIdx := itemsByID(items)
	recipientIdx := recipientsByID(recipients)
	if in.RecipientID != "" {
		if _, ok := recipientIdx[in.RecipientID]; !ok {
			return nil, fmt.Errorf("%w: %s", common.ErrRecipientNotFound, in.RecipientID)
		}
	}

	inScope := map[string]*models.Field{}
	var scoped []*models.Field
	for _, f := range existing {
		if in.RecipientID == "" || f.RecipientID == in.RecipientID {
			inScope[f.ID] = f
			scoped = append(scoped, f)
		}
	}

	content := s.newContentIndex(tx)
	claimed := map[string]bool{}
	d := &fieldDiff{}

	for i := range in.Fields {
		fin := in.Fields[i]
		if fin.RecipientID == "" {
			fin.RecipientID = in.RecipientID
		}
		if in.RecipientID != "" && fin.RecipientID != in.RecipientID {
			return nil, fmt.Errorf("%w: field for %s outside recipient scope", common.ErrInvalidRequest, fin.RecipientID)
		}

		r, ok := recipientIdx[fin.RecipientID]
		if !ok {
			return nil, fmt.Errorf("%w: %q", common.ErrRecipientNotFound, fin.RecipientID)
		}
		if !r.Role.CanHaveFields() {
			return nil, fmt.Errorf("%w: role %s cannot have fields", common.ErrInvalidRequest, r.Role)
		}
		item, ok := itemIdx[fin.EnvelopeItemID]
		if !ok {
			return nil, fmt.Errorf("%w: item %q is not part of this envelope", common.ErrInvalidFieldReference, fin.EnvelopeItemID)
		}

		candidate := &models.Field{EnvelopeID: envelopeID}
		fin.apply(candidate)
		pages, err := content.pageCount(ctx, item)
		if err != nil {
			return nil, err
		}
		if err := validateField(candidate, pages); err != nil {
			return nil, err
		}

		var cur *models.Field
		if fin.ID != "" {
			cur, ok = inScope[fin.ID]
			if !ok {
				return nil, fmt.Errorf("%w: field %s", common.ErrorNotFound, fin.ID)
			}
			if claimed[cur.ID] {
				return nil, fmt.Errorf("%w: field %s listed twice", common.ErrInvalidRequest, cur.ID)
			}
		} else {
			// An identical unclaimed field is the same field sent again.
			for _, f := range scoped {
				if !claimed[f.ID] && !fin.differs(f) {
					cur = f
					break
				}
			}
		}

		if r.Finished() && (cur == nil || fin.differs(cur)) {
			return nil, fmt.Errorf("%w: recipient %s already %s", common.ErrInvalidRequest, r.Email, r.SigningStatus)
		}

		if cur == nil {
			candidate.ID = uuid.NewString()
			d.create = append(d.create, candidate)
			d.result = append(d.result, candidate)
			continue
		}

		claimed[cur.ID] = true
		if fin.differs(cur) {
			if err := frozenField(cur, recipientIdx); err != nil {
				return nil, err
			}
			fin.apply(cur)
			d.update = append(d.update, cur)
		}
		d.result = append(d.result, cur)
	}

	for _, f := range scoped {
		if claimed[f.ID] {
			continue
		}
		if owner := recipientIdx[f.RecipientID]; owner != nil && owner.Finished() {
			d.result = append(d.result, f)
			continue
		}
		if f.Inserted {
			return nil, fmt.Errorf("%w: field %s is already filled in", common.ErrInvalidRequest, f.ID)
		}
		d.remove = append(d.remove, f)
	}
	return d, nil
}

func frozenField(f *models.Field, recipients map[string]*models.Recipient) error {
	if f.Inserted {
		return fmt.Errorf("%w: field %s is already filled in", common.ErrInvalidRequest, f.ID)
	}
	if owner := recipients[f.RecipientID]; owner != nil && owner.Finished() {
		return fmt.Errorf("%w: recipient %s already %s", common.ErrInvalidRequest, owner.Email, owner.SigningStatus)
	}
	return nil
}
