package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/guard"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/recipients"
	"github.com/google/uuid"
)

// RecipientInput is one entry of the desired recipient list. ID selects an
// existing recipient; without it the entry is matched by email or created.
// ClientID is echoed back so callers can map new recipients to their ids.
type RecipientInput struct {
	ID           string               `json:"id,omitempty"`
	ClientID     string               `json:"clientId,omitempty"`
	Email        string               `json:"email"`
	Name         string               `json:"name"`
	Role         models.RecipientRole `json:"role"`
	SigningOrder *int                 `json:"signingOrder,omitempty"`
	AuthOptions  models.AuthOptions   `json:"authOptions"`
}

func sameOrder(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameAuth(a, b models.AuthOptions) bool {
	return slices.Equal(a.AccessAuth, b.AccessAuth) && slices.Equal(a.ActionAuth, b.ActionAuth)
}

// differs reports whether applying in would change r.
func (in *RecipientInput) differs(r *models.Recipient) bool {
	return normalizeEmail(in.Email) != normalizeEmail(r.Email) ||
		in.Name != r.Name ||
		in.Role != r.Role ||
		!sameOrder(in.SigningOrder, r.SigningOrder) ||
		!sameAuth(in.AuthOptions, r.AuthOptions)
}

type recipientDiff struct {
	update   []*models.Recipient
	create   []*models.Recipient
	remove   []*models.Recipient
	retained []*models.Recipient
	result   []*models.Recipient
}

// diffRecipients computes the set-replace of existing by input. It fails as a
// whole when a recipient that was notified but has not decided would drop
// out; recipients that already signed or rejected are kept untouched.
func diffRecipients(envelopeID string, existing []*models.Recipient, fieldOwners map[string]bool, input []RecipientInput) (*recipientDiff, error) {
	byID := recipientsByID(existing)
	claimed := map[string]bool{}
	matched := make([]*models.Recipient, len(input))

	emails := map[string]bool{}
	for i, in := range input {
		if err := validRecipientShape(in.Email, in.Role, in.SigningOrder, in.AuthOptions); err != nil {
			return nil, err
		}
		key := normalizeEmail(in.Email)
		if emails[key] {
			return nil, fmt.Errorf("%w: %s", common.ErrDuplicateEmail, key)
		}
		emails[key] = true

		if in.ID == "" {
			continue
		}
		r, ok := byID[in.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", common.ErrRecipientNotFound, in.ID)
		}
		if claimed[in.ID] {
			return nil, fmt.Errorf("%w: recipient %s listed twice", common.ErrInvalidRequest, in.ID)
		}
		claimed[in.ID] = true
		matched[i] = r
	}

	// Entries without an id adopt an unclaimed recipient with the same email,
	// so a retried call does not create the same people twice.
	for i, in := range input {
		if matched[i] != nil || in.ID != "" {
			continue
		}
		for _, r := range existing {
			if !claimed[r.ID] && normalizeEmail(r.Email) == normalizeEmail(in.Email) {
				claimed[r.ID] = true
				matched[i] = r
				break
			}
		}
	}

	d := &recipientDiff{}
	for _, r := range existing {
		if claimed[r.ID] {
			continue
		}
		switch {
		case r.Finished():
			if emails[normalizeEmail(r.Email)] {
				return nil, fmt.Errorf("%w: %s", common.ErrDuplicateEmail, normalizeEmail(r.Email))
			}
			d.retained = append(d.retained, r)
		case !r.Removable():
			return nil, fmt.Errorf("%w: %s has already been notified", common.ErrRecipientNotRemovable, r.Email)
		default:
			d.remove = append(d.remove, r)
		}
	}

	for i, in := range input {
		r := matched[i]
		if r == nil {
			r = &models.Recipient{
				ID:            uuid.NewString(),
				EnvelopeID:    envelopeID,
				Email:         strings.TrimSpace(in.Email),
				Name:          in.Name,
				Role:          in.Role,
				SigningOrder:  in.SigningOrder,
				AuthOptions:   in.AuthOptions,
				SendStatus:    models.SendStatusNotSent,
				SigningStatus: models.SigningStatusNotSigned,
				ReadStatus:    models.ReadStatusNotOpened,
			}
			d.create = append(d.create, r)
		} else if in.differs(r) {
			if r.Finished() {
				return nil, fmt.Errorf("%w: recipient %s already %s", common.ErrInvalidRequest, r.Email, r.SigningStatus)
			}
			if !in.Role.CanHaveFields() && fieldOwners[r.ID] {
				return nil, fmt.Errorf("%w: role %s cannot have fields", common.ErrInvalidRequest, in.Role)
			}
			r.Email = strings.TrimSpace(in.Email)
			r.Name = in.Name
			r.Role = in.Role
			r.SigningOrder = in.SigningOrder
			r.AuthOptions = in.AuthOptions
			d.update = append(d.update, r)
		}
		r.ClientID = in.ClientID
		d.result = append(d.result, r)
	}
	d.result = append(d.result, d.retained...)
	return d, nil
}

// SetRecipients replaces the recipient list of an envelope by diffing it
// against what is stored. Removed recipients take their fields with them.
func (s *EnvelopeService) SetRecipients(ctx context.Context, p models.Principal, ref EnvelopeRef, input []RecipientInput) ([]*models.Recipient, error) {
	var d *recipientDiff
	err := s.runner.RunInTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		env, err := s.load(ctx, tx, p, ref, true)
		if err != nil {
			return err
		}
		if !guard.CanEnvelopeBeUpdated(env) {
			return fmt.Errorf("%w: envelope is %s", common.ErrEnvelopeNotEditable, env.Status)
		}

		recipientRepo := s.repomanager.Recipients(tx)
		fieldRepo := s.repomanager.Fields(tx)

		existing, err := recipientRepo.ListByEnvelope(ctx, env.ID)
		if err != nil {
			return err
		}
		fields, err := fieldRepo.ListByEnvelope(ctx, env.ID)
		if err != nil {
			return err
		}
		owners := map[string]bool{}
		for _, f := range fields {
			owners[f.RecipientID] = true
		}

		d, err = diffRecipients(env.ID, existing, owners, input)
		if err != nil {
			return err
		}

		// Email uniqueness is checked at commit, so emails may be swapped
		// between recipients within one call.
		for _, r := range d.remove {
			if _, err := fieldRepo.DeleteByRecipient(ctx, env.ID, r.ID); err != nil {
				return err
			}
			if err := recipientRepo.Delete(ctx, env.ID, r.ID); err != nil {
				return err
			}
		}
		for _, r := range d.update {
			if err := recipientRepo.Update(ctx, r); err != nil {
				return err
			}
		}
		for _, r := range d.create {
			// distribution already happened, so people added now are notified too
			if env.Status == models.StatusPending {
				r.SendStatus = models.SendStatusSent
			}
			if err := recipientRepo.Create(ctx, r); err != nil {
				return err
			}
		}

		return s.audit.Record(ctx, tx, p, models.AuditRecipientsSet, env.ID, map[string]any{
			"created":  len(d.create),
			"updated":  len(d.update),
			"removed":  len(d.remove),
			"retained": len(d.retained),
		})
	})
	if dbx.IsUniqueViolation(err, recipients.EmailConstraint) {
		return nil, fmt.Errorf("%w: %v", common.ErrDuplicateEmail, err)
	}
	if err != nil {
		return nil, err
	}
	return d.result, nil
}
