package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

// normalizeEmail is the form emails are compared in.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: invalid email %q", common.ErrInvalidRequest, email)
	}
	return nil
}

// contentIndex caches the document data behind items during one operation.
type contentIndex struct {
	s     *EnvelopeService
	tx    dbx.DBTX
	pages map[string]int
}

func (s *EnvelopeService) newContentIndex(tx dbx.DBTX) *contentIndex {
	return &contentIndex{s: s, tx: tx, pages: map[string]int{}}
}

// requirePDF loads document data owned by the owner of env and insists on
// PDF content. The row stays share-locked so its page count cannot change
// while the item pointing at it is written.
func (c *contentIndex) requirePDF(ctx context.Context, dataID string, env *models.Envelope) (*models.DocumentData, error) {
	d, err := c.s.repomanager.DocumentData(c.tx).GetForShare(ctx, dataID)
	if errors.Is(err, common.ErrorNotFound) || (err == nil && !d.OwnedBy(env.UserID, env.TeamID)) {
		return nil, fmt.Errorf("%w: document data %q does not exist", common.ErrInvalidRequest, dataID)
	}
	if err != nil {
		return nil, err
	}
	if d.MimeType != models.MimeTypePDF {
		return nil, fmt.Errorf("%w: %s is not %s", common.ErrInvalidFileType, d.MimeType, models.MimeTypePDF)
	}
	c.pages[d.ID] = d.PageCount
	return d, nil
}

// pageCount returns the number of pages of the item's content, 0 if unknown.
func (c *contentIndex) pageCount(ctx context.Context, item *models.EnvelopeItem) (int, error) {
	if n, ok := c.pages[item.DocumentDataID]; ok {
		return n, nil
	}
	d, err := c.s.repomanager.DocumentData(c.tx).GetByID(ctx, item.DocumentDataID)
	if err != nil {
		return 0, err
	}
	c.pages[d.ID] = d.PageCount
	return d.PageCount, nil
}

// validateField checks the field type and its placement on a page of the item.
func validateField(f *models.Field, pageCount int) error {
	if !f.Type.Valid() {
		return fmt.Errorf("%w: unknown field type %q", common.ErrInvalidRequest, f.Type)
	}
	if err := f.ValidatePlacement(pageCount); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidPosition, err)
	}
	return nil
}

func validRecipientShape(email string, role models.RecipientRole, order *int, ao models.AuthOptions) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", common.ErrInvalidRequest, role)
	}
	if order != nil && *order < 1 {
		return fmt.Errorf("%w: signing order must be >= 1", common.ErrInvalidRequest)
	}
	if err := ao.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidRequest, err)
	}
	return nil
}

func itemsByID(items []*models.EnvelopeItem) map[string]*models.EnvelopeItem {
	m := make(map[string]*models.EnvelopeItem, len(items))
	for _, it := range items {
		m[it.ID] = it
	}
	return m
}

func recipientsByID(rs []*models.Recipient) map[string]*models.Recipient {
	m := make(map[string]*models.Recipient, len(rs))
	for _, r := range rs {
		m[r.ID] = r
	}
	return m
}
