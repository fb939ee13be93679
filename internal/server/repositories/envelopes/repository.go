// Package envelopes declares the storage contract for envelopes together with
// the rows they own one-to-one (document meta) or by simple listing
// (attachments), and the per-kind legacy id counters.
package envelopes

import (
	"context"

	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

type Repository interface {
	// NextLegacyID advances the counter of kind and returns the new value.
	NextLegacyID(ctx context.Context, kind models.EnvelopeType) (int64, error)

	Create(ctx context.Context, e *models.Envelope) error
	GetByID(ctx context.Context, id string) (*models.Envelope, error)
	GetBySecondaryID(ctx context.Context, secondaryID string) (*models.Envelope, error)

	// GetForUpdate reads the envelope and locks its row until the enclosing
	// transaction ends. It serializes mutations of one envelope graph.
	GetForUpdate(ctx context.Context, id string) (*models.Envelope, error)

	// Update writes every mutable column of e.
	Update(ctx context.Context, e *models.Envelope) error

	UpsertMeta(ctx context.Context, m *models.DocumentMeta) error
	GetMeta(ctx context.Context, envelopeID string) (*models.DocumentMeta, error)

	CreateAttachment(ctx context.Context, a *models.Attachment) error
	ListAttachments(ctx context.Context, envelopeID string) ([]*models.Attachment, error)
}
