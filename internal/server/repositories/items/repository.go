// Package items declares the storage contract for envelope items.
package items

import (
	"context"

	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, item *models.EnvelopeItem) error
	// ListByEnvelope returns the items of an envelope ordered by their order value.
	ListByEnvelope(ctx context.Context, envelopeID string) ([]*models.EnvelopeItem, error)
	// EnvelopeIDsByDocumentData returns the envelopes with an item pointing at
	// the document data, deleted envelopes included.
	EnvelopeIDsByDocumentData(ctx context.Context, dataID string) ([]string, error)
	// Update writes title and order.
	Update(ctx context.Context, item *models.EnvelopeItem) error
	Delete(ctx context.Context, envelopeID, id string) error
}
