// Package fields declares the storage contract for placed recipient fields.
package fields

import (
	"context"

	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, f *models.Field) error
	ListByEnvelope(ctx context.Context, envelopeID string) ([]*models.Field, error)
	// Update writes type, placement, item, inserted flag and meta.
	Update(ctx context.Context, f *models.Field) error
	Delete(ctx context.Context, envelopeID, id string) error
	// DeleteByItem removes every field placed on the item and reports how many went.
	DeleteByItem(ctx context.Context, envelopeID, itemID string) (int64, error)
	// DeleteByRecipient removes every field assigned to the recipient.
	DeleteByRecipient(ctx context.Context, envelopeID, recipientID string) (int64, error)
}
