// Package recipients declares the storage contract for envelope recipients.
package recipients

import (
	"context"

	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

type Repository interface {
	// Create inserts r. A second recipient with the same email on the same
	// envelope fails with common.ErrDuplicateEmail.
	Create(ctx context.Context, r *models.Recipient) error
	ListByEnvelope(ctx context.Context, envelopeID string) ([]*models.Recipient, error)
	// Update writes every mutable column of r, statuses included.
	Update(ctx context.Context, r *models.Recipient) error
	Delete(ctx context.Context, envelopeID, id string) error
}
