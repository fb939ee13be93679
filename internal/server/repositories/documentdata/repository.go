// Package documentdata declares the storage contract for item content records.
package documentdata

import (
	"context"

	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, d *models.DocumentData) error
	GetByID(ctx context.Context, id string) (*models.DocumentData, error)
	// GetForUpdate reads the row and locks it until the transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.DocumentData, error)
	// GetForShare reads the row and blocks writers of it until the
	// transaction ends. Attaching content to an item goes through it.
	GetForShare(ctx context.Context, id string) (*models.DocumentData, error)
	// SetPageCount records the page count once the content has been inspected.
	SetPageCount(ctx context.Context, id string, pages int) error
}
