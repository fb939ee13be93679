// Package apitokens declares the storage contract for long-lived API credentials.
package apitokens

import (
	"context"

	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, c *models.ApiCredential) error
	// GetByTokenHash looks a credential up by the sha256 hex of its token.
	GetByTokenHash(ctx context.Context, hash string) (*models.ApiCredential, error)
	GetByID(ctx context.Context, id string) (*models.ApiCredential, error)
}
