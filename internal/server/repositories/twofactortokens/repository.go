// Package twofactortokens declares the storage contract for signing
// two-factor tokens. Plaintext codes never reach this layer.
package twofactortokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, t *models.SigningTwoFactorToken) error
	GetByID(ctx context.Context, id string) (*models.SigningTwoFactorToken, error)
	// GetForUpdate locks the token row for the rest of the transaction.
	GetForUpdate(ctx context.Context, id string) (*models.SigningTwoFactorToken, error)
	// RegisterFailure increments the attempt counter and returns the new value.
	RegisterFailure(ctx context.Context, id string) (int, error)
	MarkUsed(ctx context.Context, id string, at time.Time) error
	// RevokeOutstanding revokes every unused, unrevoked token of a recipient.
	RevokeOutstanding(ctx context.Context, recipientID string, at time.Time) (int64, error)
}
