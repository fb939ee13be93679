// Package idempotency declares the storage contract for replayable responses.
package idempotency

import (
	"context"
	"time"

	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

type Repository interface {
	// Get returns the stored record or common.ErrorNotFound.
	Get(ctx context.Context, credentialID, key, endpoint string) (*models.IdempotencyRecord, error)
	// Reserve inserts a pending record for the key of rec and reports whether
	// it did. A pending record created before staleBefore is taken over.
	Reserve(ctx context.Context, rec *models.IdempotencyRecord, staleBefore time.Time) (bool, error)
	// Complete stores the response on a pending record.
	Complete(ctx context.Context, rec *models.IdempotencyRecord) error
	// Release drops a pending record so the key can be used again.
	Release(ctx context.Context, credentialID, key, endpoint string) error
}
