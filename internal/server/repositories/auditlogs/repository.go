// Package auditlogs declares the append-only storage contract for audit entries.
// There is deliberately no update or delete.
package auditlogs

import (
	"context"

	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

type Repository interface {
	Append(ctx context.Context, e *models.AuditLogEntry) error
	ListByEnvelope(ctx context.Context, envelopeID string) ([]*models.AuditLogEntry, error)
}
