package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// AuditRecorder appends audit entries inside the caller's transaction, so a
// mutation and its entry commit or roll back together.
type AuditRecorder struct {
	repomanager repomanager.RepositoryManager
	now         func() time.Time
}

func NewAuditRecorder(m repomanager.RepositoryManager) *AuditRecorder {
	return &AuditRecorder{repomanager: m, now: time.Now}
}

// Record marshals data and appends one entry. Any error must abort the
// enclosing transaction.
func (a *AuditRecorder) Record(ctx context.Context, tx dbx.DBTX, p models.Principal, typ models.AuditLogType, envelopeID string, data any) error {
	payload := []byte("{}")
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("audit payload: %w", err)
		}
		payload = b
	}
	entry := &models.AuditLogEntry{
		ID:           uuid.NewString(),
		Type:         typ,
		EnvelopeID:   envelopeID,
		UserID:       p.UserID,
		CredentialID: p.CredentialID,
		Data:         payload,
		CreatedAt:    a.now().UTC(),
	}
	if err := a.repomanager.AuditLogs(tx).Append(ctx, entry); err != nil {
		return fmt.Errorf("audit append: %w", err)
	}
	return nil
}
