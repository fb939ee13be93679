package auditlogs

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

// PostgresRepository implements audit log storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e *models.AuditLogEntry) error {
	var data any
	if len(e.Data) > 0 {
		data = string(e.Data)
	}
	query := `
		INSERT INTO audit_logs (id, type, envelope_id, user_id, credential_id, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query, e.ID, e.Type, e.EnvelopeID, e.UserID, e.CredentialID, data, e.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByEnvelope(ctx context.Context, envelopeID string) ([]*models.AuditLogEntry, error) {
	query := `
		SELECT id, type, envelope_id, user_id, credential_id, data, created_at
		FROM audit_logs
		WHERE envelope_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query, envelopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to select audit logs: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		var data []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.EnvelopeID, &e.UserID, &e.CredentialID, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			e.Data = data
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
