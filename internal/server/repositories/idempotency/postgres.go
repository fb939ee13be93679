package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

// PostgresRepository implements idempotency record storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, credentialID, key, endpoint string) (*models.IdempotencyRecord, error) {
	query := `
		SELECT credential_id, idempotency_key, endpoint, response_status, response_body, created_at
		FROM idempotency_records
		WHERE credential_id = $1 AND idempotency_key = $2 AND endpoint = $3
	`
	rec := &models.IdempotencyRecord{}
	if err := r.db.QueryRowContext(ctx, query, credentialID, key, endpoint).Scan(
		&rec.CredentialID, &rec.Key, &rec.Endpoint, &rec.ResponseStatus, &rec.ResponseBody, &rec.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) Reserve(ctx context.Context, rec *models.IdempotencyRecord, staleBefore time.Time) (bool, error) {
	query := `
		INSERT INTO idempotency_records (credential_id, idempotency_key, endpoint, response_status, response_body, created_at)
		VALUES ($1, $2, $3, 0, '', $4)
		ON CONFLICT (credential_id, idempotency_key, endpoint) DO UPDATE SET created_at = EXCLUDED.created_at
		WHERE idempotency_records.response_status = 0 AND idempotency_records.created_at < $5
	`
	res, err := r.db.ExecContext(ctx, query, rec.CredentialID, rec.Key, rec.Endpoint, rec.CreatedAt, staleBefore)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Complete(ctx context.Context, rec *models.IdempotencyRecord) error {
	query := `
		UPDATE idempotency_records SET response_status = $4, response_body = $5
		WHERE credential_id = $1 AND idempotency_key = $2 AND endpoint = $3 AND response_status = 0
	`
	res, err := r.db.ExecContext(ctx, query, rec.CredentialID, rec.Key, rec.Endpoint, rec.ResponseStatus, rec.ResponseBody)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) Release(ctx context.Context, credentialID, key, endpoint string) error {
	query := `
		DELETE FROM idempotency_records
		WHERE credential_id = $1 AND idempotency_key = $2 AND endpoint = $3 AND response_status = 0
	`
	if _, err := r.db.ExecContext(ctx, query, credentialID, key, endpoint); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
