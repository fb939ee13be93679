package twofactortokens

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

// PostgresRepository implements token storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const tokenColumns = `id, envelope_id, recipient_id, credential_id, token_hash, salt,
	attempts, attempt_limit, expires_at, used_at, revoked_at, created_at`

func (r *PostgresRepository) Create(ctx context.Context, t *models.SigningTwoFactorToken) error {
	query := `
		INSERT INTO signing_two_factor_tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if _, err := r.db.ExecContext(ctx, query,
		t.ID, t.EnvelopeID, t.RecipientID, t.CredentialID, t.TokenHash, t.Salt,
		t.Attempts, t.AttemptLimit, t.ExpiresAt, t.UsedAt, t.RevokedAt, t.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) get(ctx context.Context, query, id string) (*models.SigningTwoFactorToken, error) {
	t := &models.SigningTwoFactorToken{}
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.EnvelopeID, &t.RecipientID, &t.CredentialID, &t.TokenHash, &t.Salt,
		&t.Attempts, &t.AttemptLimit, &t.ExpiresAt, &t.UsedAt, &t.RevokedAt, &t.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.SigningTwoFactorToken, error) {
	return r.get(ctx, `SELECT `+tokenColumns+` FROM signing_two_factor_tokens WHERE id = $1`, id)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.SigningTwoFactorToken, error) {
	return r.get(ctx, `SELECT `+tokenColumns+` FROM signing_two_factor_tokens WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) RegisterFailure(ctx context.Context, id string) (int, error) {
	query :=
		`UPDATE signing_two_factor_tokens SET attempts = attempts + 1
		 WHERE id = $1
		 RETURNING attempts
		 `
	var attempts int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return attempts, nil
}

// MarkUsed consumes the token. It fails with common.ErrInvalidToken when the
// token was already used or revoked concurrently.
func (r *PostgresRepository) MarkUsed(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE signing_two_factor_tokens SET used_at = $2
		WHERE id = $1 AND used_at IS NULL AND revoked_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return common.ErrInvalidToken
	}
	return nil
}

func (r *PostgresRepository) RevokeOutstanding(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	query := `
		UPDATE signing_two_factor_tokens SET revoked_at = $2
		WHERE recipient_id = $1 AND used_at IS NULL AND revoked_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, recipientID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
