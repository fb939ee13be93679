package apitokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

// PostgresRepository implements API credential storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.ApiCredential) error {
	query := `
		INSERT INTO api_credentials (id, name, user_id, team_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query, c.ID, c.Name, c.UserID, c.TeamID, c.TokenHash, c.ExpiresAt, c.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const credentialColumns = `id, name, user_id, team_id, token_hash, expires_at, created_at`

func (r *PostgresRepository) get(ctx context.Context, query string, arg string) (*models.ApiCredential, error) {
	c := &models.ApiCredential{}
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&c.ID, &c.Name, &c.UserID, &c.TeamID, &c.TokenHash, &c.ExpiresAt, &c.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) GetByTokenHash(ctx context.Context, hash string) (*models.ApiCredential, error) {
	return r.get(ctx, `SELECT `+credentialColumns+` FROM api_credentials WHERE token_hash = $1`, hash)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.ApiCredential, error) {
	return r.get(ctx, `SELECT `+credentialColumns+` FROM api_credentials WHERE id = $1`, id)
}
