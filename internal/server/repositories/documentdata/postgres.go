package documentdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

// PostgresRepository implements document data storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, d *models.DocumentData) error {
	query := `
		INSERT INTO document_data (id, type, data, mime_type, page_count, user_id, team_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query, d.ID, d.Type, d.Data, d.MimeType, d.PageCount, d.UserID, d.TeamID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const selectDocument = `SELECT id, type, data, mime_type, page_count, user_id, team_id FROM document_data WHERE id = $1`

func (r *PostgresRepository) get(ctx context.Context, query, id string) (*models.DocumentData, error) {
	d := &models.DocumentData{}
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.Type, &d.Data, &d.MimeType, &d.PageCount, &d.UserID, &d.TeamID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.DocumentData, error) {
	return r.get(ctx, selectDocument, id)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.DocumentData, error) {
	return r.get(ctx, selectDocument+` FOR UPDATE`, id)
}

func (r *PostgresRepository) GetForShare(ctx context.Context, id string) (*models.DocumentData, error) {
	return r.get(ctx, selectDocument+` FOR SHARE`, id)
}

func (r *PostgresRepository) SetPageCount(ctx context.Context, id string, pages int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE document_data SET page_count = $2 WHERE id = $1`, id, pages)
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
