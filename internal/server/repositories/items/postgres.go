package items

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

// PostgresRepository implements envelope item storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, item *models.EnvelopeItem) error {
	query := `
		INSERT INTO envelope_items (id, envelope_id, title, item_order, document_data_id)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, item.ID, item.EnvelopeID, item.Title, item.Order, item.DocumentDataID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByEnvelope(ctx context.Context, envelopeID string) ([]*models.EnvelopeItem, error) {
	query := `
		SELECT id, envelope_id, title, item_order, document_data_id FROM envelope_items
		WHERE envelope_id = $1
		ORDER BY item_order
	`
	rows, err := r.db.QueryContext(ctx, query, envelopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}
	defer rows.Close()

	var result []*models.EnvelopeItem
	for rows.Next() {
		var it models.EnvelopeItem
		if err := rows.Scan(&it.ID, &it.EnvelopeID, &it.Title, &it.Order, &it.DocumentDataID); err != nil {
			return nil, err
		}
		result = append(result, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) EnvelopeIDsByDocumentData(ctx context.Context, dataID string) ([]string, error) {
	query := `SELECT DISTINCT envelope_id FROM envelope_items WHERE document_data_id = $1 ORDER BY envelope_id`
	rows, err := r.db.QueryContext(ctx, query, dataID)
	if err != nil {
		return nil, fmt.Errorf("failed to select items: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Update writes title and order. The order uniqueness constraint is deferred,
// so swapping two orders inside one transaction is fine.
func (r *PostgresRepository) Update(ctx context.Context, item *models.EnvelopeItem) error {
	query := `UPDATE envelope_items SET title = $3, item_order = $4 WHERE envelope_id = $1 AND id = $2`
	return r.execOne(ctx, query, item.EnvelopeID, item.ID, item.Title, item.Order)
}

// Delete removes one item. Fields on it go with it through ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, envelopeID, id string) error {
	query := `DELETE FROM envelope_items WHERE envelope_id = $1 AND id = $2`
	return r.execOne(ctx, query, envelopeID, id)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
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
