package fields

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

// PostgresRepository implements field storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func meta(f *models.Field) any {
	if len(f.Meta) == 0 {
		return nil
	}
	return string(f.Meta)
}

func (r *PostgresRepository) Create(ctx context.Context, f *models.Field) error {
	query := `
		INSERT INTO fields (id, envelope_id, envelope_item_id, recipient_id, type, page,
			position_x, position_y, width, height, inserted, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if _, err := r.db.ExecContext(ctx, query,
		f.ID, f.EnvelopeID, f.EnvelopeItemID, f.RecipientID, f.Type, f.Page,
		f.PositionX, f.PositionY, f.Width, f.Height, f.Inserted, meta(f)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByEnvelope(ctx context.Context, envelopeID string) ([]*models.Field, error) {
	query := `
		SELECT id, envelope_id, envelope_item_id, recipient_id, type, page,
			position_x, position_y, width, height, inserted, meta
		FROM fields
		WHERE envelope_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, envelopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to select fields: %w", err)
	}
	defer rows.Close()

	var result []*models.Field
	for rows.Next() {
		var f models.Field
		var m []byte
		if err := rows.Scan(&f.ID, &f.EnvelopeID, &f.EnvelopeItemID, &f.RecipientID, &f.Type, &f.Page,
			&f.PositionX, &f.PositionY, &f.Width, &f.Height, &f.Inserted, &m); err != nil {
			return nil, err
		}
		if len(m) > 0 {
			f.Meta = m
		}
		result = append(result, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Update(ctx context.Context, f *models.Field) error {
	query := `
		UPDATE fields SET
			envelope_item_id = $3,
			type = $4,
			page = $5,
			position_x = $6,
			position_y = $7,
			width = $8,
			height = $9,
			inserted = $10,
			meta = $11
		WHERE envelope_id = $1 AND id = $2
	`
	res, err := r.db.ExecContext(ctx, query,
		f.EnvelopeID, f.ID, f.EnvelopeItemID, f.Type, f.Page,
		f.PositionX, f.PositionY, f.Width, f.Height, f.Inserted, meta(f))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return oneRow(res.RowsAffected())
}

func (r *PostgresRepository) Delete(ctx context.Context, envelopeID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM fields WHERE envelope_id = $1 AND id = $2`, envelopeID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return oneRow(res.RowsAffected())
}

func (r *PostgresRepository) DeleteByItem(ctx context.Context, envelopeID, itemID string) (int64, error) {
	return r.deleteWhere(ctx, `DELETE FROM fields WHERE envelope_id = $1 AND envelope_item_id = $2`, envelopeID, itemID)
}

func (r *PostgresRepository) DeleteByRecipient(ctx context.Context, envelopeID, recipientID string) (int64, error) {
	return r.deleteWhere(ctx, `DELETE FROM fields WHERE envelope_id = $1 AND recipient_id = $2`, envelopeID, recipientID)
}

func (r *PostgresRepository) deleteWhere(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func oneRow(n int64, err error) error {
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
