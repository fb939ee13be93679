package quotas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/envelopekeeper/internal/common"
	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
)

// PostgresRepository implements quota accounting over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Consume is a single conditional upsert: the row lock taken by ON CONFLICT
// serializes concurrent callers, and the WHERE clause makes the increment a
// compare-and-swap against the limit. No row returned means the limit is hit.
func (r *PostgresRepository) Consume(ctx context.Context, owner string, period time.Time, limit int) (int, error) {
	if limit == 0 {
		return 0, common.ErrQuotaExceeded
	}
	query := `
		INSERT INTO quota_usage (owner_key, period_start, used)
		VALUES ($1, $2, 1)
		ON CONFLICT (owner_key, period_start)
		DO UPDATE SET used = quota_usage.used + 1
			WHERE $3 < 0 OR quota_usage.used < $3
		RETURNING used
	`
	var used int
	if err := r.db.QueryRowContext(ctx, query, owner, period, limit).Scan(&used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrQuotaExceeded
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return used, nil
}

func (r *PostgresRepository) Used(ctx context.Context, owner string, period time.Time) (int, error) {
	query := `SELECT used FROM quota_usage WHERE owner_key = $1 AND period_start = $2`
	var used int
	if err := r.db.QueryRowContext(ctx, query, owner, period).Scan(&used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return used, nil
}
