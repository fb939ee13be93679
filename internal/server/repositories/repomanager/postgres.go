// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/migrations"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/apitokens"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/auditlogs"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/documentdata"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/envelopes"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/fields"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/idempotency"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/items"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/quotas"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/recipients"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/twofactortokens"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Envelopes(db dbx.DBTX) envelopes.Repository {
	return envelopes.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Items(db dbx.DBTX) items.Repository {
	return items.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Recipients(db dbx.DBTX) recipients.Repository {
	return recipients.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Fields(db dbx.DBTX) fields.Repository {
	return fields.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) DocumentData(db dbx.DBTX) documentdata.Repository {
	return documentdata.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) AuditLogs(db dbx.DBTX) auditlogs.Repository {
	return auditlogs.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) TwoFactorTokens(db dbx.DBTX) twofactortokens.Repository {
	return twofactortokens.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Quotas(db dbx.DBTX) quotas.Repository {
	return quotas.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) ApiTokens(db dbx.DBTX) apitokens.Repository {
	return apitokens.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Idempotency(db dbx.DBTX) idempotency.Repository {
	return idempotency.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}
