package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
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
)

// RepositoryManager vends repositories bound to a DBTX, so a service can get
// every repository it needs from the same transaction handle.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Envelopes(db dbx.DBTX) envelopes.Repository
	Items(db dbx.DBTX) items.Repository
	Recipients(db dbx.DBTX) recipients.Repository
	Fields(db dbx.DBTX) fields.Repository
	DocumentData(db dbx.DBTX) documentdata.Repository
	AuditLogs(db dbx.DBTX) auditlogs.Repository
	TwoFactorTokens(db dbx.DBTX) twofactortokens.Repository
	Quotas(db dbx.DBTX) quotas.Repository
	ApiTokens(db dbx.DBTX) apitokens.Repository
	Idempotency(db dbx.DBTX) idempotency.Repository
}
