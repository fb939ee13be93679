// Package server initializes and runs the envelope server.
// It opens the database, applies migrations, wires the services and
// serves the HTTP API until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/envelopekeeper/internal/dbx"
	"github.com/dmitrijs2005/envelopekeeper/internal/logging"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/auth"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/config"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/envelopeid"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/quota"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	services httpapi.Services
}

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(os.Stdout, c.LogLevel, c.LogFormat)

	if err := models.CheckRoleTables(); err != nil {
		return nil, fmt.Errorf("role tables: %w", err)
	}

	ids, err := envelopeid.NewTranslator(c.IDAlphabet)
	if err != nil {
		return nil, fmt.Errorf("id translator: %w", err)
	}

	db, err := sqlOpen("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		services: buildServices(dbx.NewSQLRunner(db, nil), rm, ids, c, logger),
	}, nil
}

// buildServices wires the service graph over any store.
func buildServices(runner dbx.TxRunner, rm repomanager.RepositoryManager, ids *envelopeid.Translator, c *config.Config, l logging.Logger) httpapi.Services {
	plans := quota.NewStaticPlans(quota.Limits{
		UnitsPerPeriod:      c.QuotaUnitsPerPeriod,
		MaxItemsPerEnvelope: c.MaxItemsPerEnvelope,
	})
	audit := services.NewAuditRecorder(rm)
	envelopes := services.NewEnvelopeService(runner, rm, ids, plans, audit, l)
	presign := auth.NewPresignService([]byte(c.SecretKey), c.PresignDefaultTTL)

	return httpapi.Services{
		Envelopes:   envelopes,
		TwoFactor:   services.NewTwoFactorService(runner, rm, envelopes, audit, c, l),
		Auth:        services.NewAuthService(runner, rm, presign, envelopes, l),
		Documents:   services.NewDocumentService(runner, rm, c, l),
		Idempotency: services.NewIdempotencyService(runner, rm),
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.services)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}
