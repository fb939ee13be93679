package server

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/envelopekeeper/internal/logging"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/config"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/envelopeid"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	return c
}

func TestNewApp_OpenError(t *testing.T) {
	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		assert.Equal(t, "pgx", driver)
		return nil, errors.New("boom")
	}

	_, err := NewApp(context.Background(), testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db open error")
}

func TestNewApp_MigrationError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.MatchExpectationsInOrder(false)
	mock.ExpectQuery(".*").WillReturnError(errors.New("no database"))
	mock.ExpectExec(".*").WillReturnError(errors.New("no database"))
	mock.ExpectClose()

	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })
	sqlOpen = func(string, string) (*sql.DB, error) { return db, nil }

	_, err = NewApp(context.Background(), testConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration error")
}

func TestNewApp_BadAlphabet(t *testing.T) {
	c := testConfig()
	c.IDAlphabet = "aab"

	_, err := NewApp(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id translator")
}

func TestBuildServices_ServesHTTP(t *testing.T) {
	c := testConfig()
	store := memory.NewStore()
	ids, err := envelopeid.NewTranslator(c.IDAlphabet)
	require.NoError(t, err)

	svc := buildServices(store, store, ids, c, logging.Nop{})
	require.NotNil(t, svc.Envelopes)
	require.NotNil(t, svc.TwoFactor)
	require.NotNil(t, svc.Auth)
	require.NotNil(t, svc.Documents)
	require.NotNil(t, svc.Idempotency)

	h := httpapi.NewHTTPServer(":0", logging.Nop{}, svc).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v2/envelopes/x", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
