package auditlogs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/envelopekeeper/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestAppend(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+audit_logs\s*\(id,\s*type,\s*envelope_id,\s*user_id,\s*credential_id,\s*data,\s*created_at\)`).
		WithArgs("a1", "ENVELOPE_CREATED", "e1", "u1", "c1", `{"title":"T"}`, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(context.Background(), &models.AuditLogEntry{
		ID: "a1", Type: models.AuditEnvelopeCreated, EnvelopeID: "e1", UserID: "u1", CredentialID: "c1",
		Data: json.RawMessage(`{"title":"T"}`), CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppend_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+audit_logs`).WillReturnError(errors.New("disk full"))

	err := repo.Append(context.Background(), &models.AuditLogEntry{ID: "a1"})
	if err == nil || !regexp.MustCompile(`db error: .*disk full`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestListByEnvelope(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	cols := []string{"id", "type", "envelope_id", "user_id", "credential_id", "data", "created_at"}
	mock.ExpectQuery(`(?s)FROM\s+audit_logs\s+WHERE\s+envelope_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at`).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("a1", "ENVELOPE_CREATED", "e1", "u1", "", []byte(`{}`), now).
			AddRow("a2", "FIELDS_SET", "e1", "u1", "c1", nil, now))

	got, err := repo.ListByEnvelope(context.Background(), "e1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[1].Type != models.AuditFieldsSet || got[1].Data != nil {
		t.Fatalf("unexpected entries: %+v", got)
	}
}
