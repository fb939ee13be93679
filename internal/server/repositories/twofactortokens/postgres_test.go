package twofactortokens

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/envelopekeeper/internal/common"
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

var cols = []string{"id", "envelope_id", "recipient_id", "credential_id", "token_hash", "salt",
	"attempts", "attempt_limit", "expires_at", "used_at", "revoked_at", "created_at"}

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	exp := now.Add(10 * time.Minute)
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+signing_two_factor_tokens`).
		WithArgs("t1", "e1", "r1", "c1", []byte("hash"), []byte("salt"), 0, 3, exp, nil, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.SigningTwoFactorToken{
		ID: "t1", EnvelopeID: "e1", RecipientID: "r1", CredentialID: "c1",
		TokenHash: []byte("hash"), Salt: []byte("salt"), AttemptLimit: 3, ExpiresAt: exp, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetForUpdate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)FROM\s+signing_two_factor_tokens\s+WHERE\s+id\s*=\s*\$1\s+FOR\s+UPDATE$`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t1", "e1", "r1", "c1", []byte("h"), []byte("s"), int64(2), int64(3), now, nil, nil, now))

	tok, err := repo.GetForUpdate(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Attempts != 2 || tok.AttemptLimit != 3 || tok.UsedAt != nil || tok.Exhausted() {
		t.Fatalf("unexpected token: %+v", tok)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+signing_two_factor_tokens`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "nope"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestRegisterFailure(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)UPDATE\s+signing_two_factor_tokens\s+SET\s+attempts\s*=\s*attempts\s*\+\s*1.*RETURNING\s+attempts`).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(int64(3)))

	n, err := repo.RegisterFailure(context.Background(), "t1")
	if err != nil || n != 3 {
		t.Fatalf("want 3, got %d, %v", n, err)
	}
}

func TestMarkUsed(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	q := `(?s)UPDATE\s+signing_two_factor_tokens\s+SET\s+used_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s+AND\s+used_at\s+IS\s+NULL\s+AND\s+revoked_at\s+IS\s+NULL`
	mock.ExpectExec(q).WithArgs("t1", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("t1", now).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkUsed(context.Background(), "t1", now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.MarkUsed(context.Background(), "t1", now); !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("second use must fail with ErrInvalidToken, got %v", err)
	}
}

func TestRevokeOutstanding(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectExec(`(?s)UPDATE\s+signing_two_factor_tokens\s+SET\s+revoked_at\s*=\s*\$2\s+WHERE\s+recipient_id\s*=\s*\$1`).
		WithArgs("r1", now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.RevokeOutstanding(context.Background(), "r1", now)
	if err != nil || n != 2 {
		t.Fatalf("want 2 revoked, got %d, %v", n, err)
	}
}
