package apitokens

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

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	team := "t1"
	mock.ExpectExec(`INSERT\s+INTO\s+api_credentials`).
		WithArgs("c1", "ci", "u1", "t1", "abc", nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.ApiCredential{
		ID: "c1", Name: "ci", UserID: "u1", TeamID: &team, TokenHash: "abc", CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetByTokenHash(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	cols := []string{"id", "name", "user_id", "team_id", "token_hash", "expires_at", "created_at"}
	mock.ExpectQuery(`(?s)FROM\s+api_credentials\s+WHERE\s+token_hash\s*=\s*\$1`).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("c1", "ci", "u1", nil, "abc", nil, now))

	c, err := repo.GetByTokenHash(context.Background(), "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID != "c1" || c.TeamID != nil || c.ExpiresAt != nil {
		t.Fatalf("unexpected credential: %+v", c)
	}
}

func TestGetByTokenHash_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+api_credentials`).WithArgs("zzz").WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetByTokenHash(context.Background(), "zzz"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestGetByID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now().UTC()
	team := "t1"
	cols := []string{"id", "name", "user_id", "team_id", "token_hash", "expires_at", "created_at"}
	mock.ExpectQuery(`FROM\s+api_credentials\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("c1", "ci", "u1", team, "abc", now.Add(time.Hour), now))

	c, err := repo.GetByID(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.TeamID == nil || *c.TeamID != "t1" || c.ExpiresAt == nil {
		t.Fatalf("unexpected credential: %+v", c)
	}
}
