package items

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

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

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+envelope_items\s*\(id,\s*envelope_id,\s*title,\s*item_order,\s*document_data_id\)`).
		WithArgs("i1", "e1", "A.pdf", 1, "d1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.EnvelopeItem{ID: "i1", EnvelopeID: "e1", Title: "A.pdf", Order: 1, DocumentDataID: "d1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+envelope_items`).WillReturnError(errors.New("db down"))

	err := repo.Create(context.Background(), &models.EnvelopeItem{ID: "i1"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestListByEnvelope(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "envelope_id", "title", "item_order", "document_data_id"}).
		AddRow("i1", "e1", "A.pdf", 1, "d1").
		AddRow("i2", "e1", "B.pdf", 2, "d2")
	mock.ExpectQuery(`(?s)FROM\s+envelope_items\s+WHERE\s+envelope_id\s*=\s*\$1\s+ORDER\s+BY\s+item_order`).
		WithArgs("e1").
		WillReturnRows(rows)

	got, err := repo.ListByEnvelope(context.Background(), "e1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[1].Title != "B.pdf" || got[1].Order != 2 {
		t.Fatalf("unexpected items: %+v", got)
	}
}

func TestListByEnvelope_QueryError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+envelope_items`).WillReturnError(errors.New("boom"))

	if _, err := repo.ListByEnvelope(context.Background(), "e1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestUpdate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+envelope_items\s+SET\s+title\s*=\s*\$3,\s*item_order\s*=\s*\$4`).
		WithArgs("e1", "i1", "Renamed", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Update(context.Background(), &models.EnvelopeItem{ID: "i1", EnvelopeID: "e1", Title: "Renamed", Order: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+envelope_items`).WithArgs("e1", "missing").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), "e1", "missing"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestEnvelopeIDsByDocumentData(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+DISTINCT\s+envelope_id\s+FROM\s+envelope_items\s+WHERE\s+document_data_id\s*=\s*\$1`).
		WithArgs("d1").
		WillReturnRows(sqlmock.NewRows([]string{"envelope_id"}).AddRow("e1").AddRow("e2"))
	mock.ExpectQuery(`FROM\s+envelope_items`).WithArgs("d2").WillReturnRows(sqlmock.NewRows([]string{"envelope_id"}))

	ids, err := repo.EnvelopeIDsByDocumentData(context.Background(), "d1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "e1" || ids[1] != "e2" {
		t.Fatalf("want [e1 e2], got %v", ids)
	}
	ids, err = repo.EnvelopeIDsByDocumentData(context.Background(), "d2")
	if err != nil || len(ids) != 0 {
		t.Fatalf("want no ids, got %v, %v", ids, err)
	}
}
