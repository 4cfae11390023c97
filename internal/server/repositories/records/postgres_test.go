package records

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/clinsafe/medledger/internal/common"
	"github.com/clinsafe/medledger/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var recordCols = []string{"id", "patient_id", "author_id", "record_type", "title", "diagnosis",
	"treatment", "prescription", "notes", "document_key", "visit_date", "chain_seq",
	"previous_hash", "content_hash", "active", "created_at"}

func sampleRecord() *models.Record {
	author := "doc-1"
	return &models.Record{
		ID:           "rec-1",
		PatientID:    "pat-1",
		AuthorID:     &author,
		RecordType:   models.RecordTypeDiagnosis,
		Title:        "Seasonal flu",
		Diagnosis:    "Influenza A",
		Treatment:    "Rest, fluids",
		Prescription: "Oseltamivir 75mg",
		VisitDate:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		ChainSeq:     3,
		PreviousHash: "aa11",
		ContentHash:  "bb22",
		Active:       true,
		CreatedAt:    time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+medical_records\s*\(id,\s*patient_id,\s*author_id,\s*record_type,.*VALUES\s*\(\$1,.*\$16\)\s*$`

	rec := sampleRecord()
	mock.ExpectExec(q).
		WithArgs(rec.ID, rec.PatientID, rec.AuthorID, rec.RecordType, rec.Title, rec.Diagnosis,
			rec.Treatment, rec.Prescription, rec.Notes, rec.DocumentKey, rec.VisitDate,
			rec.ChainSeq, rec.PreviousHash, rec.ContentHash, rec.Active, rec.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
}

func TestInsert_SeqTaken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+medical_records`).
		WillReturnError(errors.New(`duplicate key value violates unique constraint "medical_records_patient_id_chain_seq_key"`))

	err := repo.Insert(context.Background(), sampleRecord())
	if err == nil || !regexp.MustCompile(`db error: .*duplicate key`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,\s*patient_id,\s*author_id,.*FROM\s+medical_records\s+WHERE\s+id\s*=\s*\$1$`

	rec := sampleRecord()
	rows := sqlmock.NewRows(recordCols).
		AddRow(rec.ID, rec.PatientID, *rec.AuthorID, rec.RecordType, rec.Title, rec.Diagnosis,
			rec.Treatment, rec.Prescription, rec.Notes, rec.DocumentKey, rec.VisitDate,
			rec.ChainSeq, rec.PreviousHash, rec.ContentHash, rec.Active, rec.CreatedAt)
	mock.ExpectQuery(q).
		WithArgs("rec-1").
		WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.ID != "rec-1" || got.ChainSeq != 3 || got.ContentHash != "bb22" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.AuthorID == nil || *got.AuthorID != "doc-1" {
		t.Fatalf("unexpected author: %v", got.AuthorID)
	}
}

func TestGetByID_NullAuthor(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rec := sampleRecord()
	rows := sqlmock.NewRows(recordCols).
		AddRow(rec.ID, rec.PatientID, nil, rec.RecordType, rec.Title, rec.Diagnosis,
			rec.Treatment, rec.Prescription, rec.Notes, rec.DocumentKey, rec.VisitDate,
			rec.ChainSeq, rec.PreviousHash, rec.ContentHash, rec.Active, rec.CreatedAt)
	mock.ExpectQuery(`FROM\s+medical_records\s+WHERE\s+id`).
		WithArgs("rec-1").
		WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), "rec-1")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.AuthorID != nil {
		t.Fatalf("expected nil author, got %v", *got.AuthorID)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+medical_records\s+WHERE\s+id`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "ghost")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestHead_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+id,\s*chain_seq,\s*content_hash\s+FROM\s+medical_records\s+WHERE\s+patient_id\s*=\s*\$1\s+ORDER\s+BY\s+chain_seq\s+DESC\s+LIMIT\s+1\s*$`

	rows := sqlmock.NewRows([]string{"id", "chain_seq", "content_hash"}).
		AddRow("rec-9", int64(9), "ff99")
	mock.ExpectQuery(q).
		WithArgs("pat-1").
		WillReturnRows(rows)

	got, err := repo.Head(context.Background(), "pat-1")
	if err != nil {
		t.Fatalf("Head error: %v", err)
	}
	if got.ID != "rec-9" || got.ChainSeq != 9 || got.ContentHash != "ff99" {
		t.Fatalf("unexpected head: %+v", got)
	}
}

func TestHead_EmptyChain(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`ORDER\s+BY\s+chain_seq\s+DESC`).
		WithArgs("pat-2").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Head(context.Background(), "pat-2")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestListByPatient_ChainOrder(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,.*FROM\s+medical_records\s+WHERE\s+patient_id\s*=\s*\$1\s+ORDER\s+BY\s+chain_seq\s+ASC$`

	rec := sampleRecord()
	rows := sqlmock.NewRows(recordCols).
		AddRow("rec-1", rec.PatientID, nil, rec.RecordType, rec.Title, rec.Diagnosis,
			rec.Treatment, rec.Prescription, rec.Notes, rec.DocumentKey, rec.VisitDate,
			int64(1), rec.PreviousHash, "h1", true, rec.CreatedAt).
		AddRow("rec-2", rec.PatientID, nil, rec.RecordType, rec.Title, rec.Diagnosis,
			rec.Treatment, rec.Prescription, rec.Notes, rec.DocumentKey, rec.VisitDate,
			int64(2), "h1", "h2", true, rec.CreatedAt)
	mock.ExpectQuery(q).
		WithArgs("pat-1").
		WillReturnRows(rows)

	got, err := repo.ListByPatient(context.Background(), "pat-1")
	if err != nil {
		t.Fatalf("ListByPatient error: %v", err)
	}
	if len(got) != 2 || got[0].ChainSeq != 1 || got[1].ChainSeq != 2 {
		t.Fatalf("unexpected list: %+v", got)
	}
}

func TestSetActive_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+medical_records\s+SET\s+active\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1$`

	mock.ExpectExec(q).
		WithArgs("rec-1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetActive(context.Background(), "rec-1", false); err != nil {
		t.Fatalf("SetActive error: %v", err)
	}
}

func TestSetDocumentKey_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+medical_records\s+SET\s+document_key\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1$`

	mock.ExpectExec(q).
		WithArgs("ghost", "records/2025/3/1/key").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetDocumentKey(context.Background(), "ghost", "records/2025/3/1/key")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}
