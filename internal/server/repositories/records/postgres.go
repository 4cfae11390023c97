package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clinsafe/medledger/internal/common"
	"github.com/clinsafe/medledger/internal/dbx"
	"github.com/clinsafe/medledger/internal/server/models"
)

// PostgresRepository implements record chain storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, patient_id, author_id, record_type, title, diagnosis, treatment, prescription, notes, document_key, visit_date, chain_seq, previous_hash, content_hash, active, created_at`

func scanRecord(scan func(dest ...any) error) (*models.Record, error) {
	rec := &models.Record{}
	err := scan(&rec.ID, &rec.PatientID, &rec.AuthorID, &rec.RecordType,
		&rec.Title, &rec.Diagnosis, &rec.Treatment, &rec.Prescription,
		&rec.Notes, &rec.DocumentKey, &rec.VisitDate, &rec.ChainSeq,
		&rec.PreviousHash, &rec.ContentHash, &rec.Active, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Insert persists a record with its chain fields already computed. The
// unique (patient_id, chain_seq) constraint backstops the chain lock: a
// racing insert fails rather than forking the chain.
func (r *PostgresRepository) Insert(ctx context.Context, rec *models.Record) error {
	query := `
		INSERT INTO medical_records
			(id, patient_id, author_id, record_type, title, diagnosis, treatment, prescription,
			 notes, document_key, visit_date, chain_seq, previous_hash, content_hash, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	res, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.PatientID, rec.AuthorID, rec.RecordType, rec.Title, rec.Diagnosis,
		rec.Treatment, rec.Prescription, rec.Notes, rec.DocumentKey, rec.VisitDate,
		rec.ChainSeq, rec.PreviousHash, rec.ContentHash, rec.Active, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

// GetByID returns the record with the given id, or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM medical_records WHERE id = $1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

// Head returns a minimal row (id, chain_seq, content_hash) for the record
// with the highest chain_seq for patientID, used for predecessor resolution.
// Returns common.ErrorNotFound when the patient has no records.
func (r *PostgresRepository) Head(ctx context.Context, patientID string) (*models.Record, error) {
	query := `
		SELECT id, chain_seq, content_hash
		FROM medical_records
		WHERE patient_id = $1
		ORDER BY chain_seq DESC
		LIMIT 1
	`
	rec := &models.Record{PatientID: patientID}
	err := r.db.QueryRowContext(ctx, query, patientID).Scan(&rec.ID, &rec.ChainSeq, &rec.ContentHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

// ListByPatient returns all records for patientID in chain_seq order, the
// same total order chain construction uses.
func (r *PostgresRepository) ListByPatient(ctx context.Context, patientID string) ([]*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM medical_records WHERE patient_id = $1 ORDER BY chain_seq ASC`
	rows, err := r.db.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SetActive flips the soft-delete flag on a record.
func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE medical_records SET active = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, active)
}

// SetDocumentKey attaches a storage key to the record.
func (r *PostgresRepository) SetDocumentKey(ctx context.Context, id string, key string) error {
	query := `UPDATE medical_records SET document_key = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, key)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
