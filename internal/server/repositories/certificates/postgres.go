package certificates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clinsafe/medledger/internal/common"
	"github.com/clinsafe/medledger/internal/dbx"
	"github.com/clinsafe/medledger/internal/server/models"
)

// PostgresRepository implements certificate chain storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const certColumns = `id, patient_id, issued_by, certificate_type, purpose, diagnosis, recommendations, valid_from, valid_until, status, chain_seq, previous_hash, content_hash, created_at`

func scanCertificate(scan func(dest ...any) error) (*models.Certificate, error) {
	cert := &models.Certificate{}
	err := scan(&cert.ID, &cert.PatientID, &cert.IssuedBy, &cert.CertificateType,
		&cert.Purpose, &cert.Diagnosis, &cert.Recommendations, &cert.ValidFrom,
		&cert.ValidUntil, &cert.Status, &cert.ChainSeq, &cert.PreviousHash,
		&cert.ContentHash, &cert.CreatedAt)
	if err != nil {
		return nil, err
	}
	return cert, nil
}

// Insert persists a certificate with its chain fields already computed. The
// unique (patient_id, chain_seq) constraint backstops the chain lock.
func (r *PostgresRepository) Insert(ctx context.Context, cert *models.Certificate) error {
	query := `
		INSERT INTO medical_certificates
			(id, patient_id, issued_by, certificate_type, purpose, diagnosis, recommendations,
			 valid_from, valid_until, status, chain_seq, previous_hash, content_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	res, err := r.db.ExecContext(ctx, query,
		cert.ID, cert.PatientID, cert.IssuedBy, cert.CertificateType, cert.Purpose,
		cert.Diagnosis, cert.Recommendations, cert.ValidFrom, cert.ValidUntil,
		cert.Status, cert.ChainSeq, cert.PreviousHash, cert.ContentHash, cert.CreatedAt)
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

// GetByID returns the certificate with the given id, or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Certificate, error) {
	query := `SELECT ` + certColumns + ` FROM medical_certificates WHERE id = $1`
	cert, err := scanCertificate(r.db.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return cert, nil
}

// Head returns a minimal row (id, chain_seq, content_hash) for the
// certificate with the highest chain_seq for patientID.
// Returns common.ErrorNotFound when the patient has no certificates.
func (r *PostgresRepository) Head(ctx context.Context, patientID string) (*models.Certificate, error) {
	query := `
		SELECT id, chain_seq, content_hash
		FROM medical_certificates
		WHERE patient_id = $1
		ORDER BY chain_seq DESC
		LIMIT 1
	`
	cert := &models.Certificate{PatientID: patientID}
	err := r.db.QueryRowContext(ctx, query, patientID).Scan(&cert.ID, &cert.ChainSeq, &cert.ContentHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return cert, nil
}

// ListByPatient returns all certificates for patientID in chain_seq order.
func (r *PostgresRepository) ListByPatient(ctx context.Context, patientID string) ([]*models.Certificate, error) {
	query := `SELECT ` + certColumns + ` FROM medical_certificates WHERE patient_id = $1 ORDER BY chain_seq ASC`
	rows, err := r.db.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, cert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateStatus moves the certificate to a new workflow status. The status
// lives outside the hash, so this never touches chain fields.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	query := `UPDATE medical_certificates SET status = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status)
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
