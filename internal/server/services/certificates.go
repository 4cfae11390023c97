package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinsafe/medledger/internal/common"
	"github.com/clinsafe/medledger/internal/dbx"
	"github.com/clinsafe/medledger/internal/hashchain"
	"github.com/clinsafe/medledger/internal/logging"
	"github.com/clinsafe/medledger/internal/server/models"
	"github.com/clinsafe/medledger/internal/server/repositories/repomanager"
	"github.com/clinsafe/medledger/internal/syncx"
	"github.com/google/uuid"
)

// IssueCertificateInput carries the fields for a new medical certificate.
// Status defaults to issued when empty.
type IssueCertificateInput struct {
	PatientID       string
	IssuedBy        *string
	CertificateType string
	Purpose         string
	Diagnosis       string
	Recommendations string
	ValidFrom       time.Time
	ValidUntil      *time.Time
	Status          string
}

// CertificateService appends to and reads from the per-patient certificate
// chain, a chain separate from medical records.
type CertificateService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	auditor     Auditor
	logger      logging.Logger
	chainLocks  *syncx.KeyedMutex
}

// NewCertificateService initializes a CertificateService. chainLocks is
// shared with the record service; keys are namespaced by chain kind.
func NewCertificateService(db *sql.DB, m repomanager.RepositoryManager, auditor Auditor, logger logging.Logger, chainLocks *syncx.KeyedMutex) *CertificateService {
	return &CertificateService{
		db:          db,
		repomanager: m,
		auditor:     auditor,
		logger:      logger,
		chainLocks:  chainLocks,
	}
}

// Issue validates the input, links a new certificate onto the patient's
// certificate chain and persists it.
func (s *CertificateService) Issue(ctx context.Context, in IssueCertificateInput, origin models.Origin) (*models.Certificate, error) {
	if strings.TrimSpace(in.PatientID) == "" {
		return nil, fmt.Errorf("%w: patient id is required", common.ErrValidation)
	}
	if !models.ValidCertType(in.CertificateType) {
		return nil, fmt.Errorf("%w: unknown certificate type %q", common.ErrValidation, in.CertificateType)
	}
	if strings.TrimSpace(in.Purpose) == "" {
		return nil, fmt.Errorf("%w: purpose is required", common.ErrValidation)
	}
	if in.ValidFrom.IsZero() {
		return nil, fmt.Errorf("%w: valid-from date is required", common.ErrValidation)
	}
	if in.ValidUntil != nil && in.ValidUntil.Before(in.ValidFrom) {
		return nil, fmt.Errorf("%w: valid-until precedes valid-from", common.ErrValidation)
	}
	status := in.Status
	if status == "" {
		status = models.CertStatusIssued
	}
	if !models.ValidCertStatus(status) {
		return nil, fmt.Errorf("%w: unknown certificate status %q", common.ErrValidation, in.Status)
	}

	cert := &models.Certificate{
		ID:              uuid.NewString(),
		PatientID:       in.PatientID,
		IssuedBy:        in.IssuedBy,
		CertificateType: in.CertificateType,
		Purpose:         in.Purpose,
		Diagnosis:       in.Diagnosis,
		Recommendations: in.Recommendations,
		ValidFrom:       in.ValidFrom,
		ValidUntil:      in.ValidUntil,
		Status:          status,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.appendCertificate(ctx, cert); err != nil {
		return nil, err
	}

	s.auditor.Record(AuditEntry{
		ActorID: in.IssuedBy,
		Action:  models.ActionRecordCreated,
		Origin:  origin,
		Success: true,
		Detail: map[string]any{
			"certificate_id": cert.ID,
			"patient_id":     cert.PatientID,
			"chain_seq":      cert.ChainSeq,
		},
	})
	return cert, nil
}

// UpdateStatus moves a certificate to a new workflow status. Status lives
// outside the hash, so this never touches the chain.
func (s *CertificateService) UpdateStatus(ctx context.Context, certID, status string, actorID *string, origin models.Origin) error {
	if !models.ValidCertStatus(status) {
		return fmt.Errorf("%w: unknown certificate status %q", common.ErrValidation, status)
	}
	if err := s.repomanager.Certificates(s.db).UpdateStatus(ctx, certID, status); err != nil {
		return err
	}

	s.auditor.Record(AuditEntry{
		ActorID: actorID,
		Action:  models.ActionRecordUpdated,
		Origin:  origin,
		Success: true,
		Detail:  map[string]any{"certificate_id": certID, "status": status},
	})
	return nil
}

// Get returns a single certificate and audits the access. Patients only
// see their own certificates; a foreign one reads as not found and the
// denied probe is audited as a failed record_access.
func (s *CertificateService) Get(ctx context.Context, certID string, actorID *string, role string, origin models.Origin) (*models.Certificate, error) {
	cert, err := s.repomanager.Certificates(s.db).GetByID(ctx, certID)
	if err != nil {
		return nil, err
	}

	if role == models.RolePatient && (actorID == nil || cert.PatientID != *actorID) {
		s.auditor.Record(AuditEntry{
			ActorID: actorID,
			Action:  models.ActionRecordAccess,
			Origin:  origin,
			Success: false,
			Detail:  map[string]any{"certificate_id": certID, "reason": "not_owner"},
		})
		return nil, common.ErrorNotFound
	}

	s.auditor.Record(AuditEntry{
		ActorID: actorID,
		Action:  models.ActionRecordAccess,
		Origin:  origin,
		Success: true,
		Detail:  map[string]any{"certificate_id": cert.ID},
	})
	return cert, nil
}

// ListByPatient returns the patient's certificate chain in chain order.
// Patients may only list themselves.
func (s *CertificateService) ListByPatient(ctx context.Context, patientID string, actorID *string, role string) ([]*models.Certificate, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, fmt.Errorf("%w: patient id is required", common.ErrValidation)
	}
	if role == models.RolePatient && (actorID == nil || patientID != *actorID) {
		return nil, common.ErrorNotFound
	}
	return s.repomanager.Certificates(s.db).ListByPatient(ctx, patientID)
}

// appendCertificate links cert onto the patient's certificate chain and
// inserts it, under the same lock-plus-transaction discipline as records.
func (s *CertificateService) appendCertificate(ctx context.Context, cert *models.Certificate) error {
	unlock := s.chainLocks.Lock(models.ChainKindCertificates + "/" + cert.PatientID)
	defer unlock()

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Certificates(tx)

		seq := int64(1)
		prev := hashchain.SentinelHash
		head, err := repo.Head(ctx, cert.PatientID)
		switch {
		case err == nil:
			seq = head.ChainSeq + 1
			prev = head.ContentHash
		case errors.Is(err, common.ErrorNotFound):
		default:
			return err
		}

		cert.ChainSeq = seq
		cert.PreviousHash = prev

		snap := cert.Snapshot()
		if err := snap.Validate(); err != nil {
			return fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		hash, err := hashchain.ComputeHash(snap, prev)
		if err != nil {
			return err
		}
		cert.ContentHash = hash

		return repo.Insert(ctx, cert)
	})
}
