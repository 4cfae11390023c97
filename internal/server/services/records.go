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

// CreateRecordInput carries the fields for a new medical record.
type CreateRecordInput struct {
	PatientID    string
	AuthorID     *string
	RecordType   string
	Title        string
	Diagnosis    string
	Treatment    string
	Prescription string
	Notes        string
	VisitDate    time.Time
}

// AmendRecordInput carries the corrected fields for an amendment. Empty
// fields keep the value of the record being amended.
type AmendRecordInput struct {
	AuthorID     *string
	Title        string
	Diagnosis    string
	Treatment    string
	Prescription string
	Notes        string
}

// RecordService appends to and reads from the per-patient medical record
// chain. All appends for one patient run under a per-chain lock so the chain
// never forks.
type RecordService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	auditor     Auditor
	access      AccessLogger
	logger      logging.Logger
	chainLocks  *syncx.KeyedMutex
}

// NewRecordService initializes a RecordService. chainLocks is shared with
// the certificate service; keys are namespaced by chain kind.
func NewRecordService(db *sql.DB, m repomanager.RepositoryManager, auditor Auditor, access AccessLogger, logger logging.Logger, chainLocks *syncx.KeyedMutex) *RecordService {
	return &RecordService{
		db:          db,
		repomanager: m,
		auditor:     auditor,
		access:      access,
		logger:      logger,
		chainLocks:  chainLocks,
	}
}

// Create validates the input, links a new record onto the patient's chain
// and persists it.
func (s *RecordService) Create(ctx context.Context, in CreateRecordInput, origin models.Origin) (*models.Record, error) {
	if strings.TrimSpace(in.PatientID) == "" {
		return nil, fmt.Errorf("%w: patient id is required", common.ErrValidation)
	}
	if !models.ValidRecordType(in.RecordType) {
		return nil, fmt.Errorf("%w: unknown record type %q", common.ErrValidation, in.RecordType)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", common.ErrValidation)
	}
	if in.VisitDate.IsZero() {
		return nil, fmt.Errorf("%w: visit date is required", common.ErrValidation)
	}

	rec := &models.Record{
		ID:           uuid.NewString(),
		PatientID:    in.PatientID,
		AuthorID:     in.AuthorID,
		RecordType:   in.RecordType,
		Title:        in.Title,
		Diagnosis:    in.Diagnosis,
		Treatment:    in.Treatment,
		Prescription: in.Prescription,
		Notes:        in.Notes,
		VisitDate:    in.VisitDate,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.appendRecord(ctx, rec); err != nil {
		return nil, err
	}

	s.auditor.Record(AuditEntry{
		ActorID: in.AuthorID,
		Action:  models.ActionRecordCreated,
		Origin:  origin,
		Success: true,
		Detail: map[string]any{
			"record_id":  rec.ID,
			"patient_id": rec.PatientID,
			"chain_seq":  rec.ChainSeq,
		},
	})
	return rec, nil
}

// Amend appends a corrected version of an existing record to the chain. The
// original stays in place; earlier links are never rewritten.
func (s *RecordService) Amend(ctx context.Context, recordID string, in AmendRecordInput, origin models.Origin) (*models.Record, error) {
	orig, err := s.repomanager.Records(s.db).GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	rec := &models.Record{
		ID:           uuid.NewString(),
		PatientID:    orig.PatientID,
		AuthorID:     orig.AuthorID,
		RecordType:   orig.RecordType,
		Title:        orig.Title,
		Diagnosis:    orig.Diagnosis,
		Treatment:    orig.Treatment,
		Prescription: orig.Prescription,
		Notes:        orig.Notes,
		VisitDate:    orig.VisitDate,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if in.AuthorID != nil {
		rec.AuthorID = in.AuthorID
	}
	if in.Title != "" {
		rec.Title = in.Title
	}
	if in.Diagnosis != "" {
		rec.Diagnosis = in.Diagnosis
	}
	if in.Treatment != "" {
		rec.Treatment = in.Treatment
	}
	if in.Prescription != "" {
		rec.Prescription = in.Prescription
	}
	if in.Notes != "" {
		rec.Notes = in.Notes
	}

	if err := s.appendRecord(ctx, rec); err != nil {
		return nil, err
	}

	s.auditor.Record(AuditEntry{
		ActorID: rec.AuthorID,
		Action:  models.ActionRecordUpdated,
		Origin:  origin,
		Success: true,
		Detail: map[string]any{
			"record_id":  rec.ID,
			"supersedes": orig.ID,
			"patient_id": rec.PatientID,
		},
	})
	return rec, nil
}

// Deactivate soft-deletes a record. The row keeps its place in the chain so
// verification still covers it.
func (s *RecordService) Deactivate(ctx context.Context, recordID string, actorID *string, origin models.Origin) error {
	if err := s.repomanager.Records(s.db).SetActive(ctx, recordID, false); err != nil {
		return err
	}

	s.auditor.Record(AuditEntry{
		ActorID: actorID,
		Action:  models.ActionRecordDeleted,
		Origin:  origin,
		Success: true,
		Detail:  map[string]any{"record_id": recordID},
	})
	return nil
}

// Get returns a single record and leaves an access trail behind: a
// row-level access event plus a record_access audit event. A failed access
// write is logged but never fails the read.
//
// Patients only see their own chain. A foreign record reads as not found
// so record ids stay unguessable, and the denied probe is audited as a
// failed record_access instead of polluting the access-event trail.
func (s *RecordService) Get(ctx context.Context, recordID string, actorID *string, role string, origin models.Origin) (*models.Record, error) {
	rec, err := s.repomanager.Records(s.db).GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if role == models.RolePatient && (actorID == nil || rec.PatientID != *actorID) {
		s.auditor.Record(AuditEntry{
			ActorID: actorID,
			Action:  models.ActionRecordAccess,
			Origin:  origin,
			Success: false,
			Detail:  map[string]any{"record_id": recordID, "reason": "not_owner"},
		})
		return nil, common.ErrorNotFound
	}

	if _, err := s.access.LogAccess(ctx, rec.ID, actorID, models.AccessView, origin); err != nil {
		s.logger.Warn(ctx, "failed to log record access", "record_id", rec.ID, "error", err)
	}
	s.auditor.Record(AuditEntry{
		ActorID: actorID,
		Action:  models.ActionRecordAccess,
		Origin:  origin,
		Success: true,
		Detail:  map[string]any{"record_id": rec.ID},
	})
	return rec, nil
}

// ListByPatient returns the patient's record chain in chain order. Patients
// may only list themselves; anyone else's chain reads as not found.
func (s *RecordService) ListByPatient(ctx context.Context, patientID string, actorID *string, role string) ([]*models.Record, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, fmt.Errorf("%w: patient id is required", common.ErrValidation)
	}
	if role == models.RolePatient && (actorID == nil || patientID != *actorID) {
		return nil, common.ErrorNotFound
	}
	return s.repomanager.Records(s.db).ListByPatient(ctx, patientID)
}

// appendRecord links rec onto the patient's chain and inserts it. The
// per-chain lock plus the transaction make head lookup and insert atomic;
// the unique (patient_id, chain_seq) constraint backstops both.
func (s *RecordService) appendRecord(ctx context.Context, rec *models.Record) error {
	unlock := s.chainLocks.Lock(models.ChainKindRecords + "/" + rec.PatientID)
	defer unlock()

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Records(tx)

		seq := int64(1)
		prev := hashchain.SentinelHash
		head, err := repo.Head(ctx, rec.PatientID)
		switch {
		case err == nil:
			seq = head.ChainSeq + 1
			prev = head.ContentHash
		case errors.Is(err, common.ErrorNotFound):
		default:
			return err
		}

		rec.ChainSeq = seq
		rec.PreviousHash = prev

		snap := rec.Snapshot()
		if err := snap.Validate(); err != nil {
			return fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		hash, err := hashchain.ComputeHash(snap, prev)
		if err != nil {
			return err
		}
		rec.ContentHash = hash

		return repo.Insert(ctx, rec)
	})
}
