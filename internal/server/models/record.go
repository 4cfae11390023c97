package models

import (
	"time"

	"github.com/clinsafe/medledger/internal/hashchain"
)

// Medical record types.
const (
	RecordTypeConsultation = "consultation"
	RecordTypeDiagnosis    = "diagnosis"
	RecordTypePrescription = "prescription"
	RecordTypeLabResult    = "lab_result"
	RecordTypeImaging      = "imaging"
	RecordTypeProcedure    = "procedure"
	RecordTypeVaccination  = "vaccination"
)

// ValidRecordType reports whether t is one of the known record types.
func ValidRecordType(t string) bool {
	switch t {
	case RecordTypeConsultation, RecordTypeDiagnosis, RecordTypePrescription,
		RecordTypeLabResult, RecordTypeImaging, RecordTypeProcedure, RecordTypeVaccination:
		return true
	}
	return false
}

// Chain kinds selectable for verification.
const (
	ChainKindRecords      = "records"
	ChainKindCertificates = "certificates"
)

// Record is one entry in a patient's medical record chain.
//
// AuthorID is frozen at creation: it is hash input, so it is never rewritten
// even if the actor is later deleted (the reference then resolves to
// nothing). Notes, DocumentKey and Active are mutable operational fields and
// deliberately outside tamper evidence; every other content field is frozen
// once ContentHash is computed.
type Record struct {
	ID           string
	PatientID    string
	AuthorID     *string
	RecordType   string
	Title        string
	Diagnosis    string
	Treatment    string
	Prescription string
	Notes        string
	DocumentKey  string
	VisitDate    time.Time
	ChainSeq     int64
	PreviousHash string
	ContentHash  string
	Active       bool
	CreatedAt    time.Time
}

// Snapshot returns the chain-relevant fields of the record in canonical
// form.
func (r *Record) Snapshot() hashchain.Snapshot {
	return hashchain.Snapshot{
		SubjectID: r.PatientID,
		AuthorID:  r.AuthorID,
		Kind:      r.RecordType,
		Content: map[string]string{
			"title":        r.Title,
			"diagnosis":    r.Diagnosis,
			"treatment":    r.Treatment,
			"prescription": r.Prescription,
		},
		EffectiveDate: r.VisitDate,
		RecordedAt:    r.CreatedAt,
	}
}
