package models

import (
	"time"

	"github.com/clinsafe/medledger/internal/hashchain"
)

// Medical certificate types.
const (
	CertTypeSickLeave        = "sick_leave"
	CertTypeFitToWork        = "fit_to_work"
	CertTypeMedicalClearance = "medical_clearance"
	CertTypeVaccination      = "vaccination"
	CertTypeDisability       = "disability"
)

// ValidCertType reports whether t is one of the known certificate types.
func ValidCertType(t string) bool {
	switch t {
	case CertTypeSickLeave, CertTypeFitToWork, CertTypeMedicalClearance,
		CertTypeVaccination, CertTypeDisability:
		return true
	}
	return false
}

// Certificate workflow statuses.
const (
	CertStatusPending = "pending"
	CertStatusIssued  = "issued"
	CertStatusRevoked = "revoked"
)

// ValidCertStatus reports whether s is a known certificate status.
func ValidCertStatus(s string) bool {
	return s == CertStatusPending || s == CertStatusIssued || s == CertStatusRevoked
}

// Certificate is one entry in a patient's certificate chain. Certificates
// chain per patient exactly like records, in a chain of their own.
//
// Status is workflow state (pending, issued, revoked) and stays outside the
// hash: revoking a certificate must not look like tampering. IssuedBy is
// frozen at creation for the same reason record authors are.
type Certificate struct {
	ID              string
	PatientID       string
	IssuedBy        *string
	CertificateType string
	Purpose         string
	Diagnosis       string
	Recommendations string
	ValidFrom       time.Time
	ValidUntil      *time.Time
	Status          string
	ChainSeq        int64
	PreviousHash    string
	ContentHash     string
	CreatedAt       time.Time
}

// Snapshot returns the chain-relevant fields of the certificate in
// canonical form. ValidUntil encodes as an empty string when open-ended so
// its presence is always part of the hashed shape.
func (c *Certificate) Snapshot() hashchain.Snapshot {
	validUntil := ""
	if c.ValidUntil != nil {
		validUntil = c.ValidUntil.Format(hashchain.DateLayout)
	}

	return hashchain.Snapshot{
		SubjectID: c.PatientID,
		AuthorID:  c.IssuedBy,
		Kind:      c.CertificateType,
		Content: map[string]string{
			"purpose":         c.Purpose,
			"diagnosis":       c.Diagnosis,
			"recommendations": c.Recommendations,
			"valid_until":     validUntil,
		},
		EffectiveDate: c.ValidFrom,
		RecordedAt:    c.CreatedAt,
	}
}
