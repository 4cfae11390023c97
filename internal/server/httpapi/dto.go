package httpapi

import (
	"encoding/json"
	"time"

	"github.com/clinsafe/medledger/internal/server/models"
)

// Response shapes. Actors in particular must never serialize their password
// material, so the API renders dedicated types instead of the models.

type actorResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Role             string     `json:"role"`
	Phone            string     `json:"phone,omitempty"`
	Active           bool       `json:"active"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	CreatedAt        time.Time  `json:"created_at"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
}

func toActorResponse(a *models.Actor) actorResponse {
	return actorResponse{
		ID:               a.ID,
		Email:            a.Email,
		FirstName:        a.FirstName,
		LastName:         a.LastName,
		Role:             a.Role,
		Phone:            a.Phone,
		Active:           a.Active,
		TwoFactorEnabled: a.TwoFactorEnabled,
		CreatedAt:        a.CreatedAt,
		LastLogin:        a.LastLogin,
	}
}

type recordResponse struct {
	ID           string    `json:"id"`
	PatientID    string    `json:"patient_id"`
	AuthorID     *string   `json:"author_id,omitempty"`
	RecordType   string    `json:"record_type"`
	Title        string    `json:"title"`
	Diagnosis    string    `json:"diagnosis,omitempty"`
	Treatment    string    `json:"treatment,omitempty"`
	Prescription string    `json:"prescription,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	DocumentKey  string    `json:"document_key,omitempty"`
	VisitDate    time.Time `json:"visit_date"`
	ChainSeq     int64     `json:"chain_seq"`
	PreviousHash string    `json:"previous_hash"`
	ContentHash  string    `json:"content_hash"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

func toRecordResponse(r *models.Record) recordResponse {
	return recordResponse{
		ID:           r.ID,
		PatientID:    r.PatientID,
		AuthorID:     r.AuthorID,
		RecordType:   r.RecordType,
		Title:        r.Title,
		Diagnosis:    r.Diagnosis,
		Treatment:    r.Treatment,
		Prescription: r.Prescription,
		Notes:        r.Notes,
		DocumentKey:  r.DocumentKey,
		VisitDate:    r.VisitDate,
		ChainSeq:     r.ChainSeq,
		PreviousHash: r.PreviousHash,
		ContentHash:  r.ContentHash,
		Active:       r.Active,
		CreatedAt:    r.CreatedAt,
	}
}

func toRecordResponses(recs []*models.Record) []recordResponse {
	out := make([]recordResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, toRecordResponse(r))
	}
	return out
}

type certificateResponse struct {
	ID              string     `json:"id"`
	PatientID       string     `json:"patient_id"`
	IssuedBy        *string    `json:"issued_by,omitempty"`
	CertificateType string     `json:"certificate_type"`
	Purpose         string     `json:"purpose"`
	Diagnosis       string     `json:"diagnosis,omitempty"`
	Recommendations string     `json:"recommendations,omitempty"`
	ValidFrom       time.Time  `json:"valid_from"`
	ValidUntil      *time.Time `json:"valid_until,omitempty"`
	Status          string     `json:"status"`
	ChainSeq        int64      `json:"chain_seq"`
	PreviousHash    string     `json:"previous_hash"`
	ContentHash     string     `json:"content_hash"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toCertificateResponse(c *models.Certificate) certificateResponse {
	return certificateResponse{
		ID:              c.ID,
		PatientID:       c.PatientID,
		IssuedBy:        c.IssuedBy,
		CertificateType: c.CertificateType,
		Purpose:         c.Purpose,
		Diagnosis:       c.Diagnosis,
		Recommendations: c.Recommendations,
		ValidFrom:       c.ValidFrom,
		ValidUntil:      c.ValidUntil,
		Status:          c.Status,
		ChainSeq:        c.ChainSeq,
		PreviousHash:    c.PreviousHash,
		ContentHash:     c.ContentHash,
		CreatedAt:       c.CreatedAt,
	}
}

func toCertificateResponses(certs []*models.Certificate) []certificateResponse {
	out := make([]certificateResponse, 0, len(certs))
	for _, c := range certs {
		out = append(out, toCertificateResponse(c))
	}
	return out
}

type auditEventResponse struct {
	ID          int64           `json:"id"`
	ActorID     *string         `json:"actor_id,omitempty"`
	Action      string          `json:"action"`
	OriginAddr  string          `json:"origin_addr,omitempty"`
	OriginAgent string          `json:"origin_agent,omitempty"`
	Success     bool            `json:"success"`
	Detail      json.RawMessage `json:"detail,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func toAuditEventResponses(events []*models.AuditEvent) []auditEventResponse {
	out := make([]auditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, auditEventResponse{
			ID:          e.ID,
			ActorID:     e.ActorID,
			Action:      e.Action,
			OriginAddr:  e.OriginAddr,
			OriginAgent: e.OriginAgent,
			Success:     e.Success,
			Detail:      e.Detail,
			OccurredAt:  e.OccurredAt,
		})
	}
	return out
}

type accessEventResponse struct {
	ID          int64     `json:"id"`
	RecordID    string    `json:"record_id"`
	ActorID     *string   `json:"actor_id,omitempty"`
	AccessType  string    `json:"access_type"`
	OriginAddr  string    `json:"origin_addr"`
	OriginAgent string    `json:"origin_agent"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func toAccessEventResponses(events []*models.AccessEvent) []accessEventResponse {
	out := make([]accessEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, accessEventResponse{
			ID:          e.ID,
			RecordID:    e.RecordID,
			ActorID:     e.ActorID,
			AccessType:  e.AccessType,
			OriginAddr:  e.OriginAddr,
			OriginAgent: e.OriginAgent,
			OccurredAt:  e.OccurredAt,
		})
	}
	return out
}
