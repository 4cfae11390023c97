// Package services contains server-side business logic: accounts and
// sessions, the medical record and certificate chains, the audit trail,
// chain verification, and document attachments.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/clinsafe/medledger/internal/common"
	"github.com/clinsafe/medledger/internal/server/models"
	"github.com/clinsafe/medledger/internal/server/repositories/repomanager"
)

// Query pagination bounds. Callers asking for more than maxQueryLimit rows
// get maxQueryLimit.
const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500
)

// AuditEntry is the caller-facing shape of an audit event before the store
// assigns its id and timestamp.
type AuditEntry struct {
	ActorID *string
	Action  string
	Origin  models.Origin
	Success bool
	Detail  map[string]any
}

// Appender is the synchronous audit append contract the recorder drains
// into.
type Appender interface {
	Append(ctx context.Context, entry AuditEntry) (int64, error)
}

// Auditor is the fire-and-forget audit hook handed to business services.
// Record never blocks and never reports failure to the caller; audit
// completeness is best-effort by contract.
type Auditor interface {
	Record(entry AuditEntry)
}

// AccessLogger is the synchronous record-access trail used by record reads
// and downloads.
type AccessLogger interface {
	LogAccess(ctx context.Context, recordID string, actorID *string, accessType string, origin models.Origin) (int64, error)
}

// AuditService owns the append-only audit trail: validating appends, review
// queries, and the per-record access log.
type AuditService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

// NewAuditService constructs an AuditService over the given database.
func NewAuditService(db *sql.DB, m repomanager.RepositoryManager) *AuditService {
	return &AuditService{db: db, repomanager: m}
}

// Append validates and persists one audit event, returning the assigned
// sequence id. The store assigns occurred_at; callers never supply clocks.
// Unknown actions and oversized details fail with common.ErrValidation,
// storage failures with common.ErrStorageUnavailable.
func (s *AuditService) Append(ctx context.Context, entry AuditEntry) (int64, error) {
	if !models.ValidAction(entry.Action) {
		return 0, fmt.Errorf("%w: unknown audit action %q", common.ErrValidation, entry.Action)
	}

	var detail json.RawMessage
	if entry.Detail != nil {
		b, err := json.Marshal(entry.Detail)
		if err != nil {
			return 0, fmt.Errorf("%w: detail not serializable: %v", common.ErrValidation, err)
		}
		if len(b) > models.DetailMaxBytes {
			return 0, fmt.Errorf("%w: detail exceeds %d bytes", common.ErrValidation, models.DetailMaxBytes)
		}
		detail = b
	}

	event := &models.AuditEvent{
		ActorID:     entry.ActorID,
		Action:      entry.Action,
		OriginAddr:  entry.Origin.Addr,
		OriginAgent: entry.Origin.Agent,
		Success:     entry.Success,
		Detail:      detail,
	}
	stored, err := s.repomanager.Audit(s.db).InsertEvent(ctx, event)
	if err != nil {
		return 0, err
	}
	return stored.ID, nil
}

// Query returns audit events matching the filter, most recent first. The
// limit is defaulted and capped; the offset floored at zero.
func (s *AuditService) Query(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEvent, error) {
	filter.Limit = clampLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repomanager.Audit(s.db).QueryEvents(ctx, filter)
}

// LogAccess appends a record access event. Unlike generic audit events the
// origin address and agent are mandatory here.
func (s *AuditService) LogAccess(ctx context.Context, recordID string, actorID *string, accessType string, origin models.Origin) (int64, error) {
	if recordID == "" {
		return 0, fmt.Errorf("%w: record id is empty", common.ErrValidation)
	}
	if !models.ValidAccessType(accessType) {
		return 0, fmt.Errorf("%w: unknown access type %q", common.ErrValidation, accessType)
	}
	if origin.Addr == "" || origin.Agent == "" {
		return 0, fmt.Errorf("%w: access events require origin address and agent", common.ErrValidation)
	}

	event := &models.AccessEvent{
		RecordID:    recordID,
		ActorID:     actorID,
		AccessType:  accessType,
		OriginAddr:  origin.Addr,
		OriginAgent: origin.Agent,
	}
	stored, err := s.repomanager.Audit(s.db).InsertAccessEvent(ctx, event)
	if err != nil {
		return 0, err
	}
	return stored.ID, nil
}

// ListAccessByRecord returns the access trail of one record, most recent
// first.
func (s *AuditService) ListAccessByRecord(ctx context.Context, recordID string, limit, offset int) ([]*models.AccessEvent, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	return s.repomanager.Audit(s.db).ListAccessEventsByRecord(ctx, recordID, limit, offset)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}
