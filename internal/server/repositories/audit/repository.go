// Package audit declares the repository contract for the append-only audit
// trail. The interface exposes no update or delete: once written, events
// are immutable by construction, not by caller discipline.
package audit

import (
	"context"

	"github.com/clinsafe/medledger/internal/server/models"
)

// Repository defines append and query operations over audit events and
// record access events.
type Repository interface {
	// InsertEvent appends an audit event. The store assigns the sequence id
	// and the occurred_at timestamp; both are filled into the returned
	// event. Storage failures are reported as common.ErrStorageUnavailable.
	InsertEvent(ctx context.Context, event *models.AuditEvent) (*models.AuditEvent, error)

	// QueryEvents returns events matching the filter, most recent first
	// (occurred_at descending, id descending on ties).
	QueryEvents(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEvent, error)

	// InsertAccessEvent appends a record access event. Id and timestamp are
	// store-assigned, as with InsertEvent.
	InsertAccessEvent(ctx context.Context, event *models.AccessEvent) (*models.AccessEvent, error)

	// ListAccessEventsByRecord returns access events for one record, most
	// recent first.
	ListAccessEventsByRecord(ctx context.Context, recordID string, limit, offset int) ([]*models.AccessEvent, error)
}
