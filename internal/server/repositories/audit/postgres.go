package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/clinsafe/medledger/internal/common"
	"github.com/clinsafe/medledger/internal/dbx"
	"github.com/clinsafe/medledger/internal/server/models"
)

// PostgresRepository implements the audit trail over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InsertEvent appends an audit event. The database assigns the sequence id
// and occurred_at; driver failures come back as common.ErrStorageUnavailable
// so the recorder can recover them without inspecting driver internals.
func (r *PostgresRepository) InsertEvent(ctx context.Context, event *models.AuditEvent) (*models.AuditEvent, error) {
	query := `
		INSERT INTO audit_events (actor_id, action, origin_address, origin_agent, success, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, occurred_at
	`
	err := r.db.QueryRowContext(ctx, query,
		event.ActorID, event.Action, event.OriginAddr, event.OriginAgent,
		event.Success, event.Detail).Scan(&event.ID, &event.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	return event, nil
}

// QueryEvents returns events matching the filter in descending timestamp
// order, ties broken by descending sequence id.
func (r *PostgresRepository) QueryEvents(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEvent, error) {
	query := `SELECT id, actor_id, action, origin_address, origin_agent, success, detail, occurred_at FROM audit_events`

	var conds []string
	var args []any
	if filter.ActorID != nil {
		args = append(args, *filter.ActorID)
		conds = append(conds, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conds = append(conds, fmt.Sprintf("action = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conds = append(conds, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conds = append(conds, fmt.Sprintf("occurred_at < $%d", len(args)))
	}
	if filter.Success != nil {
		args = append(args, *filter.Success)
		conds = append(conds, fmt.Sprintf("success = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditEvent
	for rows.Next() {
		var item models.AuditEvent
		if err := rows.Scan(&item.ID, &item.ActorID, &item.Action, &item.OriginAddr,
			&item.OriginAgent, &item.Success, &item.Detail, &item.OccurredAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// InsertAccessEvent appends a record access event with store-assigned id
// and timestamp.
func (r *PostgresRepository) InsertAccessEvent(ctx context.Context, event *models.AccessEvent) (*models.AccessEvent, error) {
	query := `
		INSERT INTO record_access_events (record_id, actor_id, access_type, origin_address, origin_agent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, occurred_at
	`
	err := r.db.QueryRowContext(ctx, query,
		event.RecordID, event.ActorID, event.AccessType, event.OriginAddr,
		event.OriginAgent).Scan(&event.ID, &event.OccurredAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	return event, nil
}

// ListAccessEventsByRecord returns access events for recordID, most recent
// first.
func (r *PostgresRepository) ListAccessEventsByRecord(ctx context.Context, recordID string, limit, offset int) ([]*models.AccessEvent, error) {
	query := `
		SELECT id, record_id, actor_id, access_type, origin_address, origin_agent, occurred_at
		FROM record_access_events
		WHERE record_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, recordID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.AccessEvent
	for rows.Next() {
		var item models.AccessEvent
		if err := rows.Scan(&item.ID, &item.RecordID, &item.ActorID, &item.AccessType,
			&item.OriginAddr, &item.OriginAgent, &item.OccurredAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
