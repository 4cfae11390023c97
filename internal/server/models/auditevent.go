package models

import (
	"encoding/json"
	"time"
)

// Audit action kinds. Appends naming any other action are rejected.
const (
	ActionLogin             = "login"
	ActionLogout            = "logout"
	ActionFailedLogin       = "failed_login"
	ActionPasswordChange    = "password_change"
	ActionPasswordReset     = "password_reset"
	ActionProfileUpdate     = "profile_update"
	ActionRecordAccess      = "record_access"
	ActionRecordCreated     = "record_created"
	ActionRecordUpdated     = "record_updated"
	ActionRecordDeleted     = "record_deleted"
	ActionTwoFactorEnabled  = "2fa_enabled"
	ActionTwoFactorDisabled = "2fa_disabled"
)

var auditActions = map[string]struct{}{
	ActionLogin: {}, ActionLogout: {}, ActionFailedLogin: {},
	ActionPasswordChange: {}, ActionPasswordReset: {}, ActionProfileUpdate: {},
	ActionRecordAccess: {}, ActionRecordCreated: {}, ActionRecordUpdated: {},
	ActionRecordDeleted: {}, ActionTwoFactorEnabled: {}, ActionTwoFactorDisabled: {},
}

// ValidAction reports whether action is one of the enumerated audit kinds.
func ValidAction(action string) bool {
	_, ok := auditActions[action]
	return ok
}

// DetailMaxBytes caps the size of an audit event's detail payload.
const DetailMaxBytes = 16 * 1024

// Origin carries transport-level client metadata attached to events.
type Origin struct {
	Addr  string
	Agent string
}

// AuditEvent is one append-only entry in the security audit log.
//
// ID is the store-assigned sequence: it breaks ties between events sharing
// a timestamp. ActorID is a weak reference; deleting an actor leaves their
// events untouched. Events are never updated or deleted.
type AuditEvent struct {
	ID          int64
	ActorID     *string
	Action      string
	OriginAddr  string
	OriginAgent string
	Success     bool
	Detail      json.RawMessage
	OccurredAt  time.Time
}

// AuditFilter selects audit events for review queries. Nil/zero fields
// match everything; Limit is capped by the store.
type AuditFilter struct {
	ActorID *string
	Action  string
	From    *time.Time
	To      *time.Time
	Success *bool
	Limit   int
	Offset  int
}
