package models

import "time"

// Record access types.
const (
	AccessView     = "view"
	AccessDownload = "download"
	AccessShare    = "share"
	AccessEdit     = "edit"
)

// ValidAccessType reports whether t is one of the known access types.
func ValidAccessType(t string) bool {
	switch t {
	case AccessView, AccessDownload, AccessShare, AccessEdit:
		return true
	}
	return false
}

// AccessEvent is an append-only log entry naming who touched a record and
// how. Unlike generic audit events, origin address and agent are mandatory
// here.
type AccessEvent struct {
	ID          int64
	RecordID    string
	ActorID     *string
	AccessType  string
	OriginAddr  string
	OriginAgent string
	OccurredAt  time.Time
}
