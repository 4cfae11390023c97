// Package hashchain implements the tamper-evidence primitives behind patient
// record chains: deterministic canonical encoding of record snapshots,
// SHA-256 content hashing, and verification of individual entries and whole
// chains linked through previous-hash references.
package hashchain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/clinsafe/medledger/internal/common"
)

// HashHexLen is the length of a hex-encoded SHA-256 digest.
const HashHexLen = 64

// DateLayout is the canonical encoding of date-only snapshot fields.
const DateLayout = "2006-01-02"

// SentinelHash marks the head of a chain: the previous-hash value of an
// entry with no predecessor.
var SentinelHash = strings.Repeat("0", HashHexLen)

// Snapshot is the frozen set of chain-relevant fields of a record. Once a
// content hash is computed from a snapshot the underlying record must never
// change these fields again; edits produce new records.
//
// Content carries the kind-specific fields (diagnosis, treatment, purpose,
// ...). Mutable annotations that are deliberately outside tamper evidence
// (free-form notes, workflow status, attachment keys) must not be put here.
type Snapshot struct {
	SubjectID     string
	AuthorID      *string
	Kind          string
	Content       map[string]string
	EffectiveDate time.Time
	RecordedAt    time.Time
}

// Validate reports whether the snapshot carries every field the canonical
// encoding requires. Callers are expected to validate before computing a
// hash; ComputeHash itself is total over well-formed input.
func (s Snapshot) Validate() error {
	if s.SubjectID == "" {
		return fmt.Errorf("%w: snapshot subject id is empty", common.ErrValidation)
	}
	if s.Kind == "" {
		return fmt.Errorf("%w: snapshot kind is empty", common.ErrValidation)
	}
	if s.EffectiveDate.IsZero() {
		return fmt.Errorf("%w: snapshot effective date is not set", common.ErrValidation)
	}
	if s.RecordedAt.IsZero() {
		return fmt.Errorf("%w: snapshot recorded time is not set", common.ErrValidation)
	}
	return nil
}

// CanonicalJSON returns the deterministic byte encoding hashed by
// ComputeHash: a JSON object with lexicographically sorted keys at every
// level, timestamps in UTC RFC 3339, and the resolved previous hash
// embedded alongside the snapshot fields.
func CanonicalJSON(s Snapshot, previousHash string) ([]byte, error) {
	var author any
	if s.AuthorID != nil {
		author = *s.AuthorID
	}

	content := s.Content
	if content == nil {
		content = map[string]string{}
	}

	payload := map[string]any{
		"subject_id":     s.SubjectID,
		"author_id":      author,
		"kind":           s.Kind,
		"content":        content,
		"effective_date": s.EffectiveDate.Format(DateLayout),
		"recorded_at":    s.RecordedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash":  previousHash,
	}

	// encoding/json sorts map keys, which gives the canonical ordering.
	return json.Marshal(payload)
}

// ComputeHash derives the content hash of a snapshot chained to
// previousHash: SHA-256 over the canonical encoding, hex-encoded lowercase.
func ComputeHash(s Snapshot, previousHash string) (string, error) {
	b, err := CanonicalJSON(s, previousHash)
	if err != nil {
		return "", fmt.Errorf("canonical encoding: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the hash of a stored snapshot against its stored
// previous hash and reports whether it matches the stored content hash.
// Nothing is mutated; the recomputed value is discarded.
func Verify(s Snapshot, previousHash, contentHash string) (bool, error) {
	recomputed, err := ComputeHash(s, previousHash)
	if err != nil {
		return false, err
	}
	return recomputed == contentHash, nil
}
