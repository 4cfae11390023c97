package hashchain

// Entry pairs a stored record's snapshot with its persisted chain fields,
// ready for verification.
type Entry struct {
	ID           string
	Seq          int64
	Snapshot     Snapshot
	PreviousHash string
	ContentHash  string
}

// BreakKind names which of the two chain checks failed first.
type BreakKind string

const (
	// BreakLink means the entry's stored previous hash does not match the
	// content hash of its predecessor.
	BreakLink BreakKind = "link"
	// BreakContent means the entry's stored content hash does not match the
	// hash recomputed from its stored snapshot.
	BreakContent BreakKind = "content"
)

// Break identifies the first entry that failed verification.
type Break struct {
	EntryID  string    `json:"entry_id"`
	Seq      int64     `json:"seq"`
	Kind     BreakKind `json:"kind"`
	Expected string    `json:"expected"`
	Got      string    `json:"got"`
}

// Result is the outcome of a chain walk. Checked counts the entries fully
// verified before the walk ended; Break is nil when the whole chain passed.
type Result struct {
	Checked int    `json:"checked"`
	Break   *Break `json:"break,omitempty"`
}

// Valid reports whether the walk found no break.
func (r Result) Valid() bool { return r.Break == nil }

// VerifyChain walks entries in the order given (the caller supplies them in
// chain order) keeping a running expected previous hash. Each entry is
// checked twice: its stored previous hash against the running value, then
// its stored content hash against the recomputed one. The walk stops at the
// first break; past a broken entry the expected hash is unreliable, so
// later entries are not judged.
//
// An empty chain verifies clean. The walk never mutates entries.
func VerifyChain(entries []Entry) (Result, error) {
	expected := SentinelHash

	for i, e := range entries {
		if e.PreviousHash != expected {
			return Result{
				Checked: i,
				Break: &Break{
					EntryID:  e.ID,
					Seq:      e.Seq,
					Kind:     BreakLink,
					Expected: expected,
					Got:      e.PreviousHash,
				},
			}, nil
		}

		recomputed, err := ComputeHash(e.Snapshot, e.PreviousHash)
		if err != nil {
			return Result{}, err
		}
		if recomputed != e.ContentHash {
			return Result{
				Checked: i,
				Break: &Break{
					EntryID:  e.ID,
					Seq:      e.Seq,
					Kind:     BreakContent,
					Expected: recomputed,
					Got:      e.ContentHash,
				},
			}, nil
		}

		expected = e.ContentHash
	}

	return Result{Checked: len(entries)}, nil
}
