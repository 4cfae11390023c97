package hashchain

import (
	"fmt"
	"testing"
	"time"
)

// buildTestChain constructs n consecutive valid entries for one subject.
func buildTestChain(t *testing.T, n int) []Entry {
	t.Helper()

	author := "27f9b4a7-90bb-4a28-bc11-0a2a7fca61b2"
	entries := make([]Entry, 0, n)
	prev := SentinelHash

	for i := 0; i < n; i++ {
		s := Snapshot{
			SubjectID: "f6a19887-9d83-49b0-8a0f-e2a2b1c0d53e",
			AuthorID:  &author,
			Kind:      "consultation",
			Content: map[string]string{
				"title":     fmt.Sprintf("Visit %d", i+1),
				"diagnosis": fmt.Sprintf("Observation %d", i+1),
			},
			EffectiveDate: time.Date(2025, 4, 1+i, 0, 0, 0, 0, time.UTC),
			RecordedAt:    time.Date(2025, 4, 1+i, 9, 0, 0, 0, time.UTC),
		}

		h, err := ComputeHash(s, prev)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		entries = append(entries, Entry{
			ID:           fmt.Sprintf("rec-%d", i+1),
			Seq:          int64(i + 1),
			Snapshot:     s,
			PreviousHash: prev,
			ContentHash:  h,
		})
		prev = h
	}

	return entries
}

func TestVerifyChain_EmptyIsClean(t *testing.T) {
	res, err := VerifyChain(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Valid() {
		t.Errorf("empty chain must verify clean")
	}
	if res.Checked != 0 {
		t.Errorf("expected 0 checked entries, got %d", res.Checked)
	}
}

func TestVerifyChain_AllValid(t *testing.T) {
	entries := buildTestChain(t, 3)

	res, err := VerifyChain(entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Valid() {
		t.Fatalf("expected clean result, got break %+v", res.Break)
	}
	if res.Checked != 3 {
		t.Errorf("expected 3 checked entries, got %d", res.Checked)
	}
}

func TestVerifyChain_ReportsTamperedMiddleRecord(t *testing.T) {
	entries := buildTestChain(t, 3)

	// Tamper with record 2's content in "storage" without recomputing its
	// hash. Record 3 still links to record 2's stored hash, so the first
	// and only break must be record 2's content check.
	entries[1].Snapshot.Content["diagnosis"] = "rewritten later"

	res, err := VerifyChain(entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Valid() {
		t.Fatalf("expected a break, got clean result")
	}
	if res.Break.EntryID != "rec-2" {
		t.Errorf("expected break at rec-2, got %s", res.Break.EntryID)
	}
	if res.Break.Kind != BreakContent {
		t.Errorf("expected content break, got %s", res.Break.Kind)
	}
	if res.Checked != 1 {
		t.Errorf("expected 1 entry checked before the break, got %d", res.Checked)
	}
	if res.Break.Got != entries[1].ContentHash {
		t.Errorf("break must carry the stored hash as got")
	}
}

func TestVerifyChain_ReportsBrokenLink(t *testing.T) {
	entries := buildTestChain(t, 3)

	entries[2].PreviousHash = SentinelHash

	res, err := VerifyChain(entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Valid() {
		t.Fatalf("expected a break, got clean result")
	}
	if res.Break.EntryID != "rec-3" {
		t.Errorf("expected break at rec-3, got %s", res.Break.EntryID)
	}
	if res.Break.Kind != BreakLink {
		t.Errorf("expected link break, got %s", res.Break.Kind)
	}
	if res.Break.Expected != entries[1].ContentHash {
		t.Errorf("expected running hash %s, got %s", entries[1].ContentHash, res.Break.Expected)
	}
	if res.Break.Got != SentinelHash {
		t.Errorf("got must carry the stored previous hash")
	}
}

func TestVerifyChain_FirstEntryMustStartAtSentinel(t *testing.T) {
	entries := buildTestChain(t, 2)
	entries[0].PreviousHash = entries[1].ContentHash

	res, err := VerifyChain(entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Valid() {
		t.Fatalf("expected a break, got clean result")
	}
	if res.Break.EntryID != "rec-1" || res.Break.Kind != BreakLink {
		t.Errorf("expected link break at rec-1, got %s at %s", res.Break.Kind, res.Break.EntryID)
	}
	if res.Checked != 0 {
		t.Errorf("expected 0 checked entries, got %d", res.Checked)
	}
}

func TestVerifyChain_StopsAtFirstBreak(t *testing.T) {
	entries := buildTestChain(t, 4)

	// Break both record 2 and record 3; only the earliest is reported.
	entries[1].Snapshot.Content["diagnosis"] = "first tamper"
	entries[2].Snapshot.Content["diagnosis"] = "second tamper"

	res, err := VerifyChain(entries)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Valid() {
		t.Fatalf("expected a break, got clean result")
	}
	if res.Break.EntryID != "rec-2" {
		t.Errorf("walk must stop at the first break, got %s", res.Break.EntryID)
	}
}
