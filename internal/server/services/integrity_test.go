package services

import (
	"context"
	"errors"
	"testing"

	"github.com/clinsafe/medledger/internal/common"
	"github.com/clinsafe/medledger/internal/hashchain"
	"github.com/clinsafe/medledger/internal/server/models"
)

func TestVerifyChain_Clean(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}

	repo := &fakeRecordsRepo{}
	rm := &fakeRepoManager{recs: repo}
	rs := newRecordService(t, db, rm, &fakeAuditor{}, &fakeAccessLogger{})
	for i := 0; i < 3; i++ {
		if _, err := rs.Create(context.Background(), recordInput("p1"), testOrigin()); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	is := NewIntegrityService(db, rm)
	res, err := is.VerifyChain(context.Background(), "p1", models.ChainKindRecords)
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if !res.Valid || res.Checked != 3 || res.Break != nil {
		t.Fatalf("clean chain: %+v", res)
	}
	if res.PatientID != "p1" || res.Kind != models.ChainKindRecords {
		t.Fatalf("result header: %+v", res)
	}
}

func TestVerifyChain_DetectsContentTamper(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	repo := &fakeRecordsRepo{}
	rm := &fakeRepoManager{recs: repo}
	rs := newRecordService(t, db, rm, &fakeAuditor{}, &fakeAccessLogger{})
	for i := 0; i < 2; i++ {
		if _, err := rs.Create(context.Background(), recordInput("p1"), testOrigin()); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	// edit hashed content behind the chain's back
	repo.inserted[1].Diagnosis = "edited after the fact"

	res, err := NewIntegrityService(db, rm).VerifyChain(context.Background(), "p1", models.ChainKindRecords)
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if res.Valid || res.Break == nil {
		t.Fatalf("tamper not detected: %+v", res)
	}
	if res.Break.Kind != hashchain.BreakContent || res.Break.Seq != 2 || res.Checked != 1 {
		t.Fatalf("unexpected break: %+v", res.Break)
	}
	if res.Break.EntryID != repo.inserted[1].ID {
		t.Fatalf("break names wrong entry: %+v", res.Break)
	}
}

func TestVerifyChain_DetectsLinkTamper(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	repo := &fakeRecordsRepo{}
	rm := &fakeRepoManager{recs: repo}
	rs := newRecordService(t, db, rm, &fakeAuditor{}, &fakeAccessLogger{})
	for i := 0; i < 2; i++ {
		if _, err := rs.Create(context.Background(), recordInput("p1"), testOrigin()); err != nil {
			t.Fatalf("Create error: %v", err)
		}
	}

	repo.inserted[1].PreviousHash = hashchain.SentinelHash

	res, err := NewIntegrityService(db, rm).VerifyChain(context.Background(), "p1", models.ChainKindRecords)
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if res.Valid || res.Break == nil || res.Break.Kind != hashchain.BreakLink || res.Break.Seq != 2 {
		t.Fatalf("link tamper not detected: %+v", res)
	}
}

func TestVerifyChain_OperationalFieldsStayOutside(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	repo := &fakeRecordsRepo{}
	rm := &fakeRepoManager{recs: repo}
	rs := newRecordService(t, db, rm, &fakeAuditor{}, &fakeAccessLogger{})
	if _, err := rs.Create(context.Background(), recordInput("p1"), testOrigin()); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	// notes, document key and the active flag are mutable on purpose
	repo.inserted[0].Notes = "updated notes"
	repo.inserted[0].DocumentKey = "records/2025/3/12/doc"
	repo.inserted[0].Active = false

	res, err := NewIntegrityService(db, rm).VerifyChain(context.Background(), "p1", models.ChainKindRecords)
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if !res.Valid {
		t.Fatalf("operational edits must not read as tampering: %+v", res)
	}
}

func TestVerifyChain_Certificates(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	repo := &fakeCertsRepo{}
	rm := &fakeRepoManager{certs: repo}
	cs := newCertificateService(t, db, rm, &fakeAuditor{})
	for i := 0; i < 2; i++ {
		if _, err := cs.Issue(context.Background(), certInput("p1"), testOrigin()); err != nil {
			t.Fatalf("Issue error: %v", err)
		}
	}

	is := NewIntegrityService(db, rm)

	// a status change is workflow, not tampering
	repo.inserted[0].Status = models.CertStatusRevoked
	res, err := is.VerifyChain(context.Background(), "p1", models.ChainKindCertificates)
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if !res.Valid || res.Checked != 2 {
		t.Fatalf("revocation must not break the chain: %+v", res)
	}

	// editing the purpose is
	repo.inserted[0].Purpose = "edited"
	res, err = is.VerifyChain(context.Background(), "p1", models.ChainKindCertificates)
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if res.Valid || res.Break == nil || res.Break.Seq != 1 || res.Break.Kind != hashchain.BreakContent {
		t.Fatalf("certificate tamper not detected: %+v", res)
	}
}

func TestVerifyChain_EmptyAndUnknownKind(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	rm := &fakeRepoManager{recs: &fakeRecordsRepo{}}
	is := NewIntegrityService(db, rm)

	res, err := is.VerifyChain(context.Background(), "p1", models.ChainKindRecords)
	if err != nil {
		t.Fatalf("VerifyChain error: %v", err)
	}
	if !res.Valid || res.Checked != 0 {
		t.Fatalf("empty chain must verify clean: %+v", res)
	}

	if _, err := is.VerifyChain(context.Background(), "p1", "ledger"); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestVerifyRecord(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	repo := &fakeRecordsRepo{}
	rm := &fakeRepoManager{recs: repo}
	rs := newRecordService(t, db, rm, &fakeAuditor{}, &fakeAccessLogger{})
	rec, err := rs.Create(context.Background(), recordInput("p1"), testOrigin())
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	is := NewIntegrityService(db, rm)

	ok, err := is.VerifyRecord(context.Background(), rec.ID)
	if err != nil || !ok {
		t.Fatalf("untouched record: ok=%v err=%v", ok, err)
	}

	repo.inserted[0].Title = "edited"
	ok, err = is.VerifyRecord(context.Background(), rec.ID)
	if err != nil || ok {
		t.Fatalf("tampered record: ok=%v err=%v", ok, err)
	}

	if _, err := is.VerifyRecord(context.Background(), "missing"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestVerifyCertificate(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectCommit()

	repo := &fakeCertsRepo{}
	rm := &fakeRepoManager{certs: repo}
	cs := newCertificateService(t, db, rm, &fakeAuditor{})
	cert, err := cs.Issue(context.Background(), certInput("p1"), testOrigin())
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	is := NewIntegrityService(db, rm)

	ok, err := is.VerifyCertificate(context.Background(), cert.ID)
	if err != nil || !ok {
		t.Fatalf("untouched certificate: ok=%v err=%v", ok, err)
	}

	repo.inserted[0].Recommendations = "edited"
	ok, err = is.VerifyCertificate(context.Background(), cert.ID)
	if err != nil || ok {
		t.Fatalf("tampered certificate: ok=%v err=%v", ok, err)
	}
}
