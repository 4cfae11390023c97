package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/clinsafe/medledger/internal/logging"
	"github.com/clinsafe/medledger/internal/server/auth"
	"github.com/clinsafe/medledger/internal/server/models"
	"github.com/clinsafe/medledger/internal/server/services"
	"github.com/gin-gonic/gin"
)

const testSecret = "test-secret"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// bearerFor mints a real access token so requests pass the Authenticate
// middleware the same way production traffic does.
func bearerFor(t *testing.T, actorID, role string) string {
	t.Helper()
	token, err := auth.GenerateToken(actorID, role, []byte(testSecret), time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return "Bearer " + token
}

func doJSON(t *testing.T, router *gin.Engine, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "go-test")
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return out
}

// Service fakes behind the handler interfaces. A set err makes every
// method fail with it.

type loginCall struct {
	Email    string
	Password string
	Origin   models.Origin
}

type fakeAccounts struct {
	err   error
	actor *models.Actor
	pair  *services.TokenPair

	registered   *services.RegisterInput
	regOrigin    models.Origin
	login        *loginCall
	refreshed    string
	logoutActor  string
	logoutToken  string
	pwActor      string
	pwCurrent    string
	pwNext       string
	twoFAActor   string
	twoFAEnabled bool
}

var _ AccountAPI = (*fakeAccounts)(nil)

func (f *fakeAccounts) Register(ctx context.Context, in services.RegisterInput, origin models.Origin) (*models.Actor, error) {
	f.registered = &in
	f.regOrigin = origin
	if f.err != nil {
		return nil, f.err
	}
	return f.actor, nil
}

func (f *fakeAccounts) Login(ctx context.Context, email, password string, origin models.Origin) (*models.Actor, *services.TokenPair, error) {
	f.login = &loginCall{Email: email, Password: password, Origin: origin}
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.actor, f.pair, nil
}

func (f *fakeAccounts) Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	f.refreshed = refreshToken
	if f.err != nil {
		return nil, f.err
	}
	return f.pair, nil
}

func (f *fakeAccounts) Logout(ctx context.Context, actorID, refreshToken string, origin models.Origin) error {
	f.logoutActor, f.logoutToken = actorID, refreshToken
	return f.err
}

func (f *fakeAccounts) ChangePassword(ctx context.Context, actorID, oldPassword, newPassword string, origin models.Origin) error {
	f.pwActor, f.pwCurrent, f.pwNext = actorID, oldPassword, newPassword
	return f.err
}

func (f *fakeAccounts) SetTwoFactor(ctx context.Context, actorID string, enabled bool, origin models.Origin) error {
	f.twoFAActor, f.twoFAEnabled = actorID, enabled
	return f.err
}

type readCall struct {
	ID      string
	ActorID *string
	Role    string
}

type fakeRecords struct {
	err  error
	rec  *models.Record
	list []*models.Record

	created       *services.CreateRecordInput
	createdOrigin models.Origin
	amendedID     string
	amended       *services.AmendRecordInput
	deactivatedID string
	deactivatedBy *string
	got           *readCall
	listPatient   string
	listActor     *string
	listRole      string
}

var _ RecordAPI = (*fakeRecords)(nil)

func (f *fakeRecords) Create(ctx context.Context, in services.CreateRecordInput, origin models.Origin) (*models.Record, error) {
	f.created = &in
	f.createdOrigin = origin
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

func (f *fakeRecords) Amend(ctx context.Context, recordID string, in services.AmendRecordInput, origin models.Origin) (*models.Record, error) {
	f.amendedID, f.amended = recordID, &in
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

func (f *fakeRecords) Deactivate(ctx context.Context, recordID string, actorID *string, origin models.Origin) error {
	f.deactivatedID, f.deactivatedBy = recordID, actorID
	return f.err
}

func (f *fakeRecords) Get(ctx context.Context, recordID string, actorID *string, role string, origin models.Origin) (*models.Record, error) {
	f.got = &readCall{ID: recordID, ActorID: actorID, Role: role}
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

func (f *fakeRecords) ListByPatient(ctx context.Context, patientID string, actorID *string, role string) ([]*models.Record, error) {
	f.listPatient, f.listActor, f.listRole = patientID, actorID, role
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

type fakeAttachments struct {
	err error
	key string
	url string

	uploadID   string
	downloaded *readCall
}

var _ AttachmentAPI = (*fakeAttachments)(nil)

func (f *fakeAttachments) PresignUpload(ctx context.Context, recordID string) (string, string, error) {
	f.uploadID = recordID
	if f.err != nil {
		return "", "", f.err
	}
	return f.key, f.url, nil
}

func (f *fakeAttachments) PresignDownload(ctx context.Context, recordID string, actorID *string, role string, origin models.Origin) (string, error) {
	f.downloaded = &readCall{ID: recordID, ActorID: actorID, Role: role}
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type fakeCertificates struct {
	err  error
	cert *models.Certificate
	list []*models.Certificate

	issued      *services.IssueCertificateInput
	statusID    string
	status      string
	statusActor *string
	got         *readCall
	listPatient string
	listActor   *string
	listRole    string
}

var _ CertificateAPI = (*fakeCertificates)(nil)

func (f *fakeCertificates) Issue(ctx context.Context, in services.IssueCertificateInput, origin models.Origin) (*models.Certificate, error) {
	f.issued = &in
	if f.err != nil {
		return nil, f.err
	}
	return f.cert, nil
}

func (f *fakeCertificates) UpdateStatus(ctx context.Context, certID, status string, actorID *string, origin models.Origin) error {
	f.statusID, f.status, f.statusActor = certID, status, actorID
	return f.err
}

func (f *fakeCertificates) Get(ctx context.Context, certID string, actorID *string, role string, origin models.Origin) (*models.Certificate, error) {
	f.got = &readCall{ID: certID, ActorID: actorID, Role: role}
	if f.err != nil {
		return nil, f.err
	}
	return f.cert, nil
}

func (f *fakeCertificates) ListByPatient(ctx context.Context, patientID string, actorID *string, role string) ([]*models.Certificate, error) {
	f.listPatient, f.listActor, f.listRole = patientID, actorID, role
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

type fakeAudit struct {
	err    error
	events []*models.AuditEvent
	access []*models.AccessEvent

	filter       *models.AuditFilter
	accessRecord string
	accessLimit  int
	accessOffset int
}

var _ AuditAPI = (*fakeAudit)(nil)

func (f *fakeAudit) Query(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEvent, error) {
	f.filter = &filter
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func (f *fakeAudit) ListAccessByRecord(ctx context.Context, recordID string, limit, offset int) ([]*models.AccessEvent, error) {
	f.accessRecord, f.accessLimit, f.accessOffset = recordID, limit, offset
	if f.err != nil {
		return nil, f.err
	}
	return f.access, nil
}

type fakeIntegrity struct {
	err    error
	result *services.VerificationResult

	patientID string
	kind      string
}

var _ IntegrityAPI = (*fakeIntegrity)(nil)

func (f *fakeIntegrity) VerifyChain(ctx context.Context, patientID, kind string) (*services.VerificationResult, error) {
	f.patientID, f.kind = patientID, kind
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type testServices struct {
	accounts     *fakeAccounts
	records      *fakeRecords
	attachments  *fakeAttachments
	certificates *fakeCertificates
	audit        *fakeAudit
	integrity    *fakeIntegrity
}

func newTestRouter(t *testing.T) (*gin.Engine, *testServices) {
	t.Helper()

	ts := &testServices{
		accounts:     &fakeAccounts{},
		records:      &fakeRecords{},
		attachments:  &fakeAttachments{},
		certificates: &fakeCertificates{},
		audit:        &fakeAudit{},
		integrity:    &fakeIntegrity{},
	}

	router := NewRouter([]byte(testSecret), testLogger(), Handlers{
		Auth:         NewAuthHandler(ts.accounts),
		Records:      NewRecordHandler(ts.records, ts.attachments),
		Certificates: NewCertificateHandler(ts.certificates),
		Admin:        NewAdminHandler(ts.audit, ts.integrity),
	})
	return router, ts
}
