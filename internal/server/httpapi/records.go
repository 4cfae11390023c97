package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/clinsafe/medledger/internal/common"
	"github.com/clinsafe/medledger/internal/server/models"
	"github.com/clinsafe/medledger/internal/server/services"
	"github.com/gin-gonic/gin"
)

// RecordAPI is the slice of the record service the record routes consume.
type RecordAPI interface {
	Create(ctx context.Context, in services.CreateRecordInput, origin models.Origin) (*models.Record, error)
	Amend(ctx context.Context, recordID string, in services.AmendRecordInput, origin models.Origin) (*models.Record, error)
	Deactivate(ctx context.Context, recordID string, actorID *string, origin models.Origin) error
	Get(ctx context.Context, recordID string, actorID *string, role string, origin models.Origin) (*models.Record, error)
	ListByPatient(ctx context.Context, patientID string, actorID *string, role string) ([]*models.Record, error)
}

// AttachmentAPI presigns document uploads and downloads.
type AttachmentAPI interface {
	PresignUpload(ctx context.Context, recordID string) (string, string, error)
	PresignDownload(ctx context.Context, recordID string, actorID *string, role string, origin models.Origin) (string, error)
}

// RecordHandler serves the medical record workflow including document
// attachments.
type RecordHandler struct {
	records     RecordAPI
	attachments AttachmentAPI
}

func NewRecordHandler(records RecordAPI, attachments AttachmentAPI) *RecordHandler {
	return &RecordHandler{records: records, attachments: attachments}
}

// RegisterRoutes mounts the record routes. Writes are clinician-only; reads
// are open to any authenticated actor, with patients scoped to their own
// chain by the service layer.
func (h *RecordHandler) RegisterRoutes(authed *gin.RouterGroup) {
	clinician := authed.Group("", RequireClinician())
	clinician.POST("/patients/:patientID/records", h.create)
	clinician.POST("/records/:recordID/amend", h.amend)
	clinician.DELETE("/records/:recordID", h.deactivate)
	clinician.POST("/records/:recordID/document", h.presignUpload)

	authed.GET("/patients/:patientID/records", h.listByPatient)
	authed.GET("/records/:recordID", h.get)
	authed.GET("/records/:recordID/document", h.presignDownload)
}

type createRecordRequest struct {
	RecordType   string    `json:"record_type"`
	Title        string    `json:"title"`
	Diagnosis    string    `json:"diagnosis"`
	Treatment    string    `json:"treatment"`
	Prescription string    `json:"prescription"`
	Notes        string    `json:"notes"`
	VisitDate    time.Time `json:"visit_date"`
}

func (h *RecordHandler) create(c *gin.Context) {
	var req createRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", common.ErrValidation, err))
		return
	}

	rec, err := h.records.Create(c.Request.Context(), services.CreateRecordInput{
		PatientID:    c.Param("patientID"),
		AuthorID:     actorFrom(c),
		RecordType:   req.RecordType,
		Title:        req.Title,
		Diagnosis:    req.Diagnosis,
		Treatment:    req.Treatment,
		Prescription: req.Prescription,
		Notes:        req.Notes,
		VisitDate:    req.VisitDate,
	}, originFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toRecordResponse(rec))
}

type amendRecordRequest struct {
	Title        string `json:"title"`
	Diagnosis    string `json:"diagnosis"`
	Treatment    string `json:"treatment"`
	Prescription string `json:"prescription"`
	Notes        string `json:"notes"`
}

func (h *RecordHandler) amend(c *gin.Context) {
	var req amendRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", common.ErrValidation, err))
		return
	}

	rec, err := h.records.Amend(c.Request.Context(), c.Param("recordID"), services.AmendRecordInput{
		AuthorID:     actorFrom(c),
		Title:        req.Title,
		Diagnosis:    req.Diagnosis,
		Treatment:    req.Treatment,
		Prescription: req.Prescription,
		Notes:        req.Notes,
	}, originFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toRecordResponse(rec))
}

func (h *RecordHandler) deactivate(c *gin.Context) {
	if err := h.records.Deactivate(c.Request.Context(), c.Param("recordID"), actorFrom(c), originFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RecordHandler) get(c *gin.Context) {
	rec, err := h.records.Get(c.Request.Context(), c.Param("recordID"), actorFrom(c), roleFrom(c), originFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRecordResponse(rec))
}

func (h *RecordHandler) listByPatient(c *gin.Context) {
	recs, err := h.records.ListByPatient(c.Request.Context(), c.Param("patientID"), actorFrom(c), roleFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRecordResponses(recs))
}

func (h *RecordHandler) presignUpload(c *gin.Context) {
	key, url, err := h.attachments.PresignUpload(c.Request.Context(), c.Param("recordID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document_key": key, "upload_url": url})
}

func (h *RecordHandler) presignDownload(c *gin.Context) {
	url, err := h.attachments.PresignDownload(c.Request.Context(), c.Param("recordID"), actorFrom(c), roleFrom(c), originFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"download_url": url})
}
