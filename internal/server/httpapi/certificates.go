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

// CertificateAPI is the slice of the certificate service the routes consume.
type CertificateAPI interface {
	Issue(ctx context.Context, in services.IssueCertificateInput, origin models.Origin) (*models.Certificate, error)
	UpdateStatus(ctx context.Context, certID, status string, actorID *string, origin models.Origin) error
	Get(ctx context.Context, certID string, actorID *string, role string, origin models.Origin) (*models.Certificate, error)
	ListByPatient(ctx context.Context, patientID string, actorID *string, role string) ([]*models.Certificate, error)
}

// CertificateHandler serves the medical certificate workflow.
type CertificateHandler struct {
	certificates CertificateAPI
}

func NewCertificateHandler(certificates CertificateAPI) *CertificateHandler {
	return &CertificateHandler{certificates: certificates}
}

// RegisterRoutes mounts the certificate routes, clinician-gated for writes.
func (h *CertificateHandler) RegisterRoutes(authed *gin.RouterGroup) {
	clinician := authed.Group("", RequireClinician())
	clinician.POST("/patients/:patientID/certificates", h.issue)
	clinician.PATCH("/certificates/:certID/status", h.updateStatus)

	authed.GET("/patients/:patientID/certificates", h.listByPatient)
	authed.GET("/certificates/:certID", h.get)
}

type issueCertificateRequest struct {
	CertificateType string     `json:"certificate_type"`
	Purpose         string     `json:"purpose"`
	Diagnosis       string     `json:"diagnosis"`
	Recommendations string     `json:"recommendations"`
	ValidFrom       time.Time  `json:"valid_from"`
	ValidUntil      *time.Time `json:"valid_until"`
	Status          string     `json:"status"`
}

func (h *CertificateHandler) issue(c *gin.Context) {
	var req issueCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", common.ErrValidation, err))
		return
	}

	cert, err := h.certificates.Issue(c.Request.Context(), services.IssueCertificateInput{
		PatientID:       c.Param("patientID"),
		IssuedBy:        actorFrom(c),
		CertificateType: req.CertificateType,
		Purpose:         req.Purpose,
		Diagnosis:       req.Diagnosis,
		Recommendations: req.Recommendations,
		ValidFrom:       req.ValidFrom,
		ValidUntil:      req.ValidUntil,
		Status:          req.Status,
	}, originFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toCertificateResponse(cert))
}

type certificateStatusRequest struct {
	Status string `json:"status"`
}

func (h *CertificateHandler) updateStatus(c *gin.Context) {
	var req certificateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", common.ErrValidation, err))
		return
	}

	err := h.certificates.UpdateStatus(c.Request.Context(), c.Param("certID"), req.Status, actorFrom(c), originFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *CertificateHandler) get(c *gin.Context) {
	cert, err := h.certificates.Get(c.Request.Context(), c.Param("certID"), actorFrom(c), roleFrom(c), originFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCertificateResponse(cert))
}

func (h *CertificateHandler) listByPatient(c *gin.Context) {
	certs, err := h.certificates.ListByPatient(c.Request.Context(), c.Param("patientID"), actorFrom(c), roleFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCertificateResponses(certs))
}
