package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/clinsafe/medledger/internal/common"
	"github.com/clinsafe/medledger/internal/server/models"
	"github.com/clinsafe/medledger/internal/server/services"
	"github.com/gin-gonic/gin"
)

// AuditAPI is the review slice of the audit service.
type AuditAPI interface {
	Query(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEvent, error)
	ListAccessByRecord(ctx context.Context, recordID string, limit, offset int) ([]*models.AccessEvent, error)
}

// IntegrityAPI verifies tamper evidence.
type IntegrityAPI interface {
	VerifyChain(ctx context.Context, patientID, kind string) (*services.VerificationResult, error)
}

// AdminHandler serves the review surface: audit queries, access trails and
// chain verification.
type AdminHandler struct {
	audit     AuditAPI
	integrity IntegrityAPI
}

func NewAdminHandler(audit AuditAPI, integrity IntegrityAPI) *AdminHandler {
	return &AdminHandler{audit: audit, integrity: integrity}
}

// RegisterRoutes mounts the admin routes; the group carries RequireAdmin.
func (h *AdminHandler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.GET("/audit-events", h.queryAuditEvents)
	admin.GET("/records/:recordID/access-events", h.listAccessEvents)
	admin.GET("/patients/:patientID/chain", h.verifyChain)
}

func (h *AdminHandler) queryAuditEvents(c *gin.Context) {
	filter, err := auditFilterFromQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}

	events, err := h.audit.Query(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toAuditEventResponses(events))
}

func (h *AdminHandler) listAccessEvents(c *gin.Context) {
	events, err := h.audit.ListAccessByRecord(c.Request.Context(), c.Param("recordID"), intQuery(c, "limit"), intQuery(c, "offset"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toAccessEventResponses(events))
}

func (h *AdminHandler) verifyChain(c *gin.Context) {
	res, err := h.integrity.VerifyChain(c.Request.Context(), c.Param("patientID"), c.Query("kind"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func auditFilterFromQuery(c *gin.Context) (models.AuditFilter, error) {
	var filter models.AuditFilter

	if v := c.Query("actor"); v != "" {
		filter.ActorID = &v
	}
	filter.Action = c.Query("action")

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("%w: bad from timestamp %q", common.ErrValidation, v)
		}
		filter.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("%w: bad to timestamp %q", common.ErrValidation, v)
		}
		filter.To = &t
	}
	if v := c.Query("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, fmt.Errorf("%w: bad success flag %q", common.ErrValidation, v)
		}
		filter.Success = &b
	}

	filter.Limit = intQuery(c, "limit")
	filter.Offset = intQuery(c, "offset")
	return filter, nil
}

// intQuery parses an integer query parameter; junk reads as zero so the
// service-side pagination defaults kick in.
func intQuery(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}
