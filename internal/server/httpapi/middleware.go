package httpapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/clinsafe/medledger/internal/common"
	"github.com/clinsafe/medledger/internal/logging"
	"github.com/clinsafe/medledger/internal/server/auth"
	"github.com/clinsafe/medledger/internal/server/models"
	"github.com/gin-gonic/gin"
)

// Gin context keys set by the middleware below.
const (
	ctxKeyActorID = "actorID"
	ctxKeyRole    = "actorRole"
	ctxKeyOrigin  = "origin"
)

// Origin captures the client address and user agent for the audit trail.
// Behind a reverse proxy the first X-Forwarded-For entry names the client;
// otherwise the peer address does.
func Origin() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr := c.ClientIP()
		if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if a := strings.TrimSpace(first); a != "" {
				addr = a
			}
		}
		c.Set(ctxKeyOrigin, models.Origin{Addr: addr, Agent: c.Request.UserAgent()})
		c.Next()
	}
}

// Authenticate resolves the actor from the bearer access token and stores
// the actor id and role in the request context.
func Authenticate(secretKey []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader(common.AuthorizationHeader), common.BearerPrefix)
		if !ok || token == "" {
			abortWithError(c, fmt.Errorf("%w: missing bearer token", common.ErrorUnauthorized))
			return
		}

		actorID, role, err := auth.GetActorFromToken(token, secretKey)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(ctxKeyActorID, actorID)
		c.Set(ctxKeyRole, role)
		c.Next()
	}
}

// RequireClinician gates routes that author medical data.
func RequireClinician() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !models.ClinicianRole(roleFrom(c)) {
			abortWithError(c, fmt.Errorf("%w: clinician role required", common.ErrForbidden))
			return
		}
		c.Next()
	}
}

// RequireAdmin gates the review surface.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if roleFrom(c) != models.RoleAdmin {
			abortWithError(c, fmt.Errorf("%w: admin role required", common.ErrForbidden))
			return
		}
		c.Next()
	}
}

// RequestLog writes one line per request.
func RequestLog(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// originFrom returns the origin captured by the Origin middleware.
func originFrom(c *gin.Context) models.Origin {
	if v, ok := c.Get(ctxKeyOrigin); ok {
		if o, ok := v.(models.Origin); ok {
			return o
		}
	}
	return models.Origin{Addr: c.ClientIP(), Agent: c.Request.UserAgent()}
}

// actorFrom returns the authenticated actor id, nil on public routes.
func actorFrom(c *gin.Context) *string {
	if id := c.GetString(ctxKeyActorID); id != "" {
		return &id
	}
	return nil
}

func roleFrom(c *gin.Context) string {
	return c.GetString(ctxKeyRole)
}
