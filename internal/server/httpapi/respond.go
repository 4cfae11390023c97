package httpapi

import (
	"errors"
	"net/http"

	"github.com/clinsafe/medledger/internal/common"
	"github.com/gin-gonic/gin"
)

// statusFor maps service-layer errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrRefreshTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, common.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as the standard {"error": ...} payload. Unmapped
// errors are masked so storage details never leak to clients.
func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}

func abortWithError(c *gin.Context, err error) {
	writeError(c, err)
	c.Abort()
}
