package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/clinsafe/medledger/internal/common"
	"github.com/clinsafe/medledger/internal/server/models"
	"github.com/clinsafe/medledger/internal/server/services"
	"github.com/gin-gonic/gin"
)

// AccountAPI is the slice of the account service the auth routes consume.
type AccountAPI interface {
	Register(ctx context.Context, in services.RegisterInput, origin models.Origin) (*models.Actor, error)
	Login(ctx context.Context, email, password string, origin models.Origin) (*models.Actor, *services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, actorID, refreshToken string, origin models.Origin) error
	ChangePassword(ctx context.Context, actorID, oldPassword, newPassword string, origin models.Origin) error
	SetTwoFactor(ctx context.Context, actorID string, enabled bool, origin models.Origin) error
}

// AuthHandler serves the account workflow.
type AuthHandler struct {
	accounts AccountAPI
}

func NewAuthHandler(accounts AccountAPI) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// RegisterRoutes mounts the account routes. Register, login and refresh are
// public; the rest require a valid access token.
func (h *AuthHandler) RegisterRoutes(public, authed *gin.RouterGroup) {
	public.POST("/auth/register", h.register)
	public.POST("/auth/login", h.login)
	public.POST("/auth/refresh", h.refresh)

	authed.POST("/auth/logout", h.logout)
	authed.POST("/auth/password", h.changePassword)
	authed.POST("/auth/2fa", h.setTwoFactor)
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	Phone     string `json:"phone"`
}

func (h *AuthHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", common.ErrValidation, err))
		return
	}

	actor, err := h.accounts.Register(c.Request.Context(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		Phone:     req.Phone,
	}, originFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toActorResponse(actor))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Actor actorResponse `json:"actor"`
	services.TokenPair
}

func (h *AuthHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", common.ErrValidation, err))
		return
	}

	actor, pair, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password, originFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, loginResponse{Actor: toActorResponse(actor), TokenPair: *pair})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		writeError(c, fmt.Errorf("%w: refresh_token is required", common.ErrValidation))
		return
	}

	pair, err := h.accounts.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, pair)
}

func (h *AuthHandler) logout(c *gin.Context) {
	// The body is optional: without a refresh_token every session of the
	// actor is revoked.
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.accounts.Logout(c.Request.Context(), c.GetString(ctxKeyActorID), req.RefreshToken, originFrom(c)); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", common.ErrValidation, err))
		return
	}

	err := h.accounts.ChangePassword(c.Request.Context(), c.GetString(ctxKeyActorID), req.CurrentPassword, req.NewPassword, originFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type twoFactorRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *AuthHandler) setTwoFactor(c *gin.Context) {
	var req twoFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		writeError(c, fmt.Errorf("%w: enabled is required", common.ErrValidation))
		return
	}

	err := h.accounts.SetTwoFactor(c.Request.Context(), c.GetString(ctxKeyActorID), *req.Enabled, originFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
