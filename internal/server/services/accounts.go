package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/clinsafe/medledger/internal/common"
	"github.com/clinsafe/medledger/internal/cryptox"
	"github.com/clinsafe/medledger/internal/dbx"
	"github.com/clinsafe/medledger/internal/logging"
	"github.com/clinsafe/medledger/internal/server/auth"
	"github.com/clinsafe/medledger/internal/server/config"
	"github.com/clinsafe/medledger/internal/server/models"
	"github.com/clinsafe/medledger/internal/server/repositories/repomanager"
)

// MinPasswordLen is the minimum accepted password length.
const MinPasswordLen = 8

// Failed-login reasons stored in audit detail.
const (
	reasonInvalidCredentials = "invalid_credentials"
	reasonAccountInactive    = "account_inactive"
	reasonRateLimited        = "rate_limited"
)

// LoginLimiter gates login attempts per client key before credentials are
// checked. Allow reports whether the attempt may proceed.
type LoginLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// TokenPair is the credential pair returned by Login and Refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RegisterInput carries the fields for a new portal account.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	Phone     string
}

// AccountService implements registration, login, session refresh, and
// credential maintenance for portal actors.
type AccountService struct {
	db                   *sql.DB
	repomanager          repomanager.RepositoryManager
	auditor              Auditor
	limiter              LoginLimiter
	logger               logging.Logger
	jwtSecret            []byte
	accessTokenValidity  time.Duration
	refreshTokenValidity time.Duration
}

// NewAccountService initializes an AccountService. limiter may be nil, in
// which case login attempts are not rate limited.
func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, auditor Auditor, limiter LoginLimiter, cfg *config.Config, logger logging.Logger) *AccountService {
	return &AccountService{
		db:                   db,
		repomanager:          m,
		auditor:              auditor,
		limiter:              limiter,
		logger:               logger,
		jwtSecret:            []byte(cfg.SecretKey),
		accessTokenValidity:  cfg.AccessTokenValidityDuration,
		refreshTokenValidity: cfg.RefreshTokenValidityDuration,
	}
}

// Register creates a new actor account. Admin accounts cannot be
// self-registered; they are seeded out of band.
func (s *AccountService) Register(ctx context.Context, in RegisterInput, origin models.Origin) (*models.Actor, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", common.ErrValidation)
	}
	if len(in.Password) < MinPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, MinPasswordLen)
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return nil, fmt.Errorf("%w: first and last name are required", common.ErrValidation)
	}
	if !models.ValidRole(in.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrValidation, in.Role)
	}
	if in.Role == models.RoleAdmin {
		return nil, fmt.Errorf("%w: admin accounts cannot be self-registered", common.ErrForbidden)
	}

	_, err := s.repomanager.Actors(s.db).GetByEmail(ctx, email)
	if err == nil {
		return nil, fmt.Errorf("%w: email already registered", common.ErrConflict)
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error checking email: %w", err)
	}

	salt, err := cryptox.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("error generating salt: %w", err)
	}
	verifier := cryptox.HashPassword([]byte(in.Password), salt)

	actor := &models.Actor{
		Email:     email,
		Salt:      salt,
		Verifier:  verifier,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Role:      in.Role,
		Phone:     strings.TrimSpace(in.Phone),
	}
	created, err := s.repomanager.Actors(s.db).Create(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("error creating actor: %w", err)
	}

	s.auditor.Record(AuditEntry{
		ActorID: &created.ID,
		Action:  models.ActionProfileUpdate,
		Origin:  origin,
		Success: true,
		Detail:  map[string]any{"event": "registered", "role": created.Role},
	})
	return created, nil
}

// Login verifies credentials and returns the actor with a fresh token pair.
// Every failure path leaves a failed_login audit event behind.
func (s *AccountService) Login(ctx context.Context, email, password string, origin models.Origin) (*models.Actor, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, origin.Addr)
		if err != nil {
			// A broken limiter must not lock everyone out.
			s.logger.Warn(ctx, "login limiter unavailable", "error", err)
		} else if !ok {
			s.auditFailedLogin(nil, origin, reasonRateLimited, email)
			return nil, nil, common.ErrRateLimited
		}
	}

	actor, err := s.repomanager.Actors(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.auditFailedLogin(nil, origin, reasonInvalidCredentials, email)
			return nil, nil, common.ErrorUnauthorized
		}
		return nil, nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	if !cryptox.VerifyPassword([]byte(password), actor.Salt, actor.Verifier) {
		s.auditFailedLogin(&actor.ID, origin, reasonInvalidCredentials, email)
		return nil, nil, common.ErrorUnauthorized
	}
	if !actor.Active {
		s.auditFailedLogin(&actor.ID, origin, reasonAccountInactive, email)
		return nil, nil, common.ErrorUnauthorized
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		now := time.Now().UTC()
		if err := s.repomanager.Actors(tx).UpdateLastLogin(ctx, actor.ID, now); err != nil {
			return err
		}
		actor.LastLogin = &now
		pair, err = s.generateTokenPair(ctx, tx, actor)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}

	s.auditor.Record(AuditEntry{
		ActorID: &actor.ID,
		Action:  models.ActionLogin,
		Origin:  origin,
		Success: true,
	})
	return actor, pair, nil
}

// Refresh exchanges a valid refresh token for a new token pair, rotating the
// old token out.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	rt, err := s.repomanager.RefreshTokens(s.db).Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if rt.Expires.Before(time.Now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	actor, err := s.repomanager.Actors(s.db).GetByID(ctx, rt.ActorID)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			return err
		}
		pair, err = s.generateTokenPair(ctx, tx, actor)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	return pair, nil
}

// Logout revokes the given refresh token, or every token of the actor when
// no specific token is supplied.
func (s *AccountService) Logout(ctx context.Context, actorID, refreshToken string, origin models.Origin) error {
	var err error
	if refreshToken != "" {
		err = s.repomanager.RefreshTokens(s.db).Delete(ctx, refreshToken)
	} else {
		err = s.repomanager.RefreshTokens(s.db).DeleteByActor(ctx, actorID)
	}
	if err != nil {
		return fmt.Errorf("error revoking refresh token: %w", err)
	}

	s.auditor.Record(AuditEntry{
		ActorID: &actorID,
		Action:  models.ActionLogout,
		Origin:  origin,
		Success: true,
	})
	return nil
}

// ChangePassword replaces the actor's password after verifying the current
// one, revoking all refresh tokens so other sessions must log in again.
func (s *AccountService) ChangePassword(ctx context.Context, actorID, oldPassword, newPassword string, origin models.Origin) error {
	if len(newPassword) < MinPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, MinPasswordLen)
	}

	actor, err := s.repomanager.Actors(s.db).GetByID(ctx, actorID)
	if err != nil {
		return err
	}

	if !cryptox.VerifyPassword([]byte(oldPassword), actor.Salt, actor.Verifier) {
		s.auditor.Record(AuditEntry{
			ActorID: &actorID,
			Action:  models.ActionPasswordChange,
			Origin:  origin,
			Success: false,
			Detail:  map[string]any{"reason": reasonInvalidCredentials},
		})
		return common.ErrorUnauthorized
	}

	salt, err := cryptox.NewSalt()
	if err != nil {
		return fmt.Errorf("error generating salt: %w", err)
	}
	verifier := cryptox.HashPassword([]byte(newPassword), salt)

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Actors(tx).UpdatePassword(ctx, actorID, salt, verifier); err != nil {
			return err
		}
		return s.repomanager.RefreshTokens(tx).DeleteByActor(ctx, actorID)
	})
	if err != nil {
		return fmt.Errorf("error updating password: %w", err)
	}

	s.auditor.Record(AuditEntry{
		ActorID: &actorID,
		Action:  models.ActionPasswordChange,
		Origin:  origin,
		Success: true,
	})
	return nil
}

// SetTwoFactor toggles the actor's two-factor flag.
func (s *AccountService) SetTwoFactor(ctx context.Context, actorID string, enabled bool, origin models.Origin) error {
	if err := s.repomanager.Actors(s.db).SetTwoFactor(ctx, actorID, enabled); err != nil {
		return err
	}

	action := models.ActionTwoFactorDisabled
	if enabled {
		action = models.ActionTwoFactorEnabled
	}
	s.auditor.Record(AuditEntry{
		ActorID: &actorID,
		Action:  action,
		Origin:  origin,
		Success: true,
	})
	return nil
}

func (s *AccountService) generateTokenPair(ctx context.Context, tx dbx.DBTX, actor *models.Actor) (*TokenPair, error) {
	access, err := auth.GenerateToken(actor.ID, actor.Role, s.jwtSecret, s.accessTokenValidity)
	if err != nil {
		return nil, fmt.Errorf("error generating access token: %w", err)
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("error generating refresh token: %w", err)
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, actor.ID, refresh, s.refreshTokenValidity); err != nil {
		return nil, fmt.Errorf("error storing refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AccountService) auditFailedLogin(actorID *string, origin models.Origin, reason, email string) {
	s.auditor.Record(AuditEntry{
		ActorID: actorID,
		Action:  models.ActionFailedLogin,
		Origin:  origin,
		Success: false,
		Detail:  map[string]any{"reason": reason, "email": email},
	})
}
