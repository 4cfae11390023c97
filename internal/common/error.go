// Package common defines shared constants and sentinel errors used across
// medledger layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound         = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")

	// Validation errors (unknown enum value, missing required field,
	// oversized payload).
	ErrValidation = errors.New("validation error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Login throttling.
	ErrRateLimited = errors.New("rate limited")
)
