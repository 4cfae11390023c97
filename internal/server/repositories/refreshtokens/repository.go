// Package refreshtokens declares the repository contract for refresh tokens
// backing the session workflow.
package refreshtokens

import (
	"context"
	"time"

	"github.com/clinsafe/medledger/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking
// refresh tokens.
type Repository interface {
	// Create stores a new refresh token for actorID with an expiry of
	// now+validity.
	Create(ctx context.Context, actorID string, token string, validity time.Duration) error

	// Find looks up a refresh token by its opaque token string.
	// Returns a not-found error when the token is absent.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes a refresh token by its token string. Deleting a
	// non-existent token is not an error.
	Delete(ctx context.Context, token string) error

	// DeleteByActor removes every refresh token issued to actorID.
	DeleteByActor(ctx context.Context, actorID string) error
}
