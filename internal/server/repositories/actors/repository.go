// Package actors declares the repository contract for portal account
// persistence.
package actors

import (
	"context"
	"time"

	"github.com/clinsafe/medledger/internal/server/models"
)

// Repository defines operations for creating and maintaining actor accounts.
type Repository interface {
	// Create inserts a new actor and returns it with the assigned id and
	// creation timestamp filled in.
	Create(ctx context.Context, actor *models.Actor) (*models.Actor, error)

	// GetByEmail looks up an actor by email. Returns a not-found error when
	// no such account exists.
	GetByEmail(ctx context.Context, email string) (*models.Actor, error)

	// GetByID looks up an actor by id.
	GetByID(ctx context.Context, id string) (*models.Actor, error)

	// UpdateLastLogin stamps the actor's last successful login time.
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// UpdatePassword replaces the actor's password salt and verifier.
	UpdatePassword(ctx context.Context, id string, salt, verifier []byte) error

	// SetTwoFactor toggles the actor's two-factor flag.
	SetTwoFactor(ctx context.Context, id string, enabled bool) error
}
