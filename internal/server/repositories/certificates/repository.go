// Package certificates declares the repository contract for the medical
// certificate chain.
package certificates

import (
	"context"

	"github.com/clinsafe/medledger/internal/server/models"
)

// Repository defines operations over the per-patient certificate chain.
// Chain fields are written once at insert; only the workflow status may
// change afterwards.
type Repository interface {
	// Insert persists a fully composed certificate, chain fields included.
	Insert(ctx context.Context, cert *models.Certificate) error

	// GetByID returns the certificate with the given id, or a not-found
	// error.
	GetByID(ctx context.Context, id string) (*models.Certificate, error)

	// Head returns the chain head for a patient with only id, chain_seq and
	// content_hash filled. Returns a not-found error when the chain is empty.
	Head(ctx context.Context, patientID string) (*models.Certificate, error)

	// ListByPatient returns the patient's full chain in chain_seq order.
	ListByPatient(ctx context.Context, patientID string) ([]*models.Certificate, error)

	// UpdateStatus moves the certificate to a new workflow status.
	UpdateStatus(ctx context.Context, id string, status string) error
}
