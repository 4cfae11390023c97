// Package records declares the repository contract for the medical record
// chain.
package records

import (
	"context"

	"github.com/clinsafe/medledger/internal/server/models"
)

// Repository defines operations over the per-patient medical record chain.
// Chain fields (chain_seq, previous_hash, content_hash) are written once at
// insert and never updated; only the operational fields (notes, document
// key, active flag) may change afterwards.
type Repository interface {
	// Insert persists a fully composed record, chain fields included.
	Insert(ctx context.Context, rec *models.Record) error

	// GetByID returns the record with the given id, or a not-found error.
	GetByID(ctx context.Context, id string) (*models.Record, error)

	// Head returns the chain head for a patient: the record with the
	// highest chain_seq, with only id, chain_seq and content_hash filled.
	// Returns a not-found error when the chain is empty.
	Head(ctx context.Context, patientID string) (*models.Record, error)

	// ListByPatient returns the patient's full chain in chain_seq order.
	ListByPatient(ctx context.Context, patientID string) ([]*models.Record, error)

	// SetActive flips the soft-delete flag. The row and its chain position
	// stay in place.
	SetActive(ctx context.Context, id string, active bool) error

	// SetDocumentKey attaches a storage key to the record.
	SetDocumentKey(ctx context.Context, id string, key string) error
}
