package actors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/clinsafe/medledger/internal/common"
	"github.com/clinsafe/medledger/internal/dbx"
	"github.com/clinsafe/medledger/internal/server/models"
)

// PostgresRepository implements actor storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const actorColumns = `id, email, salt, password_verifier, first_name, last_name, role, phone, active, two_factor_enabled, created_at, last_login`

func scanActor(row *sql.Row) (*models.Actor, error) {
	actor := &models.Actor{}
	err := row.Scan(&actor.ID, &actor.Email, &actor.Salt, &actor.Verifier,
		&actor.FirstName, &actor.LastName, &actor.Role, &actor.Phone,
		&actor.Active, &actor.TwoFactorEnabled, &actor.CreatedAt, &actor.LastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return actor, nil
}

// Create inserts a new actor row. The id and creation timestamp are assigned
// by the database and filled into the returned actor.
func (r *PostgresRepository) Create(ctx context.Context, actor *models.Actor) (*models.Actor, error) {
	query := `
		INSERT INTO actors (email, salt, password_verifier, first_name, last_name, role, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		actor.Email, actor.Salt, actor.Verifier, actor.FirstName, actor.LastName,
		actor.Role, actor.Phone).Scan(&actor.ID, &actor.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	actor.Active = true
	return actor, nil
}

// GetByEmail returns the actor with the given email, or common.ErrorNotFound.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.Actor, error) {
	query := `SELECT ` + actorColumns + ` FROM actors WHERE email = $1`
	return scanActor(r.db.QueryRowContext(ctx, query, email))
}

// GetByID returns the actor with the given id, or common.ErrorNotFound.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Actor, error) {
	query := `SELECT ` + actorColumns + ` FROM actors WHERE id = $1`
	return scanActor(r.db.QueryRowContext(ctx, query, id))
}

// UpdateLastLogin stamps the actor's last successful login time.
func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE actors SET last_login = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, at)
}

// UpdatePassword replaces the actor's password salt and verifier.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, salt, verifier []byte) error {
	query := `UPDATE actors SET salt = $2, password_verifier = $3 WHERE id = $1`
	return r.execOne(ctx, query, id, salt, verifier)
}

// SetTwoFactor toggles the actor's two-factor flag.
func (r *PostgresRepository) SetTwoFactor(ctx context.Context, id string, enabled bool) error {
	query := `UPDATE actors SET two_factor_enabled = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, enabled)
}

// execOne runs an update that must affect exactly one row. Zero affected
// rows means the actor does not exist.
func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
