// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/clinsafe/medledger/internal/dbx"
	"github.com/clinsafe/medledger/internal/server/migrations"
	"github.com/clinsafe/medledger/internal/server/repositories/actors"
	"github.com/clinsafe/medledger/internal/server/repositories/audit"
	"github.com/clinsafe/medledger/internal/server/repositories/certificates"
	"github.com/clinsafe/medledger/internal/server/repositories/records"
	"github.com/clinsafe/medledger/internal/server/repositories/refreshtokens"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Actors returns an actors.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Actors(db dbx.DBTX) actors.Repository {
	return actors.NewPostgresRepository(db)
}

// RefreshTokens returns a refreshtokens.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return refreshtokens.NewPostgresRepository(db)
}

// Records returns a records.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Records(db dbx.DBTX) records.Repository {
	return records.NewPostgresRepository(db)
}

// Certificates returns a certificates.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Certificates(db dbx.DBTX) certificates.Repository {
	return certificates.NewPostgresRepository(db)
}

// Audit returns an audit.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Audit(db dbx.DBTX) audit.Repository {
	return audit.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetDialect("pgx")
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(db *sql.DB) (RepositoryManager, error) {
	return &PostgresRepositoryManager{}, nil
}
