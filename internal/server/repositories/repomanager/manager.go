package repomanager

import (
	"context"
	"database/sql"

	"github.com/clinsafe/medledger/internal/dbx"
	"github.com/clinsafe/medledger/internal/server/repositories/actors"
	"github.com/clinsafe/medledger/internal/server/repositories/audit"
	"github.com/clinsafe/medledger/internal/server/repositories/certificates"
	"github.com/clinsafe/medledger/internal/server/repositories/records"
	"github.com/clinsafe/medledger/internal/server/repositories/refreshtokens"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Actors(db dbx.DBTX) actors.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Records(db dbx.DBTX) records.Repository
	Certificates(db dbx.DBTX) certificates.Repository
	Audit(db dbx.DBTX) audit.Repository
}
