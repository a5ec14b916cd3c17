package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/poikeeper/internal/dbx"
	"github.com/dmitrijs2005/poikeeper/internal/server/repositories/records"
	"github.com/dmitrijs2005/poikeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/poikeeper/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a database handle, so the
// same service code runs against *sql.DB or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Records(db dbx.DBTX) records.Repository
}
