// Package repomanager wires repository constructors together so services
// can obtain repositories bound to either a plain connection or an open
// transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/contactkeeper/internal/dbx"
	"github.com/dmitrijs2005/contactkeeper/internal/repositories/contacts"
	"github.com/dmitrijs2005/contactkeeper/internal/repositories/refreshtokens"
	"github.com/dmitrijs2005/contactkeeper/internal/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX and exposes a
// schema migration hook.
type RepositoryManager interface {
	Users(db dbx.DBTX) users.Repository
	Contacts(db dbx.DBTX) contacts.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
