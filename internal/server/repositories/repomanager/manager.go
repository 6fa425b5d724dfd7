package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/pointshare/internal/dbx"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/confirmationtokens"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/images"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/notifications"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/points"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/votes"
)

// RepositoryManager vends repositories bound to a *sql.DB or an open *sql.Tx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	ConfirmationTokens(db dbx.DBTX) confirmationtokens.Repository
	Points(db dbx.DBTX) points.Repository
	Votes(db dbx.DBTX) votes.Repository
	Images(db dbx.DBTX) images.Repository
	Notifications(db dbx.DBTX) notifications.Repository
}
