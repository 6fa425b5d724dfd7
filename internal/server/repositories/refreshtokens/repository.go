// Package refreshtokens declares the server-side repository contract for
// refresh tokens. Tokens are addressed by the hash of their secret.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/pointshare/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error)
	FindByHash(ctx context.Context, hashedToken string) (*models.RefreshToken, error)
	// ListByAccount returns the account's tokens oldest first.
	ListByAccount(ctx context.Context, accountID string) ([]*models.RefreshToken, error)
	CountByAccount(ctx context.Context, accountID string) (int, error)
	DeleteByID(ctx context.Context, id int64) error
	DeleteByHash(ctx context.Context, hashedToken string) error
	// DeleteExpired removes every token with created_at + ttl <= now and
	// returns how many rows went away.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
