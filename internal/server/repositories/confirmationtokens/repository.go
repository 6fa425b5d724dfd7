// Package confirmationtokens declares the repository contract for
// email-confirmation tokens.
package confirmationtokens

import (
	"context"

	"github.com/dmitrijs2005/pointshare/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, token *models.EmailConfirmationToken) (*models.EmailConfirmationToken, error)
	FindByHash(ctx context.Context, hashedToken string) (*models.EmailConfirmationToken, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.EmailConfirmationToken, error)
	// LatestByAccount returns the most recently created token or common.ErrorNotFound.
	LatestByAccount(ctx context.Context, accountID string) (*models.EmailConfirmationToken, error)
	DeleteByID(ctx context.Context, id int64) error
	DeleteAllByAccount(ctx context.Context, accountID string) error
}
