// Package accounts declares the repository contract for platform accounts.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/pointshare/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByUserName(ctx context.Context, userName string) (*models.Account, error)
	ExistsByUserName(ctx context.Context, userName string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdateEmail(ctx context.Context, id string, email string) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	SetRoles(ctx context.Context, id string, roles []models.RoleGrant) error
}
