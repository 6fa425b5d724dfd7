// Package points declares the repository contract for account balances.
package points

import (
	"context"

	"github.com/dmitrijs2005/pointshare/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, accountID string, initial models.Points) error
	Get(ctx context.Context, accountID string) (models.Points, error)
	// GetForUpdate reads the balance and row-locks it until the surrounding
	// transaction ends. Only meaningful inside a transaction.
	GetForUpdate(ctx context.Context, accountID string) (models.Points, error)
	// Add applies delta and returns the new balance.
	Add(ctx context.Context, accountID string, delta models.Points) (models.Points, error)
}
