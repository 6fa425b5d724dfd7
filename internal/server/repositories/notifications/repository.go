// Package notifications declares the repository contract for persisted
// account notifications.
package notifications

import (
	"context"

	"github.com/dmitrijs2005/pointshare/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.Notification, error)
	// Delete removes the notification only when it belongs to accountID and
	// reports whether a row was removed.
	Delete(ctx context.Context, accountID string, id int64) (bool, error)
}
