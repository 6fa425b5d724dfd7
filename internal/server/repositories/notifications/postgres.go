package notifications

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/pointshare/internal/dbx"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	query := `
		INSERT INTO notifications (account_id, title, message, category)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, n.AccountID, n.Title, n.Message, string(n.Category)).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %v", err)
	}
	return n, nil
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Notification, error) {
	query := `
		SELECT id, account_id, title, message, category, created_at
		FROM notifications
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var res []*models.Notification
	for rows.Next() {
		var (
			n        models.Notification
			category string
		)
		if err := rows.Scan(&n.ID, &n.AccountID, &n.Title, &n.Message, &category, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		n.Category = models.NotificationCategory(category)
		res = append(res, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return res, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, accountID string, id int64) (bool, error) {
	query := `DELETE FROM notifications WHERE id = $1 AND account_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, accountID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}
