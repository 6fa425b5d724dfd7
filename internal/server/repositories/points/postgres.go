package points

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/pointshare/internal/common"
	"github.com/dmitrijs2005/pointshare/internal/dbx"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
)

// PostgresRepository stores balances in points_bags as tenths of a point.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, accountID string, initial models.Points) error {
	query := `
		INSERT INTO points_bags (account_id, points)
		VALUES ($1, $2)
	`
	if _, err := r.db.ExecContext(ctx, query, accountID, int64(initial)); err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("error performing sql request: %v", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, accountID string) (models.Points, error) {
	return r.read(ctx, `SELECT points FROM points_bags WHERE account_id = $1`, accountID)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, accountID string) (models.Points, error) {
	return r.read(ctx, `SELECT points FROM points_bags WHERE account_id = $1 FOR UPDATE`, accountID)
}

func (r *PostgresRepository) read(ctx context.Context, query string, accountID string) (models.Points, error) {
	var p int64
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return models.Points(p), nil
}

func (r *PostgresRepository) Add(ctx context.Context, accountID string, delta models.Points) (models.Points, error) {
	query := `
		UPDATE points_bags SET points = points + $2
		WHERE account_id = $1
		RETURNING points
	`
	var p int64
	if err := r.db.QueryRowContext(ctx, query, accountID, int64(delta)).Scan(&p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return models.Points(p), nil
}
