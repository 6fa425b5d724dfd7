package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/pointshare/internal/common"
	"github.com/dmitrijs2005/pointshare/internal/dbx"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
)

// PostgresRepository implements CRUD operations for refresh tokens over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the token and fills its ID.
func (r *PostgresRepository) Create(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error) {
	query := `
		INSERT INTO refresh_tokens (account_id, hashed_token, created_at, ttl_seconds)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		token.AccountID, token.HashedToken, token.CreatedAt, int64(token.TTL/time.Second),
	).Scan(&token.ID)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %v", err)
	}
	return token, nil
}

// FindByHash returns the token stored under hashedToken or common.ErrorNotFound.
func (r *PostgresRepository) FindByHash(ctx context.Context, hashedToken string) (*models.RefreshToken, error) {
	query := `
		SELECT id, account_id, hashed_token, created_at, ttl_seconds
		FROM refresh_tokens
		WHERE hashed_token = $1
	`
	var (
		t   models.RefreshToken
		ttl int64
	)
	err := r.db.QueryRowContext(ctx, query, hashedToken).Scan(&t.ID, &t.AccountID, &t.HashedToken, &t.CreatedAt, &ttl)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	t.TTL = time.Duration(ttl) * time.Second
	return &t, nil
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.RefreshToken, error) {
	query := `
		SELECT id, account_id, hashed_token, created_at, ttl_seconds
		FROM refresh_tokens
		WHERE account_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var res []*models.RefreshToken
	for rows.Next() {
		var (
			t   models.RefreshToken
			ttl int64
		)
		if err := rows.Scan(&t.ID, &t.AccountID, &t.HashedToken, &t.CreatedAt, &ttl); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		t.TTL = time.Duration(ttl) * time.Second
		res = append(res, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return res, nil
}

func (r *PostgresRepository) CountByAccount(ctx context.Context, accountID string) (int, error) {
	query := `SELECT COUNT(*) FROM refresh_tokens WHERE account_id = $1`
	var n int
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// DeleteByID removes one token. Deleting a row that is already gone is not an error.
func (r *PostgresRepository) DeleteByID(ctx context.Context, id int64) error {
	query := `DELETE FROM refresh_tokens WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeleteByHash removes the token; a missing row yields common.ErrorNotFound.
func (r *PostgresRepository) DeleteByHash(ctx context.Context, hashedToken string) error {
	query := `DELETE FROM refresh_tokens WHERE hashed_token = $1`
	res, err := r.db.ExecContext(ctx, query, hashedToken)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE created_at + ttl_seconds * INTERVAL '1 second' <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
