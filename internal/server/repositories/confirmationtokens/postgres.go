package confirmationtokens

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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `id, account_id, hashed_token, origin_email, created_at, ttl_seconds`

type scanner interface {
	Scan(dest ...any) error
}

func scanToken(s scanner) (*models.EmailConfirmationToken, error) {
	var (
		t   models.EmailConfirmationToken
		ttl int64
	)
	if err := s.Scan(&t.ID, &t.AccountID, &t.HashedToken, &t.OriginEmail, &t.CreatedAt, &ttl); err != nil {
		return nil, err
	}
	t.TTL = time.Duration(ttl) * time.Second
	return &t, nil
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.EmailConfirmationToken) (*models.EmailConfirmationToken, error) {
	query := `
		INSERT INTO email_confirmation_tokens (account_id, hashed_token, origin_email, created_at, ttl_seconds)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query,
		token.AccountID, token.HashedToken, token.OriginEmail, token.CreatedAt, int64(token.TTL/time.Second),
	).Scan(&token.ID)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %v", err)
	}
	return token, nil
}

func (r *PostgresRepository) FindByHash(ctx context.Context, hashedToken string) (*models.EmailConfirmationToken, error) {
	query := `SELECT ` + selectColumns + ` FROM email_confirmation_tokens WHERE hashed_token = $1`
	t, err := scanToken(r.db.QueryRowContext(ctx, query, hashedToken))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) LatestByAccount(ctx context.Context, accountID string) (*models.EmailConfirmationToken, error) {
	query := `SELECT ` + selectColumns + ` FROM email_confirmation_tokens
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	t, err := scanToken(r.db.QueryRowContext(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.EmailConfirmationToken, error) {
	query := `SELECT ` + selectColumns + ` FROM email_confirmation_tokens
		WHERE account_id = $1
		ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var res []*models.EmailConfirmationToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return res, nil
}

func (r *PostgresRepository) DeleteByID(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM email_confirmation_tokens WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteAllByAccount(ctx context.Context, accountID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM email_confirmation_tokens WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
