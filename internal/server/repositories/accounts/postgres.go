package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/pointshare/internal/common"
	"github.com/dmitrijs2005/pointshare/internal/dbx"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the account and fills CreatedAt. A taken username or email
// yields common.ErrorAlreadyExists.
func (r *PostgresRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	query := `
		INSERT INTO accounts (id, username, email, password_hash, roles)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		account.ID, account.UserName, account.Email, account.PasswordHash, models.JoinRoles(account.Roles),
	).Scan(&account.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return account, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `
		SELECT id, username, email, password_hash, roles, created_at
		FROM accounts
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByUserName(ctx context.Context, userName string) (*models.Account, error) {
	query := `
		SELECT id, username, email, password_hash, roles, created_at
		FROM accounts
		WHERE username = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, userName))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Account, error) {
	var (
		a     models.Account
		roles string
	)
	if err := row.Scan(&a.ID, &a.UserName, &a.Email, &a.PasswordHash, &roles, &a.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	a.Roles = models.ParseRoles(roles)
	return &a, nil
}

func (r *PostgresRepository) ExistsByUserName(ctx context.Context, userName string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1)`, userName)
}

func (r *PostgresRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`, email)
}

func (r *PostgresRepository) exists(ctx context.Context, query string, arg string) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) UpdateEmail(ctx context.Context, id string, email string) error {
	query := `
		UPDATE accounts SET email = $2
		WHERE id = $1
	`
	return r.update(ctx, query, id, email)
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	query := `
		UPDATE accounts SET password_hash = $2
		WHERE id = $1
	`
	return r.update(ctx, query, id, passwordHash)
}

func (r *PostgresRepository) SetRoles(ctx context.Context, id string, roles []models.RoleGrant) error {
	query := `
		UPDATE accounts SET roles = $2
		WHERE id = $1
	`
	return r.update(ctx, query, id, models.JoinRoles(roles))
}

func (r *PostgresRepository) update(ctx context.Context, query string, id string, value string) error {
	res, err := r.db.ExecContext(ctx, query, id, value)
	if err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("error performing sql request: %v", err)
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
