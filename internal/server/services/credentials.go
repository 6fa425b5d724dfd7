package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/pointshare/internal/common"
	"github.com/dmitrijs2005/pointshare/internal/cryptox"
	"github.com/dmitrijs2005/pointshare/internal/dbx"
	"github.com/dmitrijs2005/pointshare/internal/logging"
	"github.com/dmitrijs2005/pointshare/internal/server/auth"
	"github.com/dmitrijs2005/pointshare/internal/server/config"
	"github.com/dmitrijs2005/pointshare/internal/server/metrics"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/repomanager"
)

// TokenPair bundles a short-lived access token and a refresh token. Rotated
// is set when RefreshToken is a newly issued secret rather than the one the
// caller presented.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Rotated      bool
}

// CredentialService manages refresh tokens and email-confirmation tokens and
// mints access tokens. Secrets are returned in clear exactly once; only their
// hashes are persisted.
type CredentialService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	metrics     *metrics.Metrics
	log         logging.Logger

	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	maxRefreshTokens             int
	confirmationValidity         time.Duration
	confirmationMinimalDelay     time.Duration

	now       func() time.Time
	newSecret func() (string, error)
}

func NewCredentialService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, mt *metrics.Metrics, log logging.Logger) *CredentialService {
	return &CredentialService{
		db:                           db,
		repomanager:                  m,
		metrics:                      mt,
		log:                          log.With("module", "credentials"),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		maxRefreshTokens:             cfg.MaxRefreshTokensPerAccount,
		confirmationValidity:         cfg.ConfirmationTokenValidityDuration,
		confirmationMinimalDelay:     cfg.ConfirmationMinimalDelay,
		now:                          time.Now,
		newSecret:                    func() (string, error) { return common.MakeRandHexString(32) },
	}
}

// MintAccessToken signs an access token carrying the account's current
// authorities.
func (s *CredentialService) MintAccessToken(account *models.Account) (string, error) {
	token, err := auth.GenerateToken(account, s.jwtSecret, s.now(), s.accessTokenValidityDuration)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	s.metrics.CredentialIssued("access")
	return token, nil
}

// Mint loads the account and signs an access token from its live role grants.
func (s *CredentialService) Mint(ctx context.Context, accountID string) (string, error) {
	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrAccountNotFound
		}
		return "", err
	}
	return s.MintAccessToken(account)
}

// IssueRefreshToken persists a new refresh token for accountID and returns
// the plaintext secret. When the account is at its cap, the oldest tokens are
// evicted first so that cap-1 remain; eviction failures are logged and do not
// block issuance.
func (s *CredentialService) IssueRefreshToken(ctx context.Context, accountID string) (string, error) {
	repo := s.repomanager.RefreshTokens(s.db)

	count, err := repo.CountByAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	if s.maxRefreshTokens > 0 && count >= s.maxRefreshTokens {
		if err := s.evictOldestRefreshTokens(ctx, accountID); err != nil {
			s.metrics.SideEffectDropped("refresh_eviction")
			s.log.Warn(ctx, "refresh token eviction failed", "account_id", accountID, "error", err)
		}
	}

	secret, err := s.newSecret()
	if err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}

	_, err = repo.Create(ctx, &models.RefreshToken{
		AccountID:   accountID,
		HashedToken: cryptox.HashToken(secret),
		CreatedAt:   s.now(),
		TTL:         s.refreshTokenValidityDuration,
	})
	if err != nil {
		return "", err
	}
	s.metrics.CredentialIssued("refresh")
	return secret, nil
}

// evictOldestRefreshTokens deletes a strict prefix (by creation time) of the
// account's tokens, keeping the newest cap-1.
func (s *CredentialService) evictOldestRefreshTokens(ctx context.Context, accountID string) error {
	repo := s.repomanager.RefreshTokens(s.db)

	tokens, err := repo.ListByAccount(ctx, accountID)
	if err != nil {
		return err
	}
	keep := s.maxRefreshTokens - 1
	if len(tokens) <= keep {
		return nil
	}
	victims := tokens[:len(tokens)-keep]
	for _, t := range victims {
		if err := repo.DeleteByID(ctx, t.ID); err != nil {
			return err
		}
	}
	s.metrics.RefreshTokensEvicted(len(victims))
	s.log.Debug(ctx, "evicted refresh tokens", "account_id", accountID, "count", len(victims))
	return nil
}

// ResolveRefreshToken looks the token up by the hash of its secret.
func (s *CredentialService) ResolveRefreshToken(ctx context.Context, plaintext string) (*models.RefreshToken, error) {
	token, err := s.repomanager.RefreshTokens(s.db).FindByHash(ctx, cryptox.HashToken(plaintext))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrCredentialNotFound
		}
		return nil, err
	}
	return token, nil
}

// RotateOnRefresh mints a new access token for the owner of a valid refresh
// token. Past the token's half-life a brand-new refresh token is issued and
// returned instead of the presented one.
func (s *CredentialService) RotateOnRefresh(ctx context.Context, plaintext string) (*TokenPair, error) {
	token, err := s.ResolveRefreshToken(ctx, plaintext)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if token.IsExpired(now) {
		return nil, common.ErrCredentialExpired
	}

	accessToken, err := s.Mint(ctx, token.AccountID)
	if err != nil {
		return nil, err
	}

	pair := &TokenPair{AccessToken: accessToken, RefreshToken: plaintext}
	if token.IsHalfwayExpired(now) {
		fresh, err := s.IssueRefreshToken(ctx, token.AccountID)
		if err != nil {
			return nil, err
		}
		pair.RefreshToken = fresh
		pair.Rotated = true
	}
	return pair, nil
}

// RevokeRefreshToken deletes the token (logout).
func (s *CredentialService) RevokeRefreshToken(ctx context.Context, plaintext string) error {
	err := s.repomanager.RefreshTokens(s.db).DeleteByHash(ctx, cryptox.HashToken(plaintext))
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrCredentialNotFound
	}
	return err
}

// DeleteExpiredRefreshTokens removes every expired refresh token.
func (s *CredentialService) DeleteExpiredRefreshTokens(ctx context.Context) (int64, error) {
	return s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, s.now())
}

// IssueEmailConfirmationToken persists a confirmation token bound to the
// account's current email and returns the plaintext secret.
func (s *CredentialService) IssueEmailConfirmationToken(ctx context.Context, account *models.Account) (string, error) {
	if account.IsConfirmed() {
		return "", common.ErrAlreadyConfirmed
	}

	secret, err := s.newSecret()
	if err != nil {
		return "", fmt.Errorf("generating confirmation token: %w", err)
	}

	_, err = s.repomanager.ConfirmationTokens(s.db).Create(ctx, &models.EmailConfirmationToken{
		AccountID:   account.ID,
		HashedToken: cryptox.HashToken(secret),
		OriginEmail: account.Email,
		CreatedAt:   s.now(),
		TTL:         s.confirmationValidity,
	})
	if err != nil {
		return "", err
	}
	s.metrics.CredentialIssued("confirmation")
	return secret, nil
}

// CheckConfirmationAvailability fails with *common.RateLimitedError while the
// newest outstanding confirmation token is younger than the minimal resend delay.
func (s *CredentialService) CheckConfirmationAvailability(ctx context.Context, account *models.Account) error {
	if account.IsConfirmed() {
		return common.ErrAlreadyConfirmed
	}

	latest, err := s.repomanager.ConfirmationTokens(s.db).LatestByAccount(ctx, account.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}

	availableAt := latest.CreatedAt.Add(s.confirmationMinimalDelay)
	now := s.now()
	if now.Before(availableAt) {
		left := int64(availableAt.Sub(now) / time.Second)
		return &common.RateLimitedError{SecondsRemaining: left}
	}
	return nil
}

// ConfirmationMinimalDelay is the spacing enforced between confirmation emails.
func (s *CredentialService) ConfirmationMinimalDelay() time.Duration {
	return s.confirmationMinimalDelay
}

// ConsumeConfirmationToken resolves a confirmation token by its secret.
// Expiry is judged by the caller against the account's current email.
func (s *CredentialService) ConsumeConfirmationToken(ctx context.Context, plaintext string) (*models.EmailConfirmationToken, error) {
	token, err := s.repomanager.ConfirmationTokens(s.db).FindByHash(ctx, cryptox.HashToken(plaintext))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrCredentialNotFound
		}
		return nil, err
	}
	return token, nil
}

// PurgeExpired deletes the account's confirmation tokens that are expired
// either by TTL or by an email change.
func (s *CredentialService) PurgeExpired(ctx context.Context, account *models.Account) error {
	return s.purgeExpired(ctx, s.db, account)
}

func (s *CredentialService) purgeExpired(ctx context.Context, db dbx.DBTX, account *models.Account) error {
	repo := s.repomanager.ConfirmationTokens(db)

	tokens, err := repo.ListByAccount(ctx, account.ID)
	if err != nil {
		return err
	}
	now := s.now()
	for _, t := range tokens {
		if !t.IsExpired(now, account.Email) {
			continue
		}
		if err := repo.DeleteByID(ctx, t.ID); err != nil {
			return err
		}
	}
	return nil
}

// PurgeAll deletes every confirmation token of the account.
func (s *CredentialService) PurgeAll(ctx context.Context, accountID string) error {
	return s.purgeAll(ctx, s.db, accountID)
}

func (s *CredentialService) purgeAll(ctx context.Context, db dbx.DBTX, accountID string) error {
	return s.repomanager.ConfirmationTokens(db).DeleteAllByAccount(ctx, accountID)
}
