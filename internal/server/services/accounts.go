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
	"github.com/dmitrijs2005/pointshare/internal/server/config"
	"github.com/dmitrijs2005/pointshare/internal/server/metrics"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const confirmationSubject = "Confirm your PointShare email"

// AccountService covers registration, sign-in and the account-level
// operations built on top of credentials, ledger, votes and images.
type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	credentials *CredentialService
	ledger      *LedgerService
	votes       *VoteService
	images      *ImageService
	storage     ObjectStorage
	mailer      Mailer
	avatars     AvatarGenerator
	metrics     *metrics.Metrics
	log         logging.Logger
	withTx      dbx.TxFunc

	activationURL string
	seedPoints    models.Points

	hashPassword func(string) (string, error)
	newID        func() string
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	credentials *CredentialService, ledger *LedgerService, votes *VoteService, images *ImageService,
	storage ObjectStorage, mailer Mailer, avatars AvatarGenerator, mt *metrics.Metrics, log logging.Logger) *AccountService {
	return &AccountService{
		db:            db,
		repomanager:   m,
		credentials:   credentials,
		ledger:        ledger,
		votes:         votes,
		images:        images,
		storage:       storage,
		mailer:        mailer,
		avatars:       avatars,
		metrics:       mt,
		log:           log.With("module", "accounts"),
		withTx:        dbx.WithTx,
		activationURL: cfg.ConfirmationActivationURL,
		seedPoints:    models.RoundPoints(cfg.SeedPoints),
		hashPassword:  cryptox.HashPassword,
		newID:         func() string { return uuid.NewString() },
	}
}

// Register creates an unconfirmed account with an empty balance and emails
// a confirmation link. The avatar upload is best-effort.
func (s *AccountService) Register(ctx context.Context, userName, email, password string) (*models.Account, error) {
	if err := validateUserName(userName); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	if err := s.checkUnique(ctx, userName, email); err != nil {
		return nil, err
	}

	account, err := s.create(ctx, userName, email, password, []models.RoleGrant{models.RoleUnconfirmed}, 0)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "account registered", "user", userName)

	s.uploadAvatar(ctx, account.UserName)

	if err := s.sendConfirmation(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AccountService) checkUnique(ctx context.Context, userName, email string) error {
	repo := s.repomanager.Accounts(s.db)

	taken, err := repo.ExistsByUserName(ctx, userName)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("username %q is taken: %w", userName, common.ErrorAlreadyExists)
	}

	taken, err = repo.ExistsByEmail(ctx, email)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("email %q is taken: %w", email, common.ErrorAlreadyExists)
	}
	return nil
}

// create stores the account and its balance row in one transaction.
func (s *AccountService) create(ctx context.Context, userName, email, password string, roles []models.RoleGrant, balance models.Points) (*models.Account, error) {
	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	var account *models.Account
	err = s.withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		account, err = s.repomanager.Accounts(tx).Create(ctx, &models.Account{
			ID:           s.newID(),
			UserName:     userName,
			Email:        email,
			PasswordHash: hash,
			Roles:        roles,
		})
		if err != nil {
			return err
		}
		return s.repomanager.Points(tx).Create(ctx, account.ID, balance)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AccountService) uploadAvatar(ctx context.Context, userName string) {
	data, err := s.avatars.Generate(userName)
	if err == nil {
		err = s.storage.Put(ctx, data, userName+".png", common.StorageNamespaceUsers)
	}
	if err != nil {
		s.metrics.SideEffectDropped("avatar")
		s.log.Warn(ctx, "avatar not uploaded", "user", userName, "error", err)
	}
}

func (s *AccountService) sendConfirmation(ctx context.Context, account *models.Account) error {
	secret, err := s.credentials.IssueEmailConfirmationToken(ctx, account)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Hello %s,\n\nconfirm your email by opening %s%s\n", account.UserName, s.activationURL, secret)
	if err := s.mailer.Send(ctx, account.Email, confirmationSubject, body); err != nil {
		return fmt.Errorf("sending confirmation email: %w", err)
	}
	return nil
}

// Login checks the password and issues a fresh token pair.
func (s *AccountService) Login(ctx context.Context, userName, password string) (*TokenPair, error) {
	account, err := s.repomanager.Accounts(s.db).GetByUserName(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	if !cryptox.CheckPassword(account.PasswordHash, password) {
		return nil, common.ErrorUnauthorized
	}

	access, err := s.credentials.MintAccessToken(account)
	if err != nil {
		return nil, err
	}
	refresh, err := s.credentials.IssueRefreshToken(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, Rotated: true}, nil
}

func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return s.credentials.RotateOnRefresh(ctx, refreshToken)
}

func (s *AccountService) Logout(ctx context.Context, refreshToken string) error {
	return s.credentials.RevokeRefreshToken(ctx, refreshToken)
}

// ConfirmEmail consumes a confirmation token and promotes the account from
// UNCONFIRMED to MEMBER.
func (s *AccountService) ConfirmEmail(ctx context.Context, token string) error {
	ct, err := s.credentials.ConsumeConfirmationToken(ctx, token)
	if err != nil {
		return err
	}
	account, err := s.byID(ctx, ct.AccountID)
	if err != nil {
		return err
	}

	if ct.IsExpired(s.credentials.now(), account.Email) {
		if err := s.credentials.PurgeExpired(ctx, account); err != nil {
			s.log.Warn(ctx, "purging expired confirmation tokens", "user", account.UserName, "error", err)
		}
		return common.ErrCredentialExpired
	}

	if account.IsConfirmed() {
		if err := s.credentials.PurgeAll(ctx, account.ID); err != nil {
			s.log.Warn(ctx, "purging confirmation tokens", "user", account.UserName, "error", err)
		}
		return common.ErrAlreadyConfirmed
	}

	account.ReplaceRole(models.RoleUnconfirmed, models.RoleMember)
	err = s.withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Accounts(tx).SetRoles(ctx, account.ID, account.Roles); err != nil {
			return err
		}
		return s.credentials.purgeAll(ctx, tx, account.ID)
	})
	if err != nil {
		return err
	}
	s.log.Info(ctx, "email confirmed", "user", account.UserName)
	return nil
}

// ResendConfirmation emails a new confirmation link unless one was sent too
// recently. It returns the delay the caller must wait before the next resend.
func (s *AccountService) ResendConfirmation(ctx context.Context, userName string) (time.Duration, error) {
	account, err := s.byUserName(ctx, userName)
	if err != nil {
		return 0, err
	}
	if err := s.credentials.CheckConfirmationAvailability(ctx, account); err != nil {
		return 0, err
	}
	if err := s.credentials.PurgeExpired(ctx, account); err != nil {
		s.log.Warn(ctx, "purging expired confirmation tokens", "user", userName, "error", err)
	}
	if err := s.sendConfirmation(ctx, account); err != nil {
		return 0, err
	}
	return s.credentials.ConfirmationMinimalDelay(), nil
}

// ChangeEmail switches the account to newEmail and sends it back through
// confirmation. Tokens bound to the old address stop being valid.
func (s *AccountService) ChangeEmail(ctx context.Context, userName, newEmail string) error {
	if err := validateEmail(newEmail); err != nil {
		return err
	}
	account, err := s.byUserName(ctx, userName)
	if err != nil {
		return err
	}
	if account.Email == newEmail {
		return fmt.Errorf("email is unchanged: %w", common.ErrorValidation)
	}

	taken, err := s.repomanager.Accounts(s.db).ExistsByEmail(ctx, newEmail)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("email %q is taken: %w", newEmail, common.ErrorAlreadyExists)
	}

	account.Email = newEmail
	account.ReplaceRole(models.RoleMember, models.RoleUnconfirmed)
	err = s.withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)
		if err := repo.UpdateEmail(ctx, account.ID, newEmail); err != nil {
			return err
		}
		return repo.SetRoles(ctx, account.ID, account.Roles)
	})
	if err != nil {
		return err
	}
	s.log.Info(ctx, "email changed", "user", userName)

	return s.sendConfirmation(ctx, account)
}

func (s *AccountService) ChangePassword(ctx context.Context, userName, oldPassword, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return fmt.Errorf("passwords do not match: %w", common.ErrorValidation)
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	account, err := s.byUserName(ctx, userName)
	if err != nil {
		return err
	}
	if !cryptox.CheckPassword(account.PasswordHash, oldPassword) {
		return common.ErrorUnauthorized
	}
	if oldPassword == newPassword {
		return fmt.Errorf("new password equals the old one: %w", common.ErrorValidation)
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	return s.repomanager.Accounts(s.db).UpdatePassword(ctx, account.ID, hash)
}

// Me returns the principal's own account.
func (s *AccountService) Me(ctx context.Context, userName string) (*models.Account, error) {
	return s.byUserName(ctx, userName)
}

// SetProfileImage replaces the confirmed user's avatar with data.
func (s *AccountService) SetProfileImage(ctx context.Context, userName string, data []byte) error {
	account, err := s.byUserName(ctx, userName)
	if err != nil {
		return err
	}
	if !account.IsConfirmed() {
		return common.ErrNotConfirmed
	}
	if len(data) == 0 {
		return fmt.Errorf("profile image is empty: %w", common.ErrorValidation)
	}
	if err := s.storage.Put(ctx, data, account.UserName+".png", common.StorageNamespaceUsers); err != nil {
		return fmt.Errorf("storing profile image: %w", err)
	}
	s.log.Info(ctx, "profile image updated", "user", userName)
	return nil
}

// Balance returns the user's current points.
func (s *AccountService) Balance(ctx context.Context, userName string) (models.Points, error) {
	account, err := s.byUserName(ctx, userName)
	if err != nil {
		return 0, err
	}
	return s.ledger.BalanceOf(ctx, account.ID)
}

func (s *AccountService) Achievements(ctx context.Context, userName string) (*models.Achievements, error) {
	account, err := s.byUserName(ctx, userName)
	if err != nil {
		return nil, err
	}

	published, err := s.images.CountPublicImages(ctx, userName)
	if err != nil {
		return nil, err
	}
	received, err := s.votes.PointsReceived(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	sent, err := s.votes.PointsSent(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return &models.Achievements{ImagesPublished: published, PointsReceived: received, PointsSent: sent}, nil
}

// SeedPoints credits points to targetUserName. Only admins may seed.
func (s *AccountService) SeedPoints(ctx context.Context, adminUserName, targetUserName string, amount float64) (models.Points, error) {
	admin, err := s.byUserName(ctx, adminUserName)
	if err != nil {
		return 0, err
	}
	if !admin.HasRole(models.RoleAdmin) {
		return 0, common.ErrorUnauthorized
	}
	target, err := s.byUserName(ctx, targetUserName)
	if err != nil {
		return 0, err
	}
	return s.ledger.Seed(ctx, target.ID, models.RoundPoints(amount))
}

type devAccount struct {
	userName, email, password string
	roles                     []models.RoleGrant
}

var devAccounts = []devAccount{
	{"ivan", "ivan@pointshare.local", "Ivan123", []models.RoleGrant{models.RoleMember}},
	{"moderen", "mod@pointshare.local", "Moderen123", []models.RoleGrant{models.RoleMember, models.RoleModerator}},
	{"admin", "admin@pointshare.local", "Admin123", []models.RoleGrant{models.RoleMember, models.RoleModerator, models.RoleAdmin}},
}

// BootstrapDevAccounts creates a confirmed member, moderator and admin with
// the configured seed balance. Existing usernames are left alone.
func (s *AccountService) BootstrapDevAccounts(ctx context.Context) error {
	for _, d := range devAccounts {
		exists, err := s.repomanager.Accounts(s.db).ExistsByUserName(ctx, d.userName)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := s.create(ctx, d.userName, d.email, d.password, d.roles, s.seedPoints); err != nil {
			return fmt.Errorf("bootstrapping %s: %w", d.userName, err)
		}
		s.uploadAvatar(ctx, d.userName)
		s.log.Info(ctx, "dev account created", "user", d.userName)
	}
	return nil
}

func (s *AccountService) byUserName(ctx context.Context, userName string) (*models.Account, error) {
	account, err := s.repomanager.Accounts(s.db).GetByUserName(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func (s *AccountService) byID(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}
