package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/pointshare/internal/common"
	"github.com/dmitrijs2005/pointshare/internal/logging"
	"github.com/dmitrijs2005/pointshare/internal/server/metrics"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/repomanager"
)

// NotificationService persists notifications and pushes them to live
// connections of the recipient.
type NotificationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	notifier    Notifier
	metrics     *metrics.Metrics
	log         logging.Logger
}

func NewNotificationService(db *sql.DB, m repomanager.RepositoryManager, notifier Notifier, mt *metrics.Metrics, log logging.Logger) *NotificationService {
	return &NotificationService{
		db:          db,
		repomanager: m,
		notifier:    notifier,
		metrics:     mt,
		log:         log.With("module", "notifications"),
	}
}

// Push stores the notification and sends it on the recipient's channel. A
// failed push is logged; the stored row still reaches the user on next list.
func (s *NotificationService) Push(ctx context.Context, recipient *models.Account, title, message string, category models.NotificationCategory) (*models.Notification, error) {
	n, err := s.repomanager.Notifications(s.db).Create(ctx, &models.Notification{
		AccountID: recipient.ID,
		Title:     title,
		Message:   message,
		Category:  category,
	})
	if err != nil {
		return nil, err
	}

	if err := s.notifier.Notify(ctx, recipient.UserName, common.NotificationChannel, n); err != nil {
		s.metrics.SideEffectDropped("push")
		s.log.Warn(ctx, "notification push failed", "user", recipient.UserName, "error", err)
	}
	return n, nil
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userName string) ([]*models.Notification, error) {
	account, err := s.account(ctx, userName)
	if err != nil {
		return nil, err
	}
	return s.repomanager.Notifications(s.db).ListByAccount(ctx, account.ID)
}

// Delete removes the given notifications of the user and reports how many
// were removed. Ids owned by other accounts are skipped.
func (s *NotificationService) Delete(ctx context.Context, userName string, ids []int64) (int, error) {
	account, err := s.account(ctx, userName)
	if err != nil {
		return 0, err
	}
	repo := s.repomanager.Notifications(s.db)
	removed := 0
	for _, id := range ids {
		ok, err := repo.Delete(ctx, account.ID, id)
		if err != nil {
			return removed, fmt.Errorf("deleting notification %d: %w", id, err)
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func (s *NotificationService) account(ctx context.Context, userName string) (*models.Account, error) {
	account, err := s.repomanager.Accounts(s.db).GetByUserName(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}
