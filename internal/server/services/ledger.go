package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/pointshare/internal/common"
	"github.com/dmitrijs2005/pointshare/internal/dbx"
	"github.com/dmitrijs2005/pointshare/internal/logging"
	"github.com/dmitrijs2005/pointshare/internal/server/metrics"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/repomanager"
)

// LedgerService holds account balances and moves points between them.
//
// Transfers lock both balance rows with SELECT ... FOR UPDATE inside one
// transaction, always in ascending account-id order, so two transfers that
// touch the same pair of accounts cannot deadlock and never lose an update.
type LedgerService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	metrics     *metrics.Metrics
	log         logging.Logger
	withTx      dbx.TxFunc
}

func NewLedgerService(db *sql.DB, m repomanager.RepositoryManager, mt *metrics.Metrics, log logging.Logger) *LedgerService {
	return &LedgerService{
		db:          db,
		repomanager: m,
		metrics:     mt,
		log:         log.With("module", "ledger"),
		withTx:      dbx.WithTx,
	}
}

// BalanceOf returns the account's balance or common.ErrAccountNotFound.
func (s *LedgerService) BalanceOf(ctx context.Context, accountID string) (models.Points, error) {
	p, err := s.repomanager.Points(s.db).Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, common.ErrAccountNotFound
		}
		return 0, err
	}
	return p, nil
}

// Transfer debits from and credits to by exactly amount in one transaction.
// On common.ErrInsufficientFunds neither balance changes.
func (s *LedgerService) Transfer(ctx context.Context, from, to string, amount models.Points) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive: %w", common.ErrorValidation)
	}
	if from == to {
		return fmt.Errorf("cannot transfer to the same account: %w", common.ErrorValidation)
	}

	err := s.withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		balances, err := s.lockBalances(ctx, tx, from, to)
		if err != nil {
			return err
		}
		if balances[from] < amount {
			return common.ErrInsufficientFunds
		}
		return s.move(ctx, tx, from, to, amount)
	})
	if err != nil {
		s.metrics.TransferOutcome(outcomeOf(err))
		return err
	}
	s.metrics.TransferOutcome("ok")
	return nil
}

// Seed credits amount to the account outside the transfer path.
func (s *LedgerService) Seed(ctx context.Context, accountID string, amount models.Points) (models.Points, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("seed amount must be positive: %w", common.ErrorValidation)
	}
	if amount == models.MaxPoints {
		return 0, fmt.Errorf("seed amount out of range: %w", common.ErrorValidation)
	}
	p, err := s.repomanager.Points(s.db).Add(ctx, accountID, amount)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, common.ErrAccountNotFound
		}
		return 0, err
	}
	s.log.Info(ctx, "points seeded", "account_id", accountID, "amount", amount.String())
	return p, nil
}

// lockBalances row-locks the balances of ids in ascending id order and returns
// them. Duplicate ids are locked once.
func (s *LedgerService) lockBalances(ctx context.Context, tx dbx.DBTX, ids ...string) (map[string]models.Points, error) {
	order := slices.Clone(ids)
	slices.Sort(order)
	order = slices.Compact(order)

	repo := s.repomanager.Points(tx)
	balances := make(map[string]models.Points, len(order))
	for _, id := range order {
		p, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil, common.ErrAccountNotFound
			}
			return nil, err
		}
		balances[id] = p
	}
	return balances, nil
}

// move applies a debit and the matching credit. Both rows must already be
// locked by the caller's transaction and the debit must be covered.
func (s *LedgerService) move(ctx context.Context, tx dbx.DBTX, from, to string, amount models.Points) error {
	repo := s.repomanager.Points(tx)
	if _, err := repo.Add(ctx, from, -amount); err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}
	if _, err := repo.Add(ctx, to, amount); err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, common.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, common.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, common.ErrDuplicateVote):
		return "duplicate"
	case errors.Is(err, common.ErrVoteTooLow), errors.Is(err, common.ErrVoteTooHigh):
		return "out_of_range"
	case errors.Is(err, common.ErrSelfVote):
		return "self_vote"
	case errors.Is(err, common.ErrNotConfirmed):
		return "not_confirmed"
	case errors.Is(err, common.ErrImageNotFound):
		return "image_not_found"
	default:
		return "error"
	}
}
