package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/pointshare/internal/common"
	"github.com/dmitrijs2005/pointshare/internal/dbx"
	"github.com/dmitrijs2005/pointshare/internal/logging"
	"github.com/dmitrijs2005/pointshare/internal/server/config"
	"github.com/dmitrijs2005/pointshare/internal/server/metrics"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/repomanager"
)

// VoteService records votes and drives the matching ledger transfer.
type VoteService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	ledger      *LedgerService
	metrics     *metrics.Metrics
	log         logging.Logger
	withTx      dbx.TxFunc
	now         func() time.Time

	minPoints models.Points
	maxPoints models.Points
}

func NewVoteService(db *sql.DB, m repomanager.RepositoryManager, ledger *LedgerService, cfg *config.Config, mt *metrics.Metrics, log logging.Logger) *VoteService {
	return &VoteService{
		db:          db,
		repomanager: m,
		ledger:      ledger,
		metrics:     mt,
		log:         log.With("module", "votes"),
		withTx:      dbx.WithTx,
		now:         time.Now,
		minPoints:   models.RoundPoints(cfg.VoteMinPoints),
		maxPoints:   models.RoundPoints(cfg.VoteMaxPoints),
	}
}

// Vote spends rawPoints (rounded half-up to one decimal) of the voter's
// balance on an image, crediting its publisher.
//
// Checks run in this order: confirmed voter, visible image, sufficient
// balance, no earlier vote, points within range, not the publisher. The vote
// row and the transfer commit together; a concurrent duplicate is caught by
// the (voter, image) unique constraint.
func (s *VoteService) Vote(ctx context.Context, imageID string, rawPoints float64, voterUserName string) (*models.Vote, error) {
	vote, err := s.vote(ctx, imageID, rawPoints, voterUserName)
	if err != nil {
		s.metrics.VoteOutcome(outcomeOf(err))
		return nil, err
	}
	s.metrics.VoteOutcome("accepted")
	s.metrics.PointsVoted(vote.Points.Float64())
	s.log.Info(ctx, "vote accepted", "image_id", imageID, "voter", voterUserName, "points", vote.Points.String())
	return vote, nil
}

func (s *VoteService) vote(ctx context.Context, imageID string, rawPoints float64, voterUserName string) (*models.Vote, error) {
	if math.IsNaN(rawPoints) || math.IsInf(rawPoints, 0) {
		return nil, fmt.Errorf("points must be a finite number: %w", common.ErrorValidation)
	}
	points := models.RoundPoints(rawPoints)

	var vote *models.Vote
	err := s.withTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		voter, err := s.repomanager.Accounts(tx).GetByUserName(ctx, voterUserName)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrAccountNotFound
			}
			return err
		}
		if !voter.IsConfirmed() {
			return common.ErrNotConfirmed
		}

		now := s.now()
		image, err := s.repomanager.Images(tx).GetByID(ctx, imageID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrImageNotFound
			}
			return err
		}
		if !image.VisibleTo(voter, now) {
			return common.ErrImageNotFound
		}

		balances, err := s.ledger.lockBalances(ctx, tx, voter.ID, image.PublisherID)
		if err != nil {
			return err
		}
		if balances[voter.ID] < points {
			return common.ErrInsufficientFunds
		}

		votes := s.repomanager.Votes(tx)
		voted, err := votes.ExistsByVoterAndImage(ctx, voter.ID, image.ID)
		if err != nil {
			return err
		}
		if voted {
			return common.ErrDuplicateVote
		}

		if points <= 0 || points < s.minPoints {
			return common.ErrVoteTooLow
		}
		if points > s.maxPoints {
			return common.ErrVoteTooHigh
		}
		if voter.ID == image.PublisherID {
			return common.ErrSelfVote
		}

		vote, err = votes.Create(ctx, &models.Vote{
			VoterID:     voter.ID,
			ImageID:     image.ID,
			Points:      points,
			SubmittedAt: now,
		})
		if err != nil {
			if errors.Is(err, common.ErrorAlreadyExists) {
				return common.ErrDuplicateVote
			}
			return err
		}

		return s.ledger.move(ctx, tx, voter.ID, image.PublisherID, points)
	})
	if err != nil {
		return nil, err
	}
	return vote, nil
}

// PointsReceived sums the points of all votes on the account's images.
func (s *VoteService) PointsReceived(ctx context.Context, accountID string) (models.Points, error) {
	return s.repomanager.Votes(s.db).SumReceivedBy(ctx, accountID)
}

// PointsSent sums the points of all votes the account has cast.
func (s *VoteService) PointsSent(ctx context.Context, accountID string) (models.Points, error) {
	return s.repomanager.Votes(s.db).SumSentBy(ctx, accountID)
}
