package votes

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/pointshare/internal/common"
	"github.com/dmitrijs2005/pointshare/internal/dbx"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
)

// VoterImageConstraint is the unique constraint guarding one vote per voter and image.
const VoterImageConstraint = "votes_voter_image_key"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, vote *models.Vote) (*models.Vote, error) {
	query := `
		INSERT INTO votes (voter_id, image_id, points, submitted_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query, vote.VoterID, vote.ImageID, int64(vote.Points), vote.SubmittedAt).Scan(&vote.ID)
	if err != nil {
		if dbx.IsUniqueViolation(err, VoterImageConstraint) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("error performing sql request: %v", err)
	}
	return vote, nil
}

func (r *PostgresRepository) ExistsByVoterAndImage(ctx context.Context, voterID, imageID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM votes WHERE voter_id = $1 AND image_id = $2)`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, voterID, imageID).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) SumReceivedBy(ctx context.Context, accountID string) (models.Points, error) {
	query := `
		SELECT COALESCE(SUM(v.points), 0)
		FROM votes v
		JOIN images i ON i.id = v.image_id
		WHERE i.publisher_id = $1
	`
	return r.sum(ctx, query, accountID)
}

func (r *PostgresRepository) SumSentBy(ctx context.Context, accountID string) (models.Points, error) {
	query := `SELECT COALESCE(SUM(points), 0) FROM votes WHERE voter_id = $1`
	return r.sum(ctx, query, accountID)
}

func (r *PostgresRepository) sum(ctx context.Context, query, accountID string) (models.Points, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&total); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return models.Points(total), nil
}
