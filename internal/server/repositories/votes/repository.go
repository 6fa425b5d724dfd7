// Package votes declares the repository contract for immutable vote records.
package votes

import (
	"context"

	"github.com/dmitrijs2005/pointshare/internal/server/models"
)

type Repository interface {
	// Create inserts the vote. A second vote by the same voter on the same
	// image yields common.ErrorAlreadyExists.
	Create(ctx context.Context, vote *models.Vote) (*models.Vote, error)
	ExistsByVoterAndImage(ctx context.Context, voterID, imageID string) (bool, error)
	SumReceivedBy(ctx context.Context, accountID string) (models.Points, error)
	SumSentBy(ctx context.Context, accountID string) (models.Points, error)
}
