// Package images declares the repository contract for published images.
package images

import (
	"context"
	"time"

	"github.com/dmitrijs2005/pointshare/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, image *models.Image) (*models.Image, error)
	GetByID(ctx context.Context, id string) (*models.Image, error)
	// Approve stamps approver and approvedOn unless the image is already
	// approved as of approvedOn. It reports whether the row changed.
	Approve(ctx context.Context, id, approverID string, approvedOn time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
	CountApprovedByPublisher(ctx context.Context, publisherID string, now time.Time) (int64, error)
	// List returns one gallery page and the number of images matching q.
	List(ctx context.Context, q models.ImageQuery) ([]*models.GalleryImage, int64, error)
}
