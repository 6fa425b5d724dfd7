package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/pointshare/internal/common"
	"github.com/dmitrijs2005/pointshare/internal/logging"
	"github.com/dmitrijs2005/pointshare/internal/server/metrics"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
	"github.com/dmitrijs2005/pointshare/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// ImageService publishes images and runs the moderation state machine:
// PENDING -> APPROVED, PENDING -> REJECTED (deleted), and any -> DELETED.
// Notifications to the publisher are best-effort and never undo a transition.
type ImageService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	storage       ObjectStorage
	notifications *NotificationService
	metrics       *metrics.Metrics
	log           logging.Logger
	now           func() time.Time
	newID         func() string
}

func NewImageService(db *sql.DB, m repomanager.RepositoryManager, storage ObjectStorage, notifications *NotificationService, mt *metrics.Metrics, log logging.Logger) *ImageService {
	return &ImageService{
		db:            db,
		repomanager:   m,
		storage:       storage,
		notifications: notifications,
		metrics:       mt,
		log:           log.With("module", "images"),
		now:           time.Now,
		newID:         func() string { return uuid.NewString() },
	}
}

// GetImage returns the image if principalUserName may see it. An empty
// principal is anonymous and only sees approved images.
func (s *ImageService) GetImage(ctx context.Context, imageID, principalUserName string) (*models.Image, error) {
	var principal *models.Account
	if principalUserName != "" {
		p, err := s.account(ctx, principalUserName)
		if err != nil {
			return nil, err
		}
		principal = p
	}
	return s.visibleImage(ctx, imageID, principal)
}

func (s *ImageService) visibleImage(ctx context.Context, imageID string, principal *models.Account) (*models.Image, error) {
	image, err := s.repomanager.Images(s.db).GetByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrImageNotFound
		}
		return nil, err
	}
	if !image.VisibleTo(principal, s.now()) {
		return nil, common.ErrImageNotFound
	}
	return image, nil
}

const (
	defaultGalleryPageSize = 4
	maxGalleryPageSize     = 100
	maxGalleryPage         = 1 << 20
)

// GalleryRequest selects one gallery page. Zero values mean page 0 of size 4,
// approved images only, newest first, from every publisher.
type GalleryRequest struct {
	Page              int
	Size              int
	Publish           models.PublishFilter
	Order             models.OrderFilter
	PublisherUserName string
}

// ListImages returns a gallery page as seen by principalUserName. Pending
// images are listed only for their publisher or a moderator/admin; an unknown
// or empty principal browses anonymously. Vote-based orderings apply to
// approved images only, and TOP_VOTED orderings cannot be narrowed to one
// publisher.
func (s *ImageService) ListImages(ctx context.Context, req GalleryRequest, principalUserName string) (*models.ImagePage, error) {
	if req.Size == 0 {
		req.Size = defaultGalleryPageSize
	}
	if req.Publish == "" {
		req.Publish = models.PublishApproved
	}
	if req.Order == "" {
		req.Order = models.OrderNewest
	}
	if req.Page < 0 || req.Page > maxGalleryPage || req.Size < 0 || req.Size > maxGalleryPageSize {
		return nil, fmt.Errorf("page %d of size %d is out of range: %w", req.Page, req.Size, common.ErrorValidation)
	}

	var principal *models.Account
	if principalUserName != "" {
		p, err := s.account(ctx, principalUserName)
		if err != nil && !errors.Is(err, common.ErrAccountNotFound) {
			return nil, err
		}
		principal = p
	}
	privileged := principal != nil &&
		(principal.IsModeratorOrAdmin() || principal.UserName == req.PublisherUserName)

	switch req.Publish {
	case models.PublishApproved:
	case models.PublishPending, models.PublishAll:
		if !privileged || req.Order.VoteBased() {
			return nil, common.ErrFilterNotAllowed
		}
	default:
		return nil, common.ErrFilterNotAllowed
	}

	now := s.now()
	q := models.ImageQuery{
		PublisherUserName: req.PublisherUserName,
		Publish:           req.Publish,
		Order:             req.Order,
		Now:               now,
		Limit:             req.Size,
		Offset:            req.Page * req.Size,
	}
	switch req.Order {
	case models.OrderNewest, models.OrderOldest, models.OrderLatestVoted, models.OrderMostVoted:
	case models.OrderTopVotedLast3Days, models.OrderTopVotedLastWeek, models.OrderTopVotedLastMonth:
		if req.PublisherUserName != "" {
			return nil, common.ErrFilterNotAllowed
		}
		q.VotesSince = now.Add(-req.Order.Window())
	default:
		return nil, common.ErrFilterNotAllowed
	}

	images, total, err := s.repomanager.Images(s.db).List(ctx, q)
	if err != nil {
		return nil, err
	}
	if !privileged {
		for _, img := range images {
			img.ApprovedBy = nil
		}
	}
	return &models.ImagePage{Images: images, TotalCount: total}, nil
}

// CreateImage uploads the bytes and stores a PENDING image.
func (s *ImageService) CreateImage(ctx context.Context, publisherUserName, title, description string, data []byte) (*models.Image, error) {
	publisher, err := s.confirmedAccount(ctx, publisherUserName)
	if err != nil {
		return nil, err
	}
	if err := validateImageText(title, description); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image bytes are empty: %w", common.ErrorValidation)
	}

	id := s.newID()
	key := id + ".png"
	if err := s.storage.Put(ctx, data, key, common.StorageNamespaceImages); err != nil {
		return nil, fmt.Errorf("storing image bytes: %w", err)
	}

	image, err := s.repomanager.Images(s.db).Create(ctx, &models.Image{
		ID:          id,
		Title:       title,
		Description: description,
		ImageKey:    key,
		PublisherID: publisher.ID,
		PublishedOn: s.now(),
	})
	if err != nil {
		s.removeBytes(ctx, key)
		return nil, err
	}
	s.log.Info(ctx, "image published", "image_id", id, "publisher", publisherUserName)
	return image, nil
}

// Approve makes a pending image public and tells the publisher.
func (s *ImageService) Approve(ctx context.Context, imageID, moderatorUserName string) error {
	moderator, err := s.moderator(ctx, moderatorUserName)
	if err != nil {
		return err
	}
	image, err := s.visibleImage(ctx, imageID, moderator)
	if err != nil {
		return err
	}
	now := s.now()
	if image.IsApproved(now) {
		return common.ErrAlreadyApproved
	}

	changed, err := s.repomanager.Images(s.db).Approve(ctx, image.ID, moderator.ID, now)
	if err != nil {
		return err
	}
	if !changed {
		// lost a race with another approval or a delete
		if _, err := s.repomanager.Images(s.db).GetByID(ctx, image.ID); errors.Is(err, common.ErrorNotFound) {
			return common.ErrImageNotFound
		}
		return common.ErrAlreadyApproved
	}
	s.metrics.Moderation("approve")

	s.notifyPublisher(ctx, image.PublisherID, "Image is public!",
		fmt.Sprintf("Your image %q was approved by %s", image.Title, moderator.UserName),
		models.NotificationSuccess)
	return nil
}

// Reject deletes a pending image and tells the publisher.
func (s *ImageService) Reject(ctx context.Context, imageID, moderatorUserName string) error {
	moderator, err := s.moderator(ctx, moderatorUserName)
	if err != nil {
		return err
	}
	image, err := s.visibleImage(ctx, imageID, moderator)
	if err != nil {
		return err
	}
	if image.IsApproved(s.now()) {
		return common.ErrAlreadyApproved
	}

	if err := s.remove(ctx, image); err != nil {
		return err
	}
	s.metrics.Moderation("reject")

	s.notifyPublisher(ctx, image.PublisherID, "Image not approved!",
		fmt.Sprintf("Your image %q was not approved by %s", image.Title, moderator.UserName),
		models.NotificationDanger)
	return nil
}

// Delete removes an image on behalf of its publisher or a moderator/admin.
// The publisher is notified only when someone else deleted the image.
func (s *ImageService) Delete(ctx context.Context, imageID, requesterUserName string) error {
	requester, err := s.confirmedAccount(ctx, requesterUserName)
	if err != nil {
		return err
	}
	image, err := s.visibleImage(ctx, imageID, requester)
	if err != nil {
		return err
	}
	if image.PublisherID != requester.ID && !requester.IsModeratorOrAdmin() {
		return common.ErrorUnauthorized
	}

	if err := s.remove(ctx, image); err != nil {
		return err
	}
	s.metrics.Moderation("delete")

	if image.PublisherID != requester.ID {
		s.notifyPublisher(ctx, image.PublisherID, "Image deleted!",
			fmt.Sprintf("Your image %q was deleted by %s", image.Title, requester.UserName),
			models.NotificationDanger)
	}
	return nil
}

// CountPublicImages counts the approved images published by userName.
func (s *ImageService) CountPublicImages(ctx context.Context, userName string) (int64, error) {
	account, err := s.account(ctx, userName)
	if err != nil {
		return 0, err
	}
	return s.repomanager.Images(s.db).CountApprovedByPublisher(ctx, account.ID, s.now())
}

// remove deletes the row first so the image disappears atomically; the
// stored bytes are then removed best-effort.
func (s *ImageService) remove(ctx context.Context, image *models.Image) error {
	if err := s.repomanager.Images(s.db).Delete(ctx, image.ID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrImageNotFound
		}
		return err
	}
	s.removeBytes(ctx, image.ImageKey)
	return nil
}

func (s *ImageService) removeBytes(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key, common.StorageNamespaceImages); err != nil {
		s.metrics.SideEffectDropped("storage_delete")
		s.log.Warn(ctx, "image bytes not removed", "key", key, "error", err)
	}
}

func (s *ImageService) notifyPublisher(ctx context.Context, publisherID, title, message string, category models.NotificationCategory) {
	publisher, err := s.repomanager.Accounts(s.db).GetByID(ctx, publisherID)
	if err == nil {
		_, err = s.notifications.Push(ctx, publisher, title, message, category)
	}
	if err != nil {
		s.metrics.SideEffectDropped("notification")
		s.log.Warn(ctx, "publisher notification dropped", "publisher_id", publisherID, "error", err)
	}
}

func (s *ImageService) account(ctx context.Context, userName string) (*models.Account, error) {
	account, err := s.repomanager.Accounts(s.db).GetByUserName(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func (s *ImageService) confirmedAccount(ctx context.Context, userName string) (*models.Account, error) {
	account, err := s.account(ctx, userName)
	if err != nil {
		return nil, err
	}
	if !account.IsConfirmed() {
		return nil, common.ErrNotConfirmed
	}
	return account, nil
}

func (s *ImageService) moderator(ctx context.Context, userName string) (*models.Account, error) {
	account, err := s.confirmedAccount(ctx, userName)
	if err != nil {
		return nil, err
	}
	if !account.IsModeratorOrAdmin() {
		return nil, common.ErrorUnauthorized
	}
	return account, nil
}
