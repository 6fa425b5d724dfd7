package models

import "time"

type Image struct {
	ID          string
	Title       string
	Description string
	ImageKey    string
	PublisherID string
	PublishedOn time.Time
	ApprovedBy  *string
	ApprovedOn  *time.Time
}

// IsApproved reports whether an approval timestamp is set and lies before now.
// Future-dated approvals read as pending.
func (i *Image) IsApproved(now time.Time) bool {
	return i.ApprovedOn != nil && i.ApprovedOn.Before(now)
}

// VisibleTo reports whether viewer may see the image. A nil viewer is anonymous.
func (i *Image) VisibleTo(viewer *Account, now time.Time) bool {
	if i.IsApproved(now) {
		return true
	}
	if viewer == nil {
		return false
	}
	return viewer.ID == i.PublisherID || viewer.IsModeratorOrAdmin()
}

// PublishFilter selects images by moderation state.
type PublishFilter string

const (
	PublishApproved PublishFilter = "APPROVED"
	PublishPending  PublishFilter = "PENDING"
	PublishAll      PublishFilter = "ALL"
)

// OrderFilter selects the gallery ordering.
type OrderFilter string

const (
	OrderNewest            OrderFilter = "NEWEST"
	OrderOldest            OrderFilter = "OLDEST"
	OrderLatestVoted       OrderFilter = "LATEST_VOTED"
	OrderMostVoted         OrderFilter = "MOST_VOTED"
	OrderTopVotedLast3Days OrderFilter = "TOP_VOTED_LAST_3_DAYS"
	OrderTopVotedLastWeek  OrderFilter = "TOP_VOTED_LAST_WEEK"
	OrderTopVotedLastMonth OrderFilter = "TOP_VOTED_LAST_MONTH"
)

// VoteBased reports whether the ordering needs the votes of each image.
func (o OrderFilter) VoteBased() bool {
	return o != OrderNewest && o != OrderOldest
}

// Window returns the vote window of a TOP_VOTED ordering, or zero.
func (o OrderFilter) Window() time.Duration {
	switch o {
	case OrderTopVotedLast3Days:
		return 3 * 24 * time.Hour
	case OrderTopVotedLastWeek:
		return 7 * 24 * time.Hour
	case OrderTopVotedLastMonth:
		return 30 * 24 * time.Hour
	}
	return 0
}

// ImageQuery is one gallery page request as understood by the repository.
// VotesSince is set only for TOP_VOTED orderings.
type ImageQuery struct {
	PublisherUserName string
	Publish           PublishFilter
	Order             OrderFilter
	Now               time.Time
	VotesSince        time.Time
	Limit             int
	Offset            int
}

// GalleryImage is an image listed with its publisher and the points it has received.
type GalleryImage struct {
	Image
	PublisherUserName string
	Points            Points
}

type ImagePage struct {
	Images     []*GalleryImage
	TotalCount int64
}
