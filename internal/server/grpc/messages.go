package grpc

import (
	"time"

	"github.com/dmitrijs2005/pointshare/internal/server/models"
)

type Empty struct{}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Rotated      bool   `json:"rotated"`
}

type ConfirmEmailRequest struct {
	Token string `json:"token"`
}

type ResendConfirmationResponse struct {
	RetryAfterSeconds int64 `json:"retry_after_seconds"`
}

type ChangeEmailRequest struct {
	Email string `json:"email"`
}

type ChangePasswordRequest struct {
	OldPassword     string `json:"old_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type VoteRequest struct {
	ImageID string  `json:"image_id"`
	Points  float64 `json:"points"`
}

type VoteResponse struct {
	VoteID int64   `json:"vote_id"`
	Points float64 `json:"points"`
}

type BalanceResponse struct {
	Points float64 `json:"points"`
}

type AchievementsResponse struct {
	ImagesPublished int64   `json:"images_published"`
	PointsReceived  float64 `json:"points_received"`
	PointsSent      float64 `json:"points_sent"`
}

type CreateImageRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Data        []byte `json:"data"`
}

type ImageRequest struct {
	ImageID string `json:"image_id"`
}

type ImageResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	PublisherID string     `json:"publisher_id"`
	PublishedOn time.Time  `json:"published_on"`
	Approved    bool       `json:"approved"`
	ApprovedBy  *string    `json:"approved_by,omitempty"`
	ApprovedOn  *time.Time `json:"approved_on,omitempty"`
	URL         string     `json:"url,omitempty"`

	// set on gallery listings only
	PublisherUsername string  `json:"publisher_username,omitempty"`
	Points            float64 `json:"points,omitempty"`
}

// ListImagesRequest selects a gallery page. Empty fields take the defaults:
// page 0, size 4, APPROVED, NEWEST, all publishers.
type ListImagesRequest struct {
	Page          int    `json:"page"`
	Size          int    `json:"size"`
	PublishFilter string `json:"publish_filter,omitempty"`
	OrderFilter   string `json:"order_filter,omitempty"`
	Publisher     string `json:"publisher,omitempty"`
}

type ListImagesResponse struct {
	Images     []*ImageResponse `json:"images"`
	TotalCount int64            `json:"total_count"`
}

type MeResponse struct {
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Authorities []string `json:"authorities"`
}

type SetProfileImageRequest struct {
	Data []byte `json:"data"`
}

type NotificationsResponse struct {
	Notifications []*models.Notification `json:"notifications"`
}

type DeleteNotificationsRequest struct {
	IDs []int64 `json:"ids"`
}

type DeleteNotificationsResponse struct {
	Deleted int `json:"deleted"`
}

type SeedPointsRequest struct {
	Username string  `json:"username"`
	Amount   float64 `json:"amount"`
}
