package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/pointshare/internal/common"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
	"github.com/dmitrijs2005/pointshare/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type AccountService interface {
	Register(ctx context.Context, userName, email, password string) (*models.Account, error)
	Login(ctx context.Context, userName, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	ConfirmEmail(ctx context.Context, token string) error
	ResendConfirmation(ctx context.Context, userName string) (time.Duration, error)
	ChangeEmail(ctx context.Context, userName, newEmail string) error
	ChangePassword(ctx context.Context, userName, oldPassword, newPassword, confirmPassword string) error
	Balance(ctx context.Context, userName string) (models.Points, error)
	Achievements(ctx context.Context, userName string) (*models.Achievements, error)
	SeedPoints(ctx context.Context, adminUserName, targetUserName string, amount float64) (models.Points, error)
	Me(ctx context.Context, userName string) (*models.Account, error)
	SetProfileImage(ctx context.Context, userName string, data []byte) error
}

type VoteService interface {
	Vote(ctx context.Context, imageID string, rawPoints float64, voterUserName string) (*models.Vote, error)
}

type ImageService interface {
	CreateImage(ctx context.Context, publisherUserName, title, description string, data []byte) (*models.Image, error)
	GetImage(ctx context.Context, imageID, principalUserName string) (*models.Image, error)
	Approve(ctx context.Context, imageID, moderatorUserName string) error
	Reject(ctx context.Context, imageID, moderatorUserName string) error
	Delete(ctx context.Context, imageID, requesterUserName string) error
	ListImages(ctx context.Context, req services.GalleryRequest, principalUserName string) (*models.ImagePage, error)
}

type NotificationService interface {
	List(ctx context.Context, userName string) ([]*models.Notification, error)
	Delete(ctx context.Context, userName string, ids []int64) (int, error)
}

// ImageLinker resolves a fetchable URL for stored image bytes.
type ImageLinker interface {
	URL(ctx context.Context, key, namespace string) (string, error)
}

func principalName(ctx context.Context) (string, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok || p.UserName == "" {
		return "", status.Error(codes.Unauthenticated, "missing token")
	}
	return p.UserName, nil
}

func tokenResponse(p *services.TokenPair) *TokenResponse {
	return &TokenResponse{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, Rotated: p.Rotated}
}

func (s *GRPCServer) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	a, err := s.accounts.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &RegisterResponse{ID: a.ID, Username: a.UserName}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *LoginRequest) (*TokenResponse, error) {
	pair, err := s.accounts.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			return nil, status.Error(codes.Unauthenticated, "invalid credentials")
		}
		return nil, s.toStatus(ctx, err)
	}
	return tokenResponse(pair), nil
}

func (s *GRPCServer) Refresh(ctx context.Context, req *RefreshRequest) (*TokenResponse, error) {
	pair, err := s.accounts.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return tokenResponse(pair), nil
}

func (s *GRPCServer) Logout(ctx context.Context, req *RefreshRequest) (*Empty, error) {
	if err := s.accounts.Logout(ctx, req.RefreshToken); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) ConfirmEmail(ctx context.Context, req *ConfirmEmailRequest) (*Empty, error) {
	if err := s.accounts.ConfirmEmail(ctx, req.Token); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) ResendConfirmation(ctx context.Context, _ *Empty) (*ResendConfirmationResponse, error) {
	name, err := principalName(ctx)
	if err != nil {
		return nil, err
	}
	delay, err := s.accounts.ResendConfirmation(ctx, name)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ResendConfirmationResponse{RetryAfterSeconds: int64(delay / time.Second)}, nil
}

func (s *GRPCServer) ChangeEmail(ctx context.Context, req *ChangeEmailRequest) (*Empty, error) {
	name, err := principalName(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.ChangeEmail(ctx, name, req.Email); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) ChangePassword(ctx context.Context, req *ChangePasswordRequest) (*Empty, error) {
	name, err := principalName(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.ChangePassword(ctx, name, req.OldPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) Vote(ctx context.Context, req *VoteRequest) (*VoteResponse, error) {
	name, err := principalName(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.votes.Vote(ctx, req.ImageID, req.Points, name)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &VoteResponse{VoteID: v.ID, Points: v.Points.Float64()}, nil
}

func (s *GRPCServer) Balance(ctx context.Context, _ *Empty) (*BalanceResponse, error) {
	name, err := principalName(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.accounts.Balance(ctx, name)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &BalanceResponse{Points: p.Float64()}, nil
}

func (s *GRPCServer) Achievements(ctx context.Context, _ *Empty) (*AchievementsResponse, error) {
	name, err := principalName(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.accounts.Achievements(ctx, name)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &AchievementsResponse{
		ImagesPublished: a.ImagesPublished,
		PointsReceived:  a.PointsReceived.Float64(),
		PointsSent:      a.PointsSent.Float64(),
	}, nil
}

func (s *GRPCServer) CreateImage(ctx context.Context, req *CreateImageRequest) (*ImageResponse, error) {
	name, err := principalName(ctx)
	if err != nil {
		return nil, err
	}
	img, err := s.images.CreateImage(ctx, name, req.Title, req.Description, req.Data)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.imageResponse(ctx, img), nil
}

// GetImage is served to anonymous callers too; a token, when present, has
// already been verified by the interceptor.
func (s *GRPCServer) GetImage(ctx context.Context, req *ImageRequest) (*ImageResponse, error) {
	var name string
	if p, ok := PrincipalFrom(ctx); ok {
		name = p.UserName
	}
	img, err := s.images.GetImage(ctx, req.ImageID, name)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.imageResponse(ctx, img), nil
}

func (s *GRPCServer) ApproveImage(ctx context.Context, req *ImageRequest) (*Empty, error) {
	name, err := principalName(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.images.Approve(ctx, req.ImageID, name); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) RejectImage(ctx context.Context, req *ImageRequest) (*Empty, error) {
	name, err := principalName(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.images.Reject(ctx, req.ImageID, name); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) DeleteImage(ctx context.Context, req *ImageRequest) (*Empty, error) {
	name, err := principalName(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.images.Delete(ctx, req.ImageID, name); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) ListNotifications(ctx context.Context, _ *Empty) (*NotificationsResponse, error) {
	name, err := principalName(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.notifications.List(ctx, name)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	if list == nil {
		list = []*models.Notification{}
	}
	return &NotificationsResponse{Notifications: list}, nil
}

func (s *GRPCServer) DeleteNotifications(ctx context.Context, req *DeleteNotificationsRequest) (*DeleteNotificationsResponse, error) {
	name, err := principalName(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.notifications.Delete(ctx, name, req.IDs)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &DeleteNotificationsResponse{Deleted: n}, nil
}

func (s *GRPCServer) SeedPoints(ctx context.Context, req *SeedPointsRequest) (*BalanceResponse, error) {
	name, err := principalName(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.accounts.SeedPoints(ctx, name, req.Username, req.Amount)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &BalanceResponse{Points: p.Float64()}, nil
}

// ListImages is served to anonymous callers too.
func (s *GRPCServer) ListImages(ctx context.Context, req *ListImagesRequest) (*ListImagesResponse, error) {
	var name string
	if p, ok := PrincipalFrom(ctx); ok {
		name = p.UserName
	}
	page, err := s.images.ListImages(ctx, services.GalleryRequest{
		Page:              req.Page,
		Size:              req.Size,
		Publish:           models.PublishFilter(req.PublishFilter),
		Order:             models.OrderFilter(req.OrderFilter),
		PublisherUserName: req.Publisher,
	}, name)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	resp := &ListImagesResponse{Images: make([]*ImageResponse, 0, len(page.Images)), TotalCount: page.TotalCount}
	for _, g := range page.Images {
		img := s.imageResponse(ctx, &g.Image)
		img.PublisherUsername = g.PublisherUserName
		img.Points = g.Points.Float64()
		resp.Images = append(resp.Images, img)
	}
	return resp, nil
}

func (s *GRPCServer) Me(ctx context.Context, _ *Empty) (*MeResponse, error) {
	name, err := principalName(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.accounts.Me(ctx, name)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &MeResponse{Username: a.UserName, Email: a.Email, Authorities: models.Authorities(a.Roles)}, nil
}

func (s *GRPCServer) SetProfileImage(ctx context.Context, req *SetProfileImageRequest) (*Empty, error) {
	name, err := principalName(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.accounts.SetProfileImage(ctx, name, req.Data); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) imageResponse(ctx context.Context, img *models.Image) *ImageResponse {
	resp := &ImageResponse{
		ID:          img.ID,
		Title:       img.Title,
		Description: img.Description,
		PublisherID: img.PublisherID,
		PublishedOn: img.PublishedOn,
		Approved:    img.IsApproved(s.now()),
		ApprovedBy:  img.ApprovedBy,
		ApprovedOn:  img.ApprovedOn,
	}
	if s.links != nil {
		url, err := s.links.URL(ctx, img.ImageKey, common.StorageNamespaceImages)
		if err != nil {
			s.logger.Warn(ctx, "image url unavailable", "image_id", img.ID, "error", err)
		} else {
			resp.URL = url
		}
	}
	return resp
}
