package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "pointshare.PointShare"

// PointShareServer is the server API of pointshare.PointShare.
type PointShareServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Login(context.Context, *LoginRequest) (*TokenResponse, error)
	Refresh(context.Context, *RefreshRequest) (*TokenResponse, error)
	Logout(context.Context, *RefreshRequest) (*Empty, error)
	ConfirmEmail(context.Context, *ConfirmEmailRequest) (*Empty, error)
	ResendConfirmation(context.Context, *Empty) (*ResendConfirmationResponse, error)
	ChangeEmail(context.Context, *ChangeEmailRequest) (*Empty, error)
	ChangePassword(context.Context, *ChangePasswordRequest) (*Empty, error)
	Vote(context.Context, *VoteRequest) (*VoteResponse, error)
	Balance(context.Context, *Empty) (*BalanceResponse, error)
	Achievements(context.Context, *Empty) (*AchievementsResponse, error)
	CreateImage(context.Context, *CreateImageRequest) (*ImageResponse, error)
	GetImage(context.Context, *ImageRequest) (*ImageResponse, error)
	ApproveImage(context.Context, *ImageRequest) (*Empty, error)
	RejectImage(context.Context, *ImageRequest) (*Empty, error)
	DeleteImage(context.Context, *ImageRequest) (*Empty, error)
	ListNotifications(context.Context, *Empty) (*NotificationsResponse, error)
	DeleteNotifications(context.Context, *DeleteNotificationsRequest) (*DeleteNotificationsResponse, error)
	SeedPoints(context.Context, *SeedPointsRequest) (*BalanceResponse, error)
	ListImages(context.Context, *ListImagesRequest) (*ListImagesResponse, error)
	Me(context.Context, *Empty) (*MeResponse, error)
	SetProfileImage(context.Context, *SetProfileImageRequest) (*Empty, error)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, call func(PointShareServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			s := srv.(PointShareServer)
			if interceptor == nil {
				return call(s, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
				return call(s, ctx, r.(*Req))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PointShareServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", PointShareServer.Register),
		unary("Login", PointShareServer.Login),
		unary("Refresh", PointShareServer.Refresh),
		unary("Logout", PointShareServer.Logout),
		unary("ConfirmEmail", PointShareServer.ConfirmEmail),
		unary("ResendConfirmation", PointShareServer.ResendConfirmation),
		unary("ChangeEmail", PointShareServer.ChangeEmail),
		unary("ChangePassword", PointShareServer.ChangePassword),
		unary("Vote", PointShareServer.Vote),
		unary("Balance", PointShareServer.Balance),
		unary("Achievements", PointShareServer.Achievements),
		unary("CreateImage", PointShareServer.CreateImage),
		unary("GetImage", PointShareServer.GetImage),
		unary("ApproveImage", PointShareServer.ApproveImage),
		unary("RejectImage", PointShareServer.RejectImage),
		unary("DeleteImage", PointShareServer.DeleteImage),
		unary("ListNotifications", PointShareServer.ListNotifications),
		unary("DeleteNotifications", PointShareServer.DeleteNotifications),
		unary("SeedPoints", PointShareServer.SeedPoints),
		unary("ListImages", PointShareServer.ListImages),
		unary("Me", PointShareServer.Me),
		unary("SetProfileImage", PointShareServer.SetProfileImage),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pointshare.json",
}

// RegisterPointShareServer attaches srv to s.
func RegisterPointShareServer(s grpc.ServiceRegistrar, srv PointShareServer) {
	s.RegisterService(&serviceDesc, srv)
}
