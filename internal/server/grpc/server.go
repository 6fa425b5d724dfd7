// Package grpc exposes the PointShare services over gRPC with a JSON codec.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/pointshare/internal/logging"
	"github.com/dmitrijs2005/pointshare/internal/server/config"
	"github.com/dmitrijs2005/pointshare/internal/server/metrics"
	"google.golang.org/grpc"
)

// Services groups the application services the handlers call.
type Services struct {
	Accounts      AccountService
	Votes         VoteService
	Images        ImageService
	Notifications NotificationService
	// Links is optional; without it image responses carry no URL.
	Links ImageLinker
}

type GRPCServer struct {
	address       string
	accounts      AccountService
	votes         VoteService
	images        ImageService
	notifications NotificationService
	links         ImageLinker
	limiter       *rateLimiter
	metrics       *metrics.Metrics
	logger        logging.Logger
	jwtSecret     []byte
	now           func() time.Time
}

func NewGRPCServer(cfg *config.Config, l logging.Logger, mt *metrics.Metrics, svc Services) *GRPCServer {
	return &GRPCServer{
		address:       cfg.EndpointAddrGRPC,
		accounts:      svc.Accounts,
		votes:         svc.Votes,
		images:        svc.Images,
		notifications: svc.Notifications,
		links:         svc.Links,
		limiter:       newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		metrics:       mt,
		logger:        l.With("module", "grpc_server"),
		jwtSecret:     []byte(cfg.SecretKey),
		now:           time.Now,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		s.metricsInterceptor,
		s.accessTokenInterceptor,
		s.rateLimitInterceptor,
	))
	RegisterPointShareServer(srv, s)
	return srv
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}
