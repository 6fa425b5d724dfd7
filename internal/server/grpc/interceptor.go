package grpc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/pointshare/internal/common"
	"github.com/dmitrijs2005/pointshare/internal/server/auth"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type ctxKey string

const principalKey ctxKey = "principal"

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID      string
	UserName    string
	Authorities []string
}

func (p *Principal) Has(authority string) bool {
	for _, a := range p.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

func withPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the caller placed in ctx by the access-token interceptor.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}

var publicMethods = map[string]bool{
	fullMethod("Register"):     true,
	fullMethod("Login"):        true,
	fullMethod("Refresh"):      true,
	fullMethod("ConfirmEmail"): true,
}

// optionalAuthMethods accept anonymous callers but verify a token when one is sent.
var optionalAuthMethods = map[string]bool{
	fullMethod("GetImage"):   true,
	fullMethod("ListImages"): true,
}

// requiredAuthority lists the capability a token must carry for a method.
// Services re-check against live role grants.
var requiredAuthority = map[string]string{
	fullMethod("ResendConfirmation"): models.AuthorityConfirmRequest,
	fullMethod("Vote"):               models.AuthorityImageVote,
	fullMethod("CreateImage"):        models.AuthorityImagePublish,
	fullMethod("ApproveImage"):       models.AuthorityImageModerate,
	fullMethod("RejectImage"):        models.AuthorityImageModerate,
	fullMethod("SeedPoints"):         models.AuthorityPointsSeed,
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if publicMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
			accessToken = values[0]
		}
	}
	if accessToken == "" {
		if optionalAuthMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	claims, err := auth.ParseToken(accessToken, s.jwtSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, "token expired")
		}
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	p := &Principal{UserID: claims.UserID, UserName: claims.Subject, Authorities: claims.Authorities}
	if need, ok := requiredAuthority[info.FullMethod]; ok && !p.Has(need) {
		return nil, status.Error(codes.PermissionDenied, "missing authority "+need)
	}

	return handler(withPrincipal(ctx, p), req)
}

func (s *GRPCServer) metricsInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.metrics.ObserveRPC(info.FullMethod, status.Code(err).String(), time.Since(start))
	return resp, err
}

func (s *GRPCServer) rateLimitInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if s.limiter == nil {
		return handler(ctx, req)
	}
	if !s.limiter.allow(callerKey(ctx)) {
		return nil, status.Error(codes.ResourceExhausted, "too many requests")
	}
	return handler(ctx, req)
}

// callerKey identifies the caller by username, falling back to the peer address.
func callerKey(ctx context.Context) string {
	if p, ok := PrincipalFrom(ctx); ok {
		return "user:" + p.UserName
	}
	if pr, ok := peer.FromContext(ctx); ok && pr.Addr != nil {
		return "addr:" + pr.Addr.String()
	}
	return "anonymous"
}

const maxLimiters = 10000

type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// newRateLimiter returns nil when rps is not positive, disabling the limit.
func newRateLimiter(rps float64, burst int) *rateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{limiters: make(map[string]*rate.Limiter), rate: rate.Limit(rps), burst: burst}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	l, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= maxLimiters {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}
