package grpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/pointshare/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps service errors to gRPC status codes. Unknown errors are
// logged and reported as Internal without detail.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	var rl *common.RateLimitedError
	switch {
	case errors.As(err, &rl):
		return status.Error(codes.ResourceExhausted, fmt.Sprintf("retry in %d seconds", rl.SecondsRemaining))
	case errors.Is(err, common.ErrorValidation),
		errors.Is(err, common.ErrVoteTooLow),
		errors.Is(err, common.ErrVoteTooHigh),
		errors.Is(err, common.ErrSelfVote):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorAlreadyExists),
		errors.Is(err, common.ErrDuplicateVote):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, common.ErrInsufficientFunds),
		errors.Is(err, common.ErrAlreadyApproved),
		errors.Is(err, common.ErrAlreadyConfirmed):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, common.ErrAccountNotFound),
		errors.Is(err, common.ErrImageNotFound),
		errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrCredentialNotFound),
		errors.Is(err, common.ErrCredentialExpired),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrNotConfirmed),
		errors.Is(err, common.ErrFilterNotAllowed):
		return status.Error(codes.PermissionDenied, err.Error())
	default:
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}
