// Package common defines shared constants and sentinel errors used across
// the server layers of PointShare. Callers should use errors.Is to match
// these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Credential lifecycle errors.
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialExpired  = errors.New("credential expired")
	ErrAlreadyConfirmed   = errors.New("account already confirmed")
	ErrNotConfirmed       = errors.New("account not confirmed")
	ErrRateLimited        = errors.New("rate limited")

	// Ledger and voting errors.
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicateVote     = errors.New("already voted")
	ErrVoteTooLow        = errors.New("vote points too low")
	ErrVoteTooHigh       = errors.New("vote points too high")
	ErrSelfVote          = errors.New("can not vote for own image")

	// Moderation errors.
	ErrImageNotFound    = errors.New("image not found")
	ErrAlreadyApproved  = errors.New("image already approved")
	ErrFilterNotAllowed = errors.New("image filter not allowed")
)

// RateLimitedError reports that a new confirmation token was requested too
// soon. It matches ErrRateLimited under errors.Is.
type RateLimitedError struct {
	SecondsRemaining int64
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %d seconds left", e.SecondsRemaining)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
