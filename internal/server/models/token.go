package models

import "time"

// RefreshToken is the persisted form of a refresh token. Only the hash of
// the secret is stored.
type RefreshToken struct {
	ID          int64
	AccountID   string
	HashedToken string
	CreatedAt   time.Time
	TTL         time.Duration
}

func (t *RefreshToken) ExpiresAt() time.Time {
	return t.CreatedAt.Add(t.TTL)
}

// IsExpired reports now >= createdAt + ttl.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt())
}

// IsHalfwayExpired reports now >= createdAt + ttl/2 for a token that has not expired yet.
func (t *RefreshToken) IsHalfwayExpired(now time.Time) bool {
	return !now.Before(t.CreatedAt.Add(t.TTL/2)) && !t.IsExpired(now)
}

// EmailConfirmationToken proves control of OriginEmail, the address the
// account had when the token was issued.
type EmailConfirmationToken struct {
	ID          int64
	AccountID   string
	HashedToken string
	OriginEmail string
	CreatedAt   time.Time
	TTL         time.Duration
}

// IsExpired reports whether the TTL has elapsed or the account email has
// changed since issuance.
func (t *EmailConfirmationToken) IsExpired(now time.Time, currentEmail string) bool {
	if !now.Before(t.CreatedAt.Add(t.TTL)) {
		return true
	}
	return t.OriginEmail != currentEmail
}
