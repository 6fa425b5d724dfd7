// Package auth mints and verifies HS256 access tokens.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/pointshare/internal/common"
	"github.com/dmitrijs2005/pointshare/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the account identity and the authority set derived from its
// role grants at mint time.
type Claims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"uid"`
	UserName    string   `json:"usr"`
	Authorities []string `json:"auth"`
}

// HasAuthority reports whether the claims grant the capability tag.
func (c *Claims) HasAuthority(a string) bool {
	for _, x := range c.Authorities {
		if x == a {
			return true
		}
	}
	return false
}

// GenerateToken signs an access token for account valid for ttl from issuedAt.
// Authorities are recomputed from account.Roles on every call.
func GenerateToken(account *models.Account, secretKey []byte, issuedAt time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.UserName,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
		UserID:      account.ID,
		UserName:    account.UserName,
		Authorities: models.Authorities(account.Roles),
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// ParseToken verifies the signature and expiry. Expired tokens yield
// common.ErrTokenExpired, everything else common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
