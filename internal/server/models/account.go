// Package models defines server-side data models persisted in the database.
package models

import (
	"slices"
	"strings"
	"time"
)

// RoleGrant is one of the fixed role levels an account can hold.
type RoleGrant string

const (
	RoleUnconfirmed RoleGrant = "UNCONFIRMED"
	RoleMember      RoleGrant = "MEMBER"
	RoleModerator   RoleGrant = "MODERATOR"
	RoleAdmin       RoleGrant = "ADMIN"
)

// Capability tags carried in access tokens.
const (
	AuthorityUnconfirmed    = "ROLE_UNCONFIRMED"
	AuthorityMember         = "ROLE_MEMBER"
	AuthorityModerator      = "ROLE_MODERATOR"
	AuthorityAdmin          = "ROLE_ADMIN"
	AuthorityConfirmRequest = "confirmation:request"
	AuthorityImagePublish   = "image:publish"
	AuthorityImageVote      = "image:vote"
	AuthorityImageModerate  = "image:moderate"
	AuthorityPointsSeed     = "points:seed"
)

var roleAuthorities = map[RoleGrant][]string{
	RoleUnconfirmed: {AuthorityUnconfirmed, AuthorityConfirmRequest},
	RoleMember:      {AuthorityMember, AuthorityImagePublish, AuthorityImageVote},
	RoleModerator:   {AuthorityModerator, AuthorityImageModerate},
	RoleAdmin:       {AuthorityAdmin, AuthorityImageModerate, AuthorityPointsSeed},
}

// Authorities returns the sorted union of capability tags for roles.
// Unknown roles contribute nothing.
func Authorities(roles []RoleGrant) []string {
	set := make(map[string]struct{})
	for _, r := range roles {
		for _, a := range roleAuthorities[r] {
			set[a] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// JoinRoles encodes roles for the accounts.roles column.
func JoinRoles(roles []RoleGrant) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

// ParseRoles decodes the accounts.roles column.
func ParseRoles(s string) []RoleGrant {
	var roles []RoleGrant
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		roles = append(roles, RoleGrant(p))
	}
	return roles
}

type Account struct {
	ID           string
	UserName     string
	Email        string
	PasswordHash string
	Roles        []RoleGrant
	CreatedAt    time.Time
}

func (a *Account) HasRole(role RoleGrant) bool {
	return slices.Contains(a.Roles, role)
}

// IsConfirmed reports whether the account no longer holds the UNCONFIRMED grant.
func (a *Account) IsConfirmed() bool {
	return !a.HasRole(RoleUnconfirmed)
}

func (a *Account) IsModeratorOrAdmin() bool {
	return a.HasRole(RoleModerator) || a.HasRole(RoleAdmin)
}

// ReplaceRole swaps from for to, keeping the other grants. If from is not
// held, to is added unless already present.
func (a *Account) ReplaceRole(from, to RoleGrant) {
	out := make([]RoleGrant, 0, len(a.Roles)+1)
	for _, r := range a.Roles {
		if r == from || r == to {
			continue
		}
		out = append(out, r)
	}
	a.Roles = append(out, to)
}
