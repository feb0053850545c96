package models

import (
	"strings"

	"github.com/google/uuid"
)

// Role is the capability an authenticated identity carries
type Role string

const (
	RoleUser   Role = "USER"
	RoleAgency Role = "AGENCY"
	RoleAdmin  Role = "ADMIN"
)

// ParseRole normalizes a role claim; unknown roles are rejected
func ParseRole(raw string) (Role, bool) {
	switch role := Role(strings.ToUpper(strings.TrimSpace(raw))); role {
	case RoleUser, RoleAgency, RoleAdmin:
		return role, true
	default:
		return "", false
	}
}

// Actor is the identity supplied by the identity provider for one operation.
// It is trusted verbatim.
type Actor struct {
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// HasRole reports whether the actor holds any of roles
func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
