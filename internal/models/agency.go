package models

import (
	"time"

	"github.com/google/uuid"
)

// AgencyTier is the agency subscription level
type AgencyTier string

const (
	AgencyTierFree AgencyTier = "FREE"
	AgencyTierPro  AgencyTier = "PRO"
)

// AgencyProfile is the tour operator account behind one user
type AgencyProfile struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	UserID        uuid.UUID  `json:"user_id" db:"user_id"`
	Name          string     `json:"name" db:"name"`
	Tier          AgencyTier `json:"tier" db:"tier"`
	TierExpiresAt *time.Time `json:"tier_expires_at,omitempty" db:"tier_expires_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// HasProBadge reports whether the agency shows the PRO trust badge at now.
// PRO is always time-bounded; a PRO row without expiry shows no badge.
func HasProBadge(tier AgencyTier, expiresAt *time.Time, now time.Time) bool {
	return tier == AgencyTierPro && expiresAt != nil && expiresAt.After(now)
}

// HasProBadge reports whether the agency shows the PRO trust badge at now
func (a *AgencyProfile) HasProBadge(now time.Time) bool {
	return HasProBadge(a.Tier, a.TierExpiresAt, now)
}
