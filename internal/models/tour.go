package models

import (
	"time"

	"github.com/google/uuid"
)

// TourStatus represents the publication state of a tour
type TourStatus string

const (
	TourStatusDraft     TourStatus = "DRAFT"
	TourStatusPublished TourStatus = "PUBLISHED"
	TourStatusPaused    TourStatus = "PAUSED"
)

// Tour is a bookable product owned by one agency
type Tour struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	AgencyID          uuid.UUID  `json:"agency_id" db:"agency_id"`
	Title             string     `json:"title" db:"title"`
	Price             float64    `json:"price" db:"price"`
	Currency          string     `json:"currency" db:"currency"`
	Status            TourStatus `json:"status" db:"status"`
	DefaultStartTime  *string    `json:"default_start_time,omitempty" db:"default_start_time"`
	FeaturedPlan      *string    `json:"featured_plan,omitempty" db:"featured_plan"`
	FeaturedExpiresAt *time.Time `json:"featured_expires_at,omitempty" db:"featured_expires_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// IsFeatured reports whether the tour holds an unexpired promotion at now
func (t *Tour) IsFeatured(now time.Time) bool {
	return t.FeaturedExpiresAt != nil && t.FeaturedExpiresAt.After(now)
}

// TourDateSlot is a specific bookable date (and optional time) for a tour.
// A nil Capacity means the slot is advisory and never fills up.
type TourDateSlot struct {
	ID        uuid.UUID `json:"id" db:"id"`
	TourID    uuid.UUID `json:"tour_id" db:"tour_id"`
	Date      time.Time `json:"date" db:"slot_date"`
	StartTime *string   `json:"start_time,omitempty" db:"start_time"`
	Capacity  *int      `json:"capacity,omitempty" db:"capacity"`
	Booked    int       `json:"booked" db:"booked"`
}

// Matches compares calendar dates only
func (s TourDateSlot) Matches(date time.Time) bool {
	return SameDay(s.Date, date)
}

// HasRoom reports whether people more travelers fit into the slot
func (s TourDateSlot) HasRoom(people int) bool {
	return s.Capacity == nil || s.Booked+people <= *s.Capacity
}

// TourListing is a tour joined with the agency fields the listing needs
type TourListing struct {
	Tour
	AgencyTier          AgencyTier `json:"agency_tier" db:"agency_tier"`
	AgencyTierExpiresAt *time.Time `json:"agency_tier_expires_at,omitempty" db:"agency_tier_expires_at"`
}

// RankedTour is one position of the public listing
type RankedTour struct {
	Tour     Tour `json:"tour"`
	Featured bool `json:"featured"`
	Priority int  `json:"priority"`
	// ProBadge is display-only; it never influences position
	ProBadge bool `json:"pro_badge"`
}

// TourListResponse is one page of the ranked listing
type TourListResponse struct {
	Tours    []RankedTour `json:"tours"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

// SameDay compares the calendar date of a and b as written, ignoring zones
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
