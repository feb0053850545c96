package services

import (
	"sort"
	"strings"
	"time"

	"github.com/tourlink/marketplace-backend/internal/models"
)

// promotionPriority ranks featured plans; unknown plans rank lowest
var promotionPriority = map[string]int{
	"premium_1m": 3,
	"medium_2w":  2,
	"basic_1w":   1,
}

// PromotionPriority returns the listing weight of a featured plan slug.
// Both "ad_premium_1m" and "premium_1m" spellings are accepted.
func PromotionPriority(planSlug string) int {
	return promotionPriority[strings.TrimPrefix(planSlug, "ad_")]
}

// Rank orders tours for the public listing: tours with an unexpired
// promotion first (by plan priority, then newest), then the rest (newest
// first). ID breaks every remaining tie. Agency tier only sets ProBadge.
// The input slice is never modified.
func Rank(listings []models.TourListing, now time.Time) []models.RankedTour {
	featured := make([]models.RankedTour, 0)
	regular := make([]models.RankedTour, 0, len(listings))

	for _, listing := range listings {
		ranked := models.RankedTour{
			Tour:     listing.Tour,
			ProBadge: models.HasProBadge(listing.AgencyTier, listing.AgencyTierExpiresAt, now),
		}
		if listing.IsFeatured(now) {
			ranked.Featured = true
			if listing.FeaturedPlan != nil {
				ranked.Priority = PromotionPriority(*listing.FeaturedPlan)
			}
			featured = append(featured, ranked)
		} else {
			regular = append(regular, ranked)
		}
	}

	sort.Slice(featured, func(i, j int) bool {
		if featured[i].Priority != featured[j].Priority {
			return featured[i].Priority > featured[j].Priority
		}
		return newerFirst(featured[i].Tour, featured[j].Tour)
	})
	sort.Slice(regular, func(i, j int) bool {
		return newerFirst(regular[i].Tour, regular[j].Tour)
	})

	return append(featured, regular...)
}

func newerFirst(a, b models.Tour) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

// Paginate slices a ranked listing; page is 1-based
func Paginate(ranked []models.RankedTour, page, pageSize int) []models.RankedTour {
	if page < 1 || pageSize < 1 {
		return []models.RankedTour{}
	}
	start := (page - 1) * pageSize
	if start >= len(ranked) {
		return []models.RankedTour{}
	}
	end := start + pageSize
	if end > len(ranked) {
		end = len(ranked)
	}
	return ranked[start:end]
}
