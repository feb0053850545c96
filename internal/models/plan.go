package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlanType separates tour promotions from agency memberships
type PlanType string

const (
	PlanTypeAd         PlanType = "AD"
	PlanTypeMembership PlanType = "MEMBERSHIP"
)

// Plan is one entry of the promotion/membership price list
type Plan struct {
	ID       uuid.UUID `json:"id" db:"id" yaml:"-"`
	Slug     string    `json:"slug" db:"slug" yaml:"slug"`
	Type     PlanType  `json:"type" db:"type" yaml:"type"`
	Name     string    `json:"name" db:"name" yaml:"name"`
	Price    float64   `json:"price" db:"price" yaml:"price"`
	Currency string    `json:"currency" db:"currency" yaml:"currency"`
	Active   bool      `json:"active" db:"active" yaml:"active"`
}

// Duration returns the validity period encoded in the plan slug
func (p *Plan) Duration() (PlanDuration, error) {
	return ParsePlanDuration(p.Slug)
}

// PlanDuration is a calendar-aware period such as 2 weeks or 1 month
type PlanDuration struct {
	Count int
	Unit  byte // 'd', 'w', 'm' or 'y'
}

// ParsePlanDuration reads the trailing "_<n><unit>" token of a slug:
// ad_basic_1w, ad_medium_2w, ad_premium_1m, pro_1y.
func ParsePlanDuration(slug string) (PlanDuration, error) {
	idx := strings.LastIndex(slug, "_")
	token := slug[idx+1:]
	if len(token) < 2 {
		return PlanDuration{}, fmt.Errorf("plan slug %q has no duration suffix", slug)
	}

	unit := token[len(token)-1]
	switch unit {
	case 'd', 'w', 'm', 'y':
	default:
		return PlanDuration{}, fmt.Errorf("plan slug %q has unknown duration unit %q", slug, string(unit))
	}

	count, err := strconv.Atoi(token[:len(token)-1])
	if err != nil || count < 1 {
		return PlanDuration{}, fmt.Errorf("plan slug %q has invalid duration count", slug)
	}

	return PlanDuration{Count: count, Unit: unit}, nil
}

// AddTo returns t advanced by the duration
func (d PlanDuration) AddTo(t time.Time) time.Time {
	switch d.Unit {
	case 'd':
		return t.AddDate(0, 0, d.Count)
	case 'w':
		return t.AddDate(0, 0, 7*d.Count)
	case 'm':
		return t.AddDate(0, d.Count, 0)
	case 'y':
		return t.AddDate(d.Count, 0, 0)
	}
	return t
}

func (d PlanDuration) String() string {
	return fmt.Sprintf("%d%c", d.Count, d.Unit)
}

// ExtendFrom computes a new expiry starting at the later of now and current,
// so buying again before expiry never loses remaining time.
func ExtendFrom(now time.Time, current *time.Time, d PlanDuration) time.Time {
	start := now
	if current != nil && current.After(now) {
		start = *current
	}
	return d.AddTo(start)
}
