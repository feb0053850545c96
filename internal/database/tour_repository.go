package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tourlink/marketplace-backend/internal/models"
)

const tourColumns = `
	t.id, t.agency_id, t.title, t.price, t.currency, t.status, t.default_start_time,
	t.featured_plan, t.featured_expires_at, t.created_at, t.updated_at`

// TourRepository is the availability store: tours and their date slots
type TourRepository struct {
	db *sqlx.DB
}

// NewTourRepository creates a new TourRepository
func NewTourRepository(db *sqlx.DB) *TourRepository {
	return &TourRepository{db: db}
}

// GetTourByID retrieves a tour by ID; returns nil if not found
func (r *TourRepository) GetTourByID(ctx context.Context, id uuid.UUID) (*models.Tour, error) {
	var tour models.Tour
	err := r.db.GetContext(ctx, &tour, `SELECT `+tourColumns+` FROM tours t WHERE t.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tour: %w", err)
	}
	return &tour, nil
}

// GetDateSlots returns the scheduled dates of a tour in calendar order.
// An empty result means the tour accepts any future date.
func (r *TourRepository) GetDateSlots(ctx context.Context, tourID uuid.UUID) ([]models.TourDateSlot, error) {
	slots := []models.TourDateSlot{}
	err := r.db.SelectContext(ctx, &slots, `
		SELECT id, tour_id, slot_date, start_time, capacity, booked
		FROM tour_date_slots
		WHERE tour_id = $1
		ORDER BY slot_date ASC, start_time ASC NULLS FIRST`, tourID)
	if err != nil {
		return nil, fmt.Errorf("failed to get date slots: %w", err)
	}
	return slots, nil
}

// ListPublishedWithAgency returns every published tour joined with the
// owning agency's tier, unordered. Ranking happens in the service.
func (r *TourRepository) ListPublishedWithAgency(ctx context.Context) ([]models.TourListing, error) {
	listings := []models.TourListing{}
	err := r.db.SelectContext(ctx, &listings, `
		SELECT `+tourColumns+`,
			a.tier AS agency_tier, a.tier_expires_at AS agency_tier_expires_at
		FROM tours t
		JOIN agencies a ON a.id = t.agency_id
		WHERE t.status = 'PUBLISHED'`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tours: %w", err)
	}
	return listings, nil
}
