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

const agencyColumns = `id, user_id, name, tier, tier_expires_at, created_at, updated_at`

// AgencyRepository handles agency profile reads
type AgencyRepository struct {
	db *sqlx.DB
}

// NewAgencyRepository creates a new AgencyRepository
func NewAgencyRepository(db *sqlx.DB) *AgencyRepository {
	return &AgencyRepository{db: db}
}

// GetByID retrieves an agency by ID; returns nil if not found
func (r *AgencyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AgencyProfile, error) {
	var agency models.AgencyProfile
	err := r.db.GetContext(ctx, &agency, `SELECT `+agencyColumns+` FROM agencies WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agency: %w", err)
	}
	return &agency, nil
}
