package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/tourlink/marketplace-backend/internal/models"
)

// PlanRepository reads the promotion and membership price list
type PlanRepository struct {
	db *sqlx.DB
}

// NewPlanRepository creates a new PlanRepository
func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// GetBySlug retrieves an active plan; returns nil if missing or inactive
func (r *PlanRepository) GetBySlug(ctx context.Context, slug string) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.GetContext(ctx, &plan, `
		SELECT id, slug, type, name, price, currency, active
		FROM plans
		WHERE slug = $1 AND active = TRUE`, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &plan, nil
}

// List returns active plans grouped by type, cheapest first
func (r *PlanRepository) List(ctx context.Context) ([]models.Plan, error) {
	plans := []models.Plan{}
	err := r.db.SelectContext(ctx, &plans, `
		SELECT id, slug, type, name, price, currency, active
		FROM plans
		WHERE active = TRUE
		ORDER BY type ASC, price ASC, slug ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}
