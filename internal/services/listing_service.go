package services

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/tourlink/marketplace-backend/internal/models"
	"github.com/tourlink/marketplace-backend/pkg/apperror"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListingService serves the public tour listing and the plan price list
type ListingService struct {
	tours  TourStore
	plans  PlanCatalog
	clock  Clock
	logger *logrus.Logger
}

// NewListingService creates a new listing service
func NewListingService(tours TourStore, plans PlanCatalog, clock Clock, logger *logrus.Logger) *ListingService {
	return &ListingService{
		tours:  tours,
		plans:  plans,
		clock:  clock,
		logger: logger,
	}
}

// ListTours ranks every published tour at the current instant and returns one page
func (s *ListingService) ListTours(ctx context.Context, page, pageSize int) (*models.TourListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	listings, err := s.tours.ListPublishedWithAgency(ctx)
	if err != nil {
		return nil, apperror.Internal("failed to load tours", err)
	}

	ranked := Rank(listings, s.clock())
	return &models.TourListResponse{
		Tours:    Paginate(ranked, page, pageSize),
		Total:    len(ranked),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// ListPlans returns the active promotion and membership plans
func (s *ListingService) ListPlans(ctx context.Context) ([]models.Plan, error) {
	plans, err := s.plans.List(ctx)
	if err != nil {
		return nil, apperror.Internal("failed to load plans", err)
	}
	return plans, nil
}
