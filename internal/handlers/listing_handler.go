package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourlink/marketplace-backend/internal/models"
)

// Lister serves the public catalog
type Lister interface {
	ListTours(ctx context.Context, page, pageSize int) (*models.TourListResponse, error)
	ListPlans(ctx context.Context) ([]models.Plan, error)
}

// ListingHandler handles the public tour listing and plan catalog
type ListingHandler struct {
	listings Lister
	logger   *logrus.Logger
}

// NewListingHandler creates a new listing handler
func NewListingHandler(listings Lister, logger *logrus.Logger) *ListingHandler {
	return &ListingHandler{
		listings: listings,
		logger:   logger,
	}
}

// ListTours handles GET /api/v1/tours?page=&page_size=
func (h *ListingHandler) ListTours(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))

	resp, err := h.listings.ListTours(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListPlans handles GET /api/v1/plans
func (h *ListingHandler) ListPlans(c *gin.Context) {
	plans, err := h.listings.ListPlans(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plans": plans,
		"total": len(plans),
	})
}
