package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminHandler handles admin-only HTTP requests
type AdminHandler struct {
	payments PaymentVerifier
	logger   *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(payments PaymentVerifier, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		payments: payments,
		logger:   logger,
	}
}

// ===================================================================
// PAYMENT RECONCILIATION
// ===================================================================

// ListMismatches handles GET /api/v1/admin/payments/mismatches?limit=
func (h *AdminHandler) ListMismatches(c *gin.Context) {
	actor, ok := actorFrom(c, h.logger)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	audits, err := h.payments.ListMismatches(c.Request.Context(), actor, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mismatches": audits,
		"total":      len(audits),
	})
}

// ResolveMismatch handles POST /api/v1/admin/payments/mismatches/:id/resolve
func (h *AdminHandler) ResolveMismatch(c *gin.Context) {
	actor, ok := actorFrom(c, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "audit")
	if !ok {
		return
	}

	if err := h.payments.ResolveMismatch(c.Request.Context(), actor, id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       id,
		"resolved": true,
	})
}
