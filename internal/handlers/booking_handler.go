package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourlink/marketplace-backend/internal/models"
	"github.com/tourlink/marketplace-backend/internal/services"
	"github.com/tourlink/marketplace-backend/pkg/apperror"
)

// BookingManager is the booking lifecycle the handler drives
type BookingManager interface {
	CreateBooking(ctx context.Context, actor models.Actor, in services.CreateBookingInput) (*models.Booking, error)
	GetBooking(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error)
	History(ctx context.Context, actor models.Actor, id uuid.UUID) ([]models.BookingStatusChange, error)
	SetStatus(ctx context.Context, actor models.Actor, id uuid.UUID, next models.BookingStatus, reason *string) (*models.Booking, error)
	SetPaymentStatus(ctx context.Context, actor models.Actor, id uuid.UUID, next models.PaymentStatus) (*models.Booking, error)
	AttachReceipt(ctx context.Context, actor models.Actor, id uuid.UUID, receiptURL string) (*models.Booking, error)
}

// BookingHandler handles booking-related HTTP requests
type BookingHandler struct {
	bookings BookingManager
	logger   *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings BookingManager, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		logger:   logger,
	}
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := actorFrom(c, h.logger)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	tourID, err := uuid.Parse(req.TourID)
	if err != nil {
		respondError(c, h.logger, apperror.Validation("invalid tour id"))
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		respondError(c, h.logger, apperror.Validation("date must use YYYY-MM-DD"))
		return
	}

	booking, err := h.bookings.CreateBooking(c.Request.Context(), actor, services.CreateBookingInput{
		TourID:        tourID,
		Date:          date,
		Time:          req.Time,
		People:        req.People,
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// GetBooking handles GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := actorFrom(c, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "booking")
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// GetHistory handles GET /api/v1/bookings/:id/history
func (h *BookingHandler) GetHistory(c *gin.Context) {
	actor, ok := actorFrom(c, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "booking")
	if !ok {
		return
	}

	history, err := h.bookings.History(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"booking_id": id,
		"history":    history,
		"total":      len(history),
	})
}

// UpdateStatus handles PATCH /api/v1/bookings/:id/status
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	actor, ok := actorFrom(c, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "booking")
	if !ok {
		return
	}

	var req models.UpdateBookingStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	booking, err := h.bookings.SetStatus(c.Request.Context(), actor, id, models.BookingStatus(req.Status), req.Reason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// UpdatePaymentStatus handles PATCH /api/v1/bookings/:id/payment-status
func (h *BookingHandler) UpdatePaymentStatus(c *gin.Context) {
	actor, ok := actorFrom(c, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "booking")
	if !ok {
		return
	}

	var req models.UpdatePaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	booking, err := h.bookings.SetPaymentStatus(c.Request.Context(), actor, id, models.PaymentStatus(req.PaymentStatus))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// AttachReceipt handles PUT /api/v1/bookings/:id/receipt
func (h *BookingHandler) AttachReceipt(c *gin.Context) {
	actor, ok := actorFrom(c, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(c, h.logger, "booking")
	if !ok {
		return
	}

	var req models.AttachReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	booking, err := h.bookings.AttachReceipt(c.Request.Context(), actor, id, req.ReceiptURL)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}
