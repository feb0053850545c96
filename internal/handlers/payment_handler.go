package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourlink/marketplace-backend/internal/models"
	"github.com/tourlink/marketplace-backend/internal/services"
	"github.com/tourlink/marketplace-backend/internal/utils"
	"github.com/tourlink/marketplace-backend/pkg/apperror"
)

// PaymentVerifier applies captured payments and serves the reconciliation queue
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, actor models.Actor, in services.VerifyPaymentInput) (*models.VerificationResult, error)
	ListMismatches(ctx context.Context, actor models.Actor, limit int) ([]*models.PaymentAudit, error)
	ResolveMismatch(ctx context.Context, actor models.Actor, auditID uuid.UUID) error
}

// PaymentHandler handles payment verification HTTP requests
type PaymentHandler struct {
	payments PaymentVerifier
	logger   *logrus.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments PaymentVerifier, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		logger:   logger,
	}
}

// VerifyPayment handles POST /api/v1/payments/verify
// The body is the provider's capture result plus the subject it pays for.
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	actor, ok := actorFrom(c, h.logger)
	if !ok {
		return
	}

	var req models.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	in, err := verifyInputFromCapture(req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	in.ClientIP = utils.GetRealIP(c)
	in.UserAgent = utils.GetUserAgent(c)

	result, err := h.payments.VerifyPayment(c.Request.Context(), actor, in)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// verifyInputFromCapture maps the capture payload onto the service input.
// Only the first purchase unit is reconciled.
func verifyInputFromCapture(req models.VerifyPaymentRequest) (services.VerifyPaymentInput, error) {
	unit := req.PurchaseUnits[0]
	amount, err := strconv.ParseFloat(strings.TrimSpace(unit.Amount.Value), 64)
	if err != nil {
		return services.VerifyPaymentInput{}, apperror.Validation("amount value must be a decimal number")
	}
	subjectID, err := uuid.Parse(req.SubjectID)
	if err != nil {
		return services.VerifyPaymentInput{}, apperror.Validation("invalid subject id")
	}

	return services.VerifyPaymentInput{
		ExternalTransactionID: req.ID,
		PayerID:               req.Payer.PayerID,
		Amount:                amount,
		Currency:              unit.Amount.CurrencyCode,
		SubjectType:           models.SubjectType(strings.ToUpper(strings.TrimSpace(req.SubjectType))),
		SubjectID:             subjectID,
		PlanSlug:              req.PlanSlug,
		Metadata:              req.Metadata,
	}, nil
}
