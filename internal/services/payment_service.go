package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourlink/marketplace-backend/internal/database"
	"github.com/tourlink/marketplace-backend/internal/metrics"
	"github.com/tourlink/marketplace-backend/internal/models"
	"github.com/tourlink/marketplace-backend/internal/utils"
	"github.com/tourlink/marketplace-backend/pkg/apperror"
	"github.com/tourlink/marketplace-backend/pkg/events"
)

// PaymentServiceConfig holds verification settings
type PaymentServiceConfig struct {
	AmountTolerance float64
}

// DefaultPaymentServiceConfig returns default configuration
func DefaultPaymentServiceConfig() PaymentServiceConfig {
	return PaymentServiceConfig{AmountTolerance: 0.01}
}

// VerifyPaymentInput is an already-captured provider result plus its subject
type VerifyPaymentInput struct {
	ExternalTransactionID string
	PayerID               string
	Amount                float64
	Currency              string
	SubjectType           models.SubjectType
	SubjectID             uuid.UUID
	PlanSlug              string
	Metadata              map[string]any
	ClientIP              string
	UserAgent             string
}

// PaymentService applies each external transaction exactly once
type PaymentService struct {
	bookings  BookingStore
	tours     TourStore
	agencies  AgencyStore
	plans     PlanCatalog
	ledger    LedgerStore
	audits    AuditStore
	rates     ExchangeRateProvider
	publisher events.Publisher
	metrics   *metrics.Metrics
	clock     Clock
	config    PaymentServiceConfig
	logger    *logrus.Logger
}

// NewPaymentService creates a new payment verification service
func NewPaymentService(
	bookings BookingStore,
	tours TourStore,
	agencies AgencyStore,
	plans PlanCatalog,
	ledger LedgerStore,
	audits AuditStore,
	rates ExchangeRateProvider,
	publisher events.Publisher,
	m *metrics.Metrics,
	clock Clock,
	config PaymentServiceConfig,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		bookings:  bookings,
		tours:     tours,
		agencies:  agencies,
		plans:     plans,
		ledger:    ledger,
		audits:    audits,
		rates:     rates,
		publisher: publisher,
		metrics:   m,
		clock:     clock,
		config:    config,
		logger:    logger,
	}
}

// resolvedSubject is what a payment pays for, priced and ready to apply
type resolvedSubject struct {
	amount   float64
	currency string
	planSlug *string
	apply    database.ApplyFunc
}

// ============================================================================
// VERIFY
// ============================================================================

// VerifyPayment reconciles a captured payment against its subject and applies
// its effect. Replays of a recorded transaction id return the original result.
func (s *PaymentService) VerifyPayment(ctx context.Context, actor models.Actor, in VerifyPaymentInput) (*models.VerificationResult, error) {
	in.ExternalTransactionID = strings.TrimSpace(in.ExternalTransactionID)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := validateVerifyInput(in); err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"transaction_id": in.ExternalTransactionID,
		"subject_type":   in.SubjectType,
		"subject_id":     in.SubjectID,
		"actor_id":       actor.UserID,
	})

	existing, err := s.ledger.GetByTransactionID(ctx, in.ExternalTransactionID)
	if err != nil {
		return nil, apperror.Internal("failed to check payment ledger", err)
	}
	if existing != nil {
		return s.replay(ctx, actor, in, existing, log)
	}

	open, err := s.audits.HasOpenMismatch(ctx, in.ExternalTransactionID)
	if err != nil {
		return nil, apperror.Internal("failed to check reconciliation queue", err)
	}
	if open {
		s.reject(ctx, actor, in, "transaction has an unresolved amount mismatch", log)
		return nil, apperror.Conflict("this transaction is awaiting manual reconciliation, contact support")
	}

	subject, err := s.resolveSubject(ctx, actor, in)
	if err != nil {
		if apperror.HasCode(err, apperror.CodeConflict) {
			// A concurrent request with the same id may have committed meanwhile
			if winner, lookupErr := s.ledger.GetByTransactionID(ctx, in.ExternalTransactionID); lookupErr == nil && winner != nil {
				return s.replay(ctx, actor, in, winner, log)
			}
		}
		if apperror.HasCode(err, apperror.CodeInvalidState) || apperror.HasCode(err, apperror.CodeConflict) {
			s.reject(ctx, actor, in, apperror.As(err).Message, log)
		}
		return nil, err
	}

	audit := s.newAudit(models.PaymentEventApplied, actor, in)
	expected, rateErr := s.expectedAmount(subject, in.Currency)
	if rateErr != nil {
		audit.SetAmounts(subject.amount, subject.currency, in.Amount, in.Currency, s.config.AmountTolerance)
	} else {
		audit.SetAmounts(expected, in.Currency, in.Amount, in.Currency, s.config.AmountTolerance)
	}
	if !*audit.AmountsMatch {
		return nil, s.mismatch(ctx, in, audit, rateErr, log)
	}

	entry := &models.PaymentLedgerEntry{
		ExternalTransactionID: in.ExternalTransactionID,
		PayerID:               in.PayerID,
		Amount:                in.Amount,
		Currency:              in.Currency,
		SubjectType:           in.SubjectType,
		SubjectID:             in.SubjectID,
		PlanSlug:              subject.planSlug,
		Metadata:              models.JSONB(in.Metadata),
		VerifiedAt:            s.clock(),
	}

	recorded, replayed, err := s.ledger.RecordAndApply(ctx, entry, subject.apply)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrAlreadyPaid):
			s.reject(ctx, actor, in, "booking already paid by another transaction", log)
			return nil, apperror.Conflict("booking is already paid")
		case errors.Is(err, database.ErrNotFound):
			return nil, apperror.NotFound(subjectName(in.SubjectType))
		}
		return nil, apperror.Internal("failed to record payment", err)
	}
	if replayed {
		return s.replay(ctx, actor, in, recorded, log)
	}

	s.logAudit(ctx, audit, log)
	s.metrics.PaymentVerifications.WithLabelValues(metrics.OutcomeApplied).Inc()
	log.WithFields(logrus.Fields{
		"amount":            in.Amount,
		"currency":          in.Currency,
		"effect_expires_at": recorded.EffectExpiresAt,
	}).Info("Payment verified and applied")
	s.publish(ctx, events.New(events.TypePaymentVerified, in.ExternalTransactionID, map[string]any{
		"transaction_id":    recorded.ExternalTransactionID,
		"subject_type":      recorded.SubjectType,
		"subject_id":        recorded.SubjectID,
		"plan_slug":         recorded.PlanSlug,
		"amount":            recorded.Amount,
		"currency":          recorded.Currency,
		"effect_expires_at": recorded.EffectExpiresAt,
	}))

	return &models.VerificationResult{Entry: *recorded}, nil
}

func validateVerifyInput(in VerifyPaymentInput) error {
	switch {
	case in.ExternalTransactionID == "":
		return apperror.Validation("transaction id is required")
	case len(in.ExternalTransactionID) > 128:
		return apperror.Validation("transaction id is too long")
	case math.IsNaN(in.Amount) || math.IsInf(in.Amount, 0) || in.Amount <= 0:
		return apperror.Validation("amount must be positive")
	case len(in.Currency) != 3:
		return apperror.Validation("currency must be a 3-letter code")
	case !in.SubjectType.IsValid():
		return apperror.Validation("unknown subject type")
	case in.SubjectID == uuid.Nil:
		return apperror.Validation("subject id is required")
	case in.SubjectType.RequiresPlan() && strings.TrimSpace(in.PlanSlug) == "":
		return apperror.Validation("plan slug is required for promotions and memberships")
	}
	return nil
}

// replay returns a previously recorded result. A transaction id presented
// for a different subject is a conflict, not a replay. The caller must be
// allowed to pay for the recorded subject.
func (s *PaymentService) replay(ctx context.Context, actor models.Actor, in VerifyPaymentInput, recorded *models.PaymentLedgerEntry, log *logrus.Entry) (*models.VerificationResult, error) {
	if recorded.SubjectType != in.SubjectType || recorded.SubjectID != in.SubjectID {
		s.reject(ctx, actor, in, "transaction id already applied to another subject", log)
		return nil, apperror.Conflict("this transaction was already applied to another purchase")
	}
	if err := s.authorizeSubject(ctx, actor, recorded.SubjectType, recorded.SubjectID); err != nil {
		return nil, err
	}

	s.logAudit(ctx, s.newAudit(models.PaymentEventReplayed, actor, in), log)
	s.metrics.PaymentVerifications.WithLabelValues(metrics.OutcomeReplayed).Inc()
	log.Info("Payment replay, returning recorded result")

	return &models.VerificationResult{Entry: *recorded, Replayed: true}, nil
}

func (s *PaymentService) mismatch(ctx context.Context, in VerifyPaymentInput, audit *models.PaymentAudit, rateErr error, log *logrus.Entry) error {
	audit.EventType = models.PaymentEventMismatch
	cause := fmt.Errorf("expected %.2f %s, received %.2f %s",
		*audit.ExpectedAmount, *audit.ExpectedCurrency, in.Amount, in.Currency)
	if rateErr != nil {
		cause = fmt.Errorf("%w: %v", cause, rateErr)
	}
	audit.SetError(cause.Error())

	s.logAudit(ctx, audit, log)
	s.metrics.PaymentVerifications.WithLabelValues(metrics.OutcomeMismatch).Inc()
	log.WithFields(logrus.Fields{
		"expected_amount":   *audit.ExpectedAmount,
		"expected_currency": *audit.ExpectedCurrency,
		"received_amount":   in.Amount,
		"received_currency": in.Currency,
	}).Warn("Payment amount mismatch, flagged for reconciliation")
	s.publish(ctx, events.New(events.TypePaymentRejected, in.ExternalTransactionID, map[string]any{
		"transaction_id": in.ExternalTransactionID,
		"subject_type":   in.SubjectType,
		"subject_id":     in.SubjectID,
		"reason":         "amount_mismatch",
	}))

	return apperror.AmountMismatch(cause)
}

// reject records a refused verification that needs a human look
func (s *PaymentService) reject(ctx context.Context, actor models.Actor, in VerifyPaymentInput, reason string, log *logrus.Entry) {
	audit := s.newAudit(models.PaymentEventRejected, actor, in).SetError(reason)
	s.logAudit(ctx, audit, log)
	s.metrics.PaymentVerifications.WithLabelValues(metrics.OutcomeRejected).Inc()
	log.WithField("reason", reason).Warn("Payment verification rejected")
	s.publish(ctx, events.New(events.TypePaymentRejected, in.ExternalTransactionID, map[string]any{
		"transaction_id": in.ExternalTransactionID,
		"subject_type":   in.SubjectType,
		"subject_id":     in.SubjectID,
		"reason":         reason,
	}))
}

func (s *PaymentService) expectedAmount(subject *resolvedSubject, currency string) (float64, error) {
	rate, err := s.rates.Rate(subject.currency, currency)
	if err != nil {
		return 0, err
	}
	return round2(subject.amount * rate), nil
}

// ============================================================================
// SUBJECTS
// ============================================================================

func (s *PaymentService) resolveSubject(ctx context.Context, actor models.Actor, in VerifyPaymentInput) (*resolvedSubject, error) {
	switch in.SubjectType {
	case models.SubjectBooking:
		return s.resolveBooking(ctx, actor, in)
	case models.SubjectAdPromotion:
		return s.resolvePromotion(ctx, actor, in)
	case models.SubjectMembershipPro:
		return s.resolveMembership(ctx, actor, in)
	}
	return nil, apperror.Validation("unknown subject type")
}

func (s *PaymentService) resolveBooking(ctx context.Context, actor models.Actor, in VerifyPaymentInput) (*resolvedSubject, error) {
	booking, err := s.bookings.GetByID(ctx, in.SubjectID)
	if err != nil {
		return nil, apperror.Internal("failed to load booking", err)
	}
	if booking == nil {
		return nil, apperror.NotFound("booking")
	}
	if !actor.IsAdmin() && booking.UserID != actor.UserID {
		return nil, apperror.Forbidden("you cannot pay for this booking")
	}
	if booking.Status == models.BookingStatusCancelled {
		return nil, apperror.InvalidState("booking is cancelled")
	}
	if booking.PaymentStatus == models.PaymentStatusPaid {
		return nil, apperror.Conflict("booking is already paid")
	}

	bookingID := booking.ID
	transactionID := in.ExternalTransactionID
	return &resolvedSubject{
		amount:   booking.TotalPrice,
		currency: booking.Currency,
		apply: func(ctx context.Context, tx database.LedgerTx) (*time.Time, error) {
			return nil, tx.MarkBookingPaid(ctx, bookingID, transactionID)
		},
	}, nil
}

func (s *PaymentService) resolvePromotion(ctx context.Context, actor models.Actor, in VerifyPaymentInput) (*resolvedSubject, error) {
	tour, err := s.tours.GetTourByID(ctx, in.SubjectID)
	if err != nil {
		return nil, apperror.Internal("failed to load tour", err)
	}
	if tour == nil {
		return nil, apperror.NotFound("tour")
	}
	if !actor.IsAdmin() {
		owns, err := ownsAgency(ctx, s.agencies, actor, tour.AgencyID)
		if err != nil {
			return nil, err
		}
		if !owns {
			return nil, apperror.Forbidden("only the tour's agency can promote it")
		}
	}

	plan, duration, err := s.loadPlan(ctx, in.PlanSlug, models.PlanTypeAd)
	if err != nil {
		return nil, err
	}

	tourID := tour.ID
	now := s.clock()
	return &resolvedSubject{
		amount:   plan.Price,
		currency: plan.Currency,
		planSlug: &plan.Slug,
		apply: func(ctx context.Context, tx database.LedgerTx) (*time.Time, error) {
			expiresAt, err := tx.ExtendTourPromotion(ctx, tourID, plan.Slug, duration, now)
			if err != nil {
				return nil, err
			}
			return &expiresAt, nil
		},
	}, nil
}

func (s *PaymentService) resolveMembership(ctx context.Context, actor models.Actor, in VerifyPaymentInput) (*resolvedSubject, error) {
	agency, err := s.agencies.GetByID(ctx, in.SubjectID)
	if err != nil {
		return nil, apperror.Internal("failed to load agency", err)
	}
	if agency == nil {
		return nil, apperror.NotFound("agency")
	}
	if !actor.IsAdmin() && agency.UserID != actor.UserID {
		return nil, apperror.Forbidden("only the agency can buy its membership")
	}

	plan, duration, err := s.loadPlan(ctx, in.PlanSlug, models.PlanTypeMembership)
	if err != nil {
		return nil, err
	}

	agencyID := agency.ID
	now := s.clock()
	return &resolvedSubject{
		amount:   plan.Price,
		currency: plan.Currency,
		planSlug: &plan.Slug,
		apply: func(ctx context.Context, tx database.LedgerTx) (*time.Time, error) {
			expiresAt, err := tx.ExtendAgencyMembership(ctx, agencyID, duration, now)
			if err != nil {
				return nil, err
			}
			return &expiresAt, nil
		},
	}, nil
}

func (s *PaymentService) loadPlan(ctx context.Context, slug string, planType models.PlanType) (*models.Plan, models.PlanDuration, error) {
	plan, err := s.plans.GetBySlug(ctx, strings.TrimSpace(slug))
	if err != nil {
		return nil, models.PlanDuration{}, apperror.Internal("failed to load plan", err)
	}
	if plan == nil {
		return nil, models.PlanDuration{}, apperror.NotFound("plan")
	}
	if plan.Type != planType {
		return nil, models.PlanDuration{}, apperror.Validation(fmt.Sprintf("plan %s cannot be used for this purchase", plan.Slug))
	}
	duration, err := plan.Duration()
	if err != nil {
		return nil, models.PlanDuration{}, apperror.Validation(err.Error())
	}
	return plan, duration, nil
}

// authorizeSubject applies the owner/admin rule of resolveSubject without pricing
func (s *PaymentService) authorizeSubject(ctx context.Context, actor models.Actor, subjectType models.SubjectType, subjectID uuid.UUID) error {
	if actor.IsAdmin() {
		return nil
	}

	switch subjectType {
	case models.SubjectBooking:
		booking, err := s.bookings.GetByID(ctx, subjectID)
		if err != nil {
			return apperror.Internal("failed to load booking", err)
		}
		if booking == nil {
			return apperror.NotFound("booking")
		}
		if booking.UserID != actor.UserID {
			return apperror.Forbidden("you cannot pay for this booking")
		}
	case models.SubjectAdPromotion:
		tour, err := s.tours.GetTourByID(ctx, subjectID)
		if err != nil {
			return apperror.Internal("failed to load tour", err)
		}
		if tour == nil {
			return apperror.NotFound("tour")
		}
		owns, err := ownsAgency(ctx, s.agencies, actor, tour.AgencyID)
		if err != nil {
			return err
		}
		if !owns {
			return apperror.Forbidden("only the tour's agency can promote it")
		}
	case models.SubjectMembershipPro:
		agency, err := s.agencies.GetByID(ctx, subjectID)
		if err != nil {
			return apperror.Internal("failed to load agency", err)
		}
		if agency == nil {
			return apperror.NotFound("agency")
		}
		if agency.UserID != actor.UserID {
			return apperror.Forbidden("only the agency can buy its membership")
		}
	}
	return nil
}

func subjectName(t models.SubjectType) string {
	switch t {
	case models.SubjectAdPromotion:
		return "tour"
	case models.SubjectMembershipPro:
		return "agency"
	}
	return "booking"
}

// ============================================================================
// RECONCILIATION QUEUE
// ============================================================================

// ListMismatches returns unresolved amount mismatches (admin only)
func (s *PaymentService) ListMismatches(ctx context.Context, actor models.Actor, limit int) ([]*models.PaymentAudit, error) {
	if !actor.IsAdmin() {
		return nil, apperror.Forbidden("admin access required")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	audits, err := s.audits.GetAmountMismatches(ctx, limit)
	if err != nil {
		return nil, apperror.Internal("failed to load mismatches", err)
	}
	return audits, nil
}

// ResolveMismatch closes one reconciliation item (admin only)
func (s *PaymentService) ResolveMismatch(ctx context.Context, actor models.Actor, auditID uuid.UUID) error {
	if !actor.IsAdmin() {
		return apperror.Forbidden("admin access required")
	}
	if err := s.audits.Resolve(ctx, auditID); err != nil {
		if errors.Is(err, database.ErrStaleState) {
			return apperror.NotFound("open mismatch")
		}
		return apperror.Internal("failed to resolve mismatch", err)
	}
	s.logger.WithFields(logrus.Fields{
		"audit_id": auditID,
		"actor_id": actor.UserID,
	}).Info("Payment mismatch resolved")
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *PaymentService) newAudit(eventType models.PaymentEventType, actor models.Actor, in VerifyPaymentInput) *models.PaymentAudit {
	audit := models.NewPaymentAudit(eventType, in.ExternalTransactionID, in.SubjectType).
		SetSubject(in.SubjectID).
		SetActor(actor.UserID)
	audit.CreatedAt = s.clock()

	var device map[string]interface{}
	if in.UserAgent != "" {
		device = utils.ParseUserAgent(in.UserAgent).ToMap()
	}
	return audit.SetMetadata(in.ClientIP, in.UserAgent, device)
}

// logAudit writes an audit row; a failure is logged loudly but never hides
// the verification outcome from the caller.
func (s *PaymentService) logAudit(ctx context.Context, audit *models.PaymentAudit, log *logrus.Entry) {
	if err := s.audits.Log(ctx, audit); err != nil {
		log.WithError(err).WithField("event_type", audit.EventType).Error("CRITICAL: payment audit not recorded")
	}
}

func (s *PaymentService) publish(ctx context.Context, evt events.Event) {
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": evt.Type,
			"key":        evt.Key,
		}).Warn("Failed to publish domain event")
	}
}
