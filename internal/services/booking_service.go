package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourlink/marketplace-backend/internal/database"
	"github.com/tourlink/marketplace-backend/internal/metrics"
	"github.com/tourlink/marketplace-backend/internal/models"
	"github.com/tourlink/marketplace-backend/pkg/apperror"
	"github.com/tourlink/marketplace-backend/pkg/events"
)

// BookingServiceConfig holds booking validation rules
type BookingServiceConfig struct {
	MaxPartySize int
	Location     *time.Location // marketplace time zone for "today"
}

// DefaultBookingServiceConfig returns default configuration
func DefaultBookingServiceConfig() BookingServiceConfig {
	return BookingServiceConfig{
		MaxPartySize: 50,
		Location:     time.UTC,
	}
}

// CreateBookingInput is a validated booking submission
type CreateBookingInput struct {
	TourID        uuid.UUID
	Date          time.Time // calendar date; clock part ignored
	Time          *string   // "HH:MM"
	People        int
	PaymentMethod models.PaymentMethod
}

// BookingService owns the booking lifecycle: creation, status and payment
// status transitions, receipts and history.
type BookingService struct {
	tours     TourStore
	bookings  BookingStore
	agencies  AgencyStore
	publisher events.Publisher
	metrics   *metrics.Metrics
	clock     Clock
	config    BookingServiceConfig
	logger    *logrus.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	tours TourStore,
	bookings BookingStore,
	agencies AgencyStore,
	publisher events.Publisher,
	m *metrics.Metrics,
	clock Clock,
	config BookingServiceConfig,
	logger *logrus.Logger,
) *BookingService {
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &BookingService{
		tours:     tours,
		bookings:  bookings,
		agencies:  agencies,
		publisher: publisher,
		metrics:   m,
		clock:     clock,
		config:    config,
		logger:    logger,
	}
}

// ============================================================================
// CREATE
// ============================================================================

// CreateBooking reserves a place on a dated tour. The price is snapshotted.
func (s *BookingService) CreateBooking(ctx context.Context, actor models.Actor, in CreateBookingInput) (*models.Booking, error) {
	if !actor.HasRole(models.RoleUser, models.RoleAdmin) {
		return nil, apperror.Forbidden("only travelers can create bookings")
	}
	if in.People < 1 || in.People > s.config.MaxPartySize {
		return nil, apperror.Validation(fmt.Sprintf("people must be between 1 and %d", s.config.MaxPartySize))
	}
	if !in.PaymentMethod.IsValid() {
		return nil, apperror.Validation("payment method must be one of stripe, transfer, cash")
	}
	if in.Time != nil {
		if _, err := time.Parse("15:04", *in.Time); err != nil {
			return nil, apperror.Validation("time must use HH:MM")
		}
	}

	tour, err := s.tours.GetTourByID(ctx, in.TourID)
	if err != nil {
		return nil, apperror.Internal("failed to load tour", err)
	}
	if tour == nil {
		return nil, apperror.NotFound("tour")
	}
	if tour.Status != models.TourStatusPublished {
		return nil, apperror.InvalidState("tour is not open for booking")
	}

	date := calendarDate(in.Date)
	if date.Before(calendarDate(s.clock().In(s.config.Location))) {
		return nil, apperror.InvalidState("booking date is in the past")
	}

	slots, err := s.tours.GetDateSlots(ctx, tour.ID)
	if err != nil {
		return nil, apperror.Internal("failed to load tour dates", err)
	}
	slot, bookingTime, err := resolveSlot(slots, date, in.Time, in.People)
	if err != nil {
		return nil, err
	}
	if bookingTime == nil {
		bookingTime = tour.DefaultStartTime
	}
	if slot != nil && !slot.HasRoom(in.People) {
		return nil, apperror.InvalidState("slot is full")
	}

	if tour.Price < 0 {
		return nil, apperror.Validation("tour price is invalid")
	}
	total := round2(tour.Price * float64(in.People))
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, apperror.Validation("total price is out of range")
	}

	booking := &models.Booking{
		ID:            uuid.New(),
		TourID:        tour.ID,
		UserID:        actor.UserID,
		Date:          date,
		Time:          bookingTime,
		People:        in.People,
		TotalPrice:    total,
		Currency:      tour.Currency,
		PaymentMethod: in.PaymentMethod,
		Status:        models.BookingStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}
	if slot != nil {
		booking.SlotID = &slot.ID
	}

	if err := s.bookings.Create(ctx, booking); err != nil {
		if errors.Is(err, database.ErrSlotFull) {
			return nil, apperror.InvalidState("slot is full")
		}
		return nil, apperror.Internal("failed to create booking", err)
	}

	s.metrics.BookingsCreated.WithLabelValues(string(booking.PaymentMethod)).Inc()
	s.logger.WithFields(logrus.Fields{
		"booking_id":     booking.ID,
		"tour_id":        tour.ID,
		"user_id":        actor.UserID,
		"people":         booking.People,
		"total_price":    booking.TotalPrice,
		"currency":       booking.Currency,
		"payment_method": booking.PaymentMethod,
	}).Info("Booking created")
	s.publish(ctx, events.New(events.TypeBookingCreated, booking.ID.String(), map[string]any{
		"booking_id":     booking.ID,
		"tour_id":        booking.TourID,
		"agency_id":      tour.AgencyID,
		"user_id":        booking.UserID,
		"date":           booking.Date.Format("2006-01-02"),
		"people":         booking.People,
		"total_price":    booking.TotalPrice,
		"currency":       booking.Currency,
		"payment_method": booking.PaymentMethod,
	}))

	return booking, nil
}

// resolveSlot picks the slot for date (and t, if given). With no slots any
// date is accepted. Without t the first same-day slot with room for people
// wins. The returned time is the explicit time or the slot's.
func resolveSlot(slots []models.TourDateSlot, date time.Time, t *string, people int) (*models.TourDateSlot, *string, error) {
	if len(slots) == 0 {
		return nil, t, nil
	}

	var sameDay []models.TourDateSlot
	for _, slot := range slots {
		if slot.Matches(date) {
			sameDay = append(sameDay, slot)
		}
	}
	if len(sameDay) == 0 {
		return nil, nil, apperror.NotFound("tour date")
	}

	if t == nil {
		slot := sameDay[0]
		for _, candidate := range sameDay {
			if candidate.HasRoom(people) {
				slot = candidate
				break
			}
		}
		return &slot, slot.StartTime, nil
	}

	var open *models.TourDateSlot
	for i := range sameDay {
		if sameDay[i].StartTime == nil {
			if open == nil {
				open = &sameDay[i]
			}
			continue
		}
		if *sameDay[i].StartTime == *t {
			return &sameDay[i], t, nil
		}
	}
	if open != nil {
		return open, t, nil
	}
	return nil, nil, apperror.Validation("time does not match the tour schedule for that date")
}

// ============================================================================
// READ
// ============================================================================

// GetBooking returns a booking visible to the traveler, the owning agency or an admin
func (s *BookingService) GetBooking(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	return s.loadVisible(ctx, actor, id)
}

// History returns the audited status and payment changes of a booking
func (s *BookingService) History(ctx context.Context, actor models.Actor, id uuid.UUID) ([]models.BookingStatusChange, error) {
	if _, err := s.loadVisible(ctx, actor, id); err != nil {
		return nil, err
	}
	history, err := s.bookings.ListHistory(ctx, id)
	if err != nil {
		return nil, apperror.Internal("failed to load booking history", err)
	}
	return history, nil
}

func (s *BookingService) loadVisible(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Internal("failed to load booking", err)
	}
	if booking == nil {
		return nil, apperror.NotFound("booking")
	}
	if actor.IsAdmin() || (actor.Role == models.RoleUser && booking.UserID == actor.UserID) {
		return booking, nil
	}
	owns, err := s.ownsTour(ctx, actor, booking.TourID)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, apperror.Forbidden("you cannot access this booking")
	}
	return booking, nil
}

// ============================================================================
// STATUS TRANSITIONS
// ============================================================================

// SetStatus moves the fulfillment workflow; only the owning agency or an admin may
func (s *BookingService) SetStatus(ctx context.Context, actor models.Actor, id uuid.UUID, next models.BookingStatus, reason *string) (*models.Booking, error) {
	if !next.IsValid() {
		return nil, apperror.Validation("unknown booking status")
	}
	booking, err := s.loadManaged(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if !booking.Status.CanTransitionTo(next) {
		return nil, apperror.InvalidState(fmt.Sprintf("cannot change booking status from %s to %s", booking.Status, next))
	}

	change := &models.BookingStatusChange{
		ID:        uuid.New(),
		BookingID: booking.ID,
		Field:     models.BookingFieldStatus,
		FromValue: string(booking.Status),
		ToValue:   string(next),
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
		Reason:    reason,
		CreatedAt: s.clock(),
	}
	if err := s.bookings.TransitionStatus(ctx, booking, next, change); err != nil {
		if errors.Is(err, database.ErrStaleState) {
			return nil, apperror.InvalidState("booking status changed concurrently, reload and retry")
		}
		return nil, apperror.Internal("failed to update booking status", err)
	}

	previous := booking.Status
	booking.Status = next
	booking.UpdatedAt = change.CreatedAt

	s.metrics.BookingTransitions.WithLabelValues(string(next)).Inc()
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"from":       previous,
		"to":         next,
		"actor_id":   actor.UserID,
		"actor_role": actor.Role,
	}).Info("Booking status changed")
	s.publish(ctx, events.New(events.TypeBookingStatusChanged, booking.ID.String(), map[string]any{
		"booking_id": booking.ID,
		"field":      models.BookingFieldStatus,
		"from":       previous,
		"to":         next,
		"actor_id":   actor.UserID,
	}))

	return booking, nil
}

// SetPaymentStatus is the manual override for cash and transfer bookings.
// A booking paid through a verified transaction can never be overridden.
func (s *BookingService) SetPaymentStatus(ctx context.Context, actor models.Actor, id uuid.UUID, next models.PaymentStatus) (*models.Booking, error) {
	if !next.IsValid() {
		return nil, apperror.Validation("unknown payment status")
	}
	booking, err := s.loadManaged(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if booking.PaidByVerifiedTransaction() {
		return nil, errManualOverride()
	}
	if booking.PaymentMethod == models.PaymentMethodStripe {
		return nil, apperror.InvalidState("card payments are confirmed only through payment verification")
	}
	if booking.PaymentStatus == next {
		return nil, apperror.InvalidState(fmt.Sprintf("payment status is already %s", next))
	}

	change := &models.BookingStatusChange{
		ID:        uuid.New(),
		BookingID: booking.ID,
		Field:     models.BookingFieldPaymentStatus,
		FromValue: string(booking.PaymentStatus),
		ToValue:   string(next),
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
		CreatedAt: s.clock(),
	}
	if err := s.bookings.SetPaymentStatus(ctx, booking, next, change); err != nil {
		switch {
		case errors.Is(err, database.ErrAlreadyPaid):
			return nil, errManualOverride()
		case errors.Is(err, database.ErrStaleState):
			return nil, apperror.InvalidState("payment status changed concurrently, reload and retry")
		}
		return nil, apperror.Internal("failed to update payment status", err)
	}

	previous := booking.PaymentStatus
	booking.PaymentStatus = next
	booking.UpdatedAt = change.CreatedAt

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"from":       previous,
		"to":         next,
		"method":     booking.PaymentMethod,
		"actor_id":   actor.UserID,
	}).Info("Booking payment status set manually")
	s.publish(ctx, events.New(events.TypeBookingStatusChanged, booking.ID.String(), map[string]any{
		"booking_id": booking.ID,
		"field":      models.BookingFieldPaymentStatus,
		"from":       previous,
		"to":         next,
		"actor_id":   actor.UserID,
	}))

	return booking, nil
}

func errManualOverride() *apperror.AppError {
	return apperror.Conflict("this booking was paid through a verified transaction; its payment status cannot be changed manually")
}

// AttachReceipt stores the traveler's bank transfer receipt
func (s *BookingService) AttachReceipt(ctx context.Context, actor models.Actor, id uuid.UUID, receiptURL string) (*models.Booking, error) {
	parsed, err := url.Parse(receiptURL)
	if err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, apperror.Validation("receipt url must be an absolute http(s) url")
	}

	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Internal("failed to load booking", err)
	}
	if booking == nil {
		return nil, apperror.NotFound("booking")
	}
	if booking.UserID != actor.UserID {
		return nil, apperror.Forbidden("only the traveler can attach a receipt")
	}
	if booking.PaymentMethod != models.PaymentMethodTransfer {
		return nil, apperror.InvalidState("receipts are only accepted for bank transfers")
	}
	if booking.PaymentStatus != models.PaymentStatusPending {
		return nil, apperror.InvalidState("booking is already paid")
	}

	if err := s.bookings.SetReceiptURL(ctx, booking.ID, receiptURL); err != nil {
		if errors.Is(err, database.ErrStaleState) {
			return nil, apperror.InvalidState("booking is already paid")
		}
		return nil, apperror.Internal("failed to attach receipt", err)
	}

	booking.PaymentReceiptURL = &receiptURL
	return booking, nil
}

// ============================================================================
// HELPERS
// ============================================================================

// loadManaged loads a booking the actor may manage as owning agency or admin
func (s *BookingService) loadManaged(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	if !actor.HasRole(models.RoleAgency, models.RoleAdmin) {
		return nil, apperror.Forbidden("only the tour's agency can manage this booking")
	}
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Internal("failed to load booking", err)
	}
	if booking == nil {
		return nil, apperror.NotFound("booking")
	}
	if actor.IsAdmin() {
		return booking, nil
	}
	owns, err := s.ownsTour(ctx, actor, booking.TourID)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, apperror.Forbidden("only the tour's agency can manage this booking")
	}
	return booking, nil
}

// ownsTour reports whether actor is the agency user behind the tour
func (s *BookingService) ownsTour(ctx context.Context, actor models.Actor, tourID uuid.UUID) (bool, error) {
	if actor.Role != models.RoleAgency {
		return false, nil
	}
	tour, err := s.tours.GetTourByID(ctx, tourID)
	if err != nil {
		return false, apperror.Internal("failed to load tour", err)
	}
	if tour == nil {
		return false, nil
	}
	return ownsAgency(ctx, s.agencies, actor, tour.AgencyID)
}

// publish delivers an event after commit; failures are logged, never returned
func (s *BookingService) publish(ctx context.Context, evt events.Event) {
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": evt.Type,
			"key":        evt.Key,
		}).Warn("Failed to publish domain event")
	}
}

// ownsAgency reports whether actor is the agency-role user behind agencyID
func ownsAgency(ctx context.Context, agencies AgencyStore, actor models.Actor, agencyID uuid.UUID) (bool, error) {
	if actor.Role != models.RoleAgency {
		return false, nil
	}
	agency, err := agencies.GetByID(ctx, agencyID)
	if err != nil {
		return false, apperror.Internal("failed to load agency", err)
	}
	return agency != nil && agency.UserID == actor.UserID, nil
}

func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
