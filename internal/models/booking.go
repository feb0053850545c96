package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// BOOKING TYPES & STATUSES
// ============================================================================

// BookingStatus is the fulfillment workflow of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
)

// bookingTransitions lists the legal next states; terminal states have none
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusCancelled},
}

// IsValid reports whether s is a known status
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusCompleted:
		return true
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCompleted
}

// CanTransitionTo reports whether the state machine allows s -> next
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentStatus is the money workflow of a booking, independent of BookingStatus
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
)

func (s PaymentStatus) IsValid() bool {
	return s == PaymentStatusPending || s == PaymentStatusPaid
}

// PaymentMethod is how the traveler intends to pay
type PaymentMethod string

const (
	PaymentMethodStripe   PaymentMethod = "stripe"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodCash     PaymentMethod = "cash"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodStripe, PaymentMethodTransfer, PaymentMethodCash:
		return true
	}
	return false
}

// RequiresManualConfirmation is true for methods the agency settles by hand
func (m PaymentMethod) RequiresManualConfirmation() bool {
	return m == PaymentMethodTransfer || m == PaymentMethodCash
}

// ============================================================================
// BOOKING
// ============================================================================

// Booking is a traveler's reservation on a dated tour instance.
// TotalPrice and Currency are snapshotted at creation.
type Booking struct {
	ID                    uuid.UUID     `json:"id" db:"id"`
	TourID                uuid.UUID     `json:"tour_id" db:"tour_id"`
	UserID                uuid.UUID     `json:"user_id" db:"user_id"`
	SlotID                *uuid.UUID    `json:"slot_id,omitempty" db:"slot_id"`
	Date                  time.Time     `json:"date" db:"booking_date"`
	Time                  *string       `json:"time,omitempty" db:"booking_time"`
	People                int           `json:"people" db:"people"`
	TotalPrice            float64       `json:"total_price" db:"total_price"`
	Currency              string        `json:"currency" db:"currency"`
	PaymentMethod         PaymentMethod `json:"payment_method" db:"payment_method"`
	Status                BookingStatus `json:"status" db:"status"`
	PaymentStatus         PaymentStatus `json:"payment_status" db:"payment_status"`
	PaymentReceiptURL     *string       `json:"payment_receipt_url,omitempty" db:"payment_receipt_url"`
	ExternalTransactionID *string       `json:"external_transaction_id,omitempty" db:"external_transaction_id"`
	CreatedAt             time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at" db:"updated_at"`
}

// PaidByVerifiedTransaction reports whether PAID came from the payment ledger
func (b *Booking) PaidByVerifiedTransaction() bool {
	return b.ExternalTransactionID != nil && *b.ExternalTransactionID != ""
}

// BookingChangeField names which workflow a history row belongs to
type BookingChangeField string

const (
	BookingFieldStatus        BookingChangeField = "status"
	BookingFieldPaymentStatus BookingChangeField = "payment_status"
)

// BookingStatusChange is one audited transition on a booking
type BookingStatusChange struct {
	ID        uuid.UUID          `json:"id" db:"id"`
	BookingID uuid.UUID          `json:"booking_id" db:"booking_id"`
	Field     BookingChangeField `json:"field" db:"field"`
	FromValue string             `json:"from_value" db:"from_value"`
	ToValue   string             `json:"to_value" db:"to_value"`
	ActorID   uuid.UUID          `json:"actor_id" db:"actor_id"`
	ActorRole Role               `json:"actor_role" db:"actor_role"`
	Reason    *string            `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
}

// ============================================================================
// REQUEST / RESPONSE DTOs
// ============================================================================

// CreateBookingRequest is the traveler's booking submission
type CreateBookingRequest struct {
	TourID        string  `json:"tour_id" binding:"required,uuid"`
	Date          string  `json:"date" binding:"required,datetime=2006-01-02"`
	Time          *string `json:"time,omitempty" binding:"omitempty,datetime=15:04"`
	People        int     `json:"people" binding:"required,min=1"`
	PaymentMethod string  `json:"payment_method" binding:"required,payment_method"`
}

// UpdateBookingStatusRequest is an agency/admin transition request
type UpdateBookingStatusRequest struct {
	Status string  `json:"status" binding:"required"`
	Reason *string `json:"reason,omitempty" binding:"omitempty,max=500"`
}

// UpdatePaymentStatusRequest is a manual payment override for cash/transfer
type UpdatePaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status" binding:"required"`
}

// AttachReceiptRequest carries the uploaded transfer receipt location
type AttachReceiptRequest struct {
	ReceiptURL string `json:"receipt_url" binding:"required,url"`
}
