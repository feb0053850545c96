package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tourlink/marketplace-backend/internal/models"
)

const bookingColumns = `
	id, tour_id, user_id, slot_id, booking_date, booking_time, people,
	total_price, currency, payment_method, status, payment_status,
	payment_receipt_url, external_transaction_id, created_at, updated_at`

// BookingRepository handles database operations for bookings and their history
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// ============================================================================
// CREATE
// ============================================================================

// Create inserts a booking. When the booking is bound to a slot, the slot
// counter is bumped in the same transaction and ErrSlotFull is returned if a
// capacity is set and would be exceeded.
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	now := time.Now()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if booking.SlotID != nil {
		result, err := tx.ExecContext(ctx, `
			UPDATE tour_date_slots
			SET booked = booked + $2
			WHERE id = $1 AND (capacity IS NULL OR booked + $2 <= capacity)`,
			*booking.SlotID, booking.People)
		if err != nil {
			return fmt.Errorf("failed to reserve slot: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrSlotFull
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)`,
		booking.ID, booking.TourID, booking.UserID, booking.SlotID, booking.Date, booking.Time, booking.People,
		booking.TotalPrice, booking.Currency, booking.PaymentMethod, booking.Status, booking.PaymentStatus,
		booking.PaymentReceiptURL, booking.ExternalTransactionID, booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ============================================================================
// READ
// ============================================================================

// GetByID retrieves a booking by ID; returns nil if not found
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.GetContext(ctx, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &booking, nil
}

// ListHistory returns the audited transitions of a booking, oldest first
func (r *BookingRepository) ListHistory(ctx context.Context, bookingID uuid.UUID) ([]models.BookingStatusChange, error) {
	history := []models.BookingStatusChange{}
	err := r.db.SelectContext(ctx, &history, `
		SELECT id, booking_id, field, from_value, to_value, actor_id, actor_role, reason, created_at
		FROM booking_status_history
		WHERE booking_id = $1
		ORDER BY created_at ASC, id ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list booking history: %w", err)
	}
	return history, nil
}

// ============================================================================
// STATUS UPDATES
// ============================================================================

// TransitionStatus moves booking.Status to next only if it is still
// booking.Status in storage. Cancelling releases the slot seats.
func (r *BookingRepository) TransitionStatus(ctx context.Context, booking *models.Booking, next models.BookingStatus, change *models.BookingStatusChange) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		booking.ID, booking.Status, next)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return err
	}

	if err := insertHistory(ctx, tx, change); err != nil {
		return err
	}

	if next == models.BookingStatusCancelled && booking.SlotID != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE tour_date_slots
			SET booked = GREATEST(booked - $2, 0)
			WHERE id = $1`,
			*booking.SlotID, booking.People)
		if err != nil {
			return fmt.Errorf("failed to release slot: %w", err)
		}
	}

	return tx.Commit()
}

// SetPaymentStatus is the manual override path. It refuses bookings that
// carry a verified transaction or a ledger entry (ErrAlreadyPaid) and
// bookings whose payment status moved underneath (ErrStaleState).
func (r *BookingRepository) SetPaymentStatus(ctx context.Context, booking *models.Booking, next models.PaymentStatus, change *models.BookingStatusChange) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var verified bool
	err = tx.GetContext(ctx, &verified, `
		SELECT external_transaction_id IS NOT NULL
			OR EXISTS (
				SELECT 1 FROM payment_ledger
				WHERE subject_type = 'BOOKING' AND subject_id = bookings.id
			)
		FROM bookings
		WHERE id = $1
		FOR UPDATE`, booking.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrStaleState
	}
	if err != nil {
		return fmt.Errorf("failed to lock booking: %w", err)
	}
	if verified {
		return ErrAlreadyPaid
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET payment_status = $3, updated_at = NOW()
		WHERE id = $1 AND payment_status = $2`,
		booking.ID, booking.PaymentStatus, next)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return err
	}

	if err := insertHistory(ctx, tx, change); err != nil {
		return err
	}

	return tx.Commit()
}

// SetReceiptURL stores the transfer receipt while payment is still pending
func (r *BookingRepository) SetReceiptURL(ctx context.Context, bookingID uuid.UUID, url string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings
		SET payment_receipt_url = $2, updated_at = NOW()
		WHERE id = $1 AND payment_status = 'PENDING'`,
		bookingID, url)
	if err != nil {
		return fmt.Errorf("failed to set receipt url: %w", err)
	}
	return expectOneRow(result)
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, change *models.BookingStatusChange) error {
	if change.ID == uuid.Nil {
		change.ID = uuid.New()
	}
	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO booking_status_history (
			id, booking_id, field, from_value, to_value, actor_id, actor_role, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		change.ID, change.BookingID, change.Field, change.FromValue, change.ToValue,
		change.ActorID, change.ActorRole, change.Reason, change.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record booking history: %w", err)
	}
	return nil
}

// expectOneRow turns a compare-and-set miss into ErrStaleState
func expectOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrStaleState
	}
	return nil
}
