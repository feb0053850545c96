package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourlink/marketplace-backend/internal/models"
)

func newTestBooking() *models.Booking {
	return &models.Booking{
		TourID:        uuid.New(),
		UserID:        uuid.New(),
		Date:          time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC),
		People:        2,
		TotalPrice:    200,
		Currency:      "DOP",
		PaymentMethod: models.PaymentMethodCash,
		Status:        models.BookingStatusPending,
		PaymentStatus: models.PaymentStatusPending,
	}
}

func TestBookingRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Without slot", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		booking := newTestBooking()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO bookings`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.Create(ctx, booking)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, booking.ID)
		assert.False(t, booking.CreatedAt.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Reserves slot seats", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		booking := newTestBooking()
		slotID := uuid.New()
		booking.SlotID = &slotID

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE tour_date_slots`).
			WithArgs(slotID, 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO bookings`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.Create(ctx, booking))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Slot full", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		booking := newTestBooking()
		slotID := uuid.New()
		booking.SlotID = &slotID

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE tour_date_slots`).
			WithArgs(slotID, 2).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.Create(ctx, booking)
		assert.ErrorIs(t, err, ErrSlotFull)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	t.Run("Found", func(t *testing.T) {
		id := uuid.New()
		now := time.Now()
		rows := sqlmock.NewRows([]string{
			"id", "tour_id", "user_id", "slot_id", "booking_date", "booking_time", "people",
			"total_price", "currency", "payment_method", "status", "payment_status",
			"payment_receipt_url", "external_transaction_id", "created_at", "updated_at",
		}).AddRow(
			id.String(), uuid.NewString(), uuid.NewString(), nil, now, "09:00", 2,
			200.0, "DOP", "cash", "PENDING", "PENDING",
			nil, nil, now, now,
		)
		mock.ExpectQuery(`SELECT .+ FROM bookings WHERE id = \$1`).WithArgs(id).WillReturnRows(rows)

		booking, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, booking)
		assert.Equal(t, id, booking.ID)
		assert.Equal(t, models.PaymentMethodCash, booking.PaymentMethod)
		require.NotNil(t, booking.Time)
		assert.Equal(t, "09:00", *booking.Time)
		assert.Nil(t, booking.SlotID)
	})

	t.Run("Not found returns nil", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(`SELECT .+ FROM bookings`).WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		booking, err := repo.GetByID(ctx, id)
		assert.NoError(t, err)
		assert.Nil(t, booking)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepository_TransitionStatus(t *testing.T) {
	ctx := context.Background()

	change := func(b *models.Booking, to models.BookingStatus) *models.BookingStatusChange {
		return &models.BookingStatusChange{
			BookingID: b.ID,
			Field:     models.BookingFieldStatus,
			FromValue: string(b.Status),
			ToValue:   string(to),
			ActorID:   uuid.New(),
			ActorRole: models.RoleAgency,
		}
	}

	t.Run("Confirm writes history", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		booking := newTestBooking()
		booking.ID = uuid.New()

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE bookings\s+SET status = \$3`).
			WithArgs(booking.ID, models.BookingStatusPending, models.BookingStatusConfirmed).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO booking_status_history`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.TransitionStatus(ctx, booking, models.BookingStatusConfirmed, change(booking, models.BookingStatusConfirmed))
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Cancel releases slot", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		booking := newTestBooking()
		booking.ID = uuid.New()
		slotID := uuid.New()
		booking.SlotID = &slotID

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE bookings`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO booking_status_history`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE tour_date_slots\s+SET booked = GREATEST`).
			WithArgs(slotID, 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.TransitionStatus(ctx, booking, models.BookingStatusCancelled, change(booking, models.BookingStatusCancelled))
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Concurrent change is stale", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		booking := newTestBooking()
		booking.ID = uuid.New()

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE bookings`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.TransitionStatus(ctx, booking, models.BookingStatusConfirmed, change(booking, models.BookingStatusConfirmed))
		assert.ErrorIs(t, err, ErrStaleState)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepository_SetPaymentStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Verified booking is refused", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		booking := newTestBooking()
		booking.ID = uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM bookings\s+WHERE id = \$1\s+FOR UPDATE`).
			WithArgs(booking.ID).
			WillReturnRows(sqlmock.NewRows([]string{"verified"}).AddRow(true))
		mock.ExpectRollback()

		err := repo.SetPaymentStatus(ctx, booking, models.PaymentStatusPaid, &models.BookingStatusChange{BookingID: booking.ID})
		assert.ErrorIs(t, err, ErrAlreadyPaid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Manual cash confirmation", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		booking := newTestBooking()
		booking.ID = uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs(booking.ID).
			WillReturnRows(sqlmock.NewRows([]string{"verified"}).AddRow(false))
		mock.ExpectExec(`UPDATE bookings\s+SET payment_status = \$3`).
			WithArgs(booking.ID, models.PaymentStatusPending, models.PaymentStatusPaid).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO booking_status_history`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.SetPaymentStatus(ctx, booking, models.PaymentStatusPaid, &models.BookingStatusChange{BookingID: booking.ID})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepository_SetReceiptURL(t *testing.T) {
	ctx := context.Background()
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)
	id := uuid.New()

	mock.ExpectExec(`UPDATE bookings\s+SET payment_receipt_url`).
		WithArgs(id, "https://cdn.example.com/r.png").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetReceiptURL(ctx, id, "https://cdn.example.com/r.png")
	assert.ErrorIs(t, err, ErrStaleState)
	assert.NoError(t, mock.ExpectationsWereMet())
}
