package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tourlink/marketplace-backend/internal/database"
	"github.com/tourlink/marketplace-backend/internal/models"
)

// Store interfaces are satisfied by the repositories in internal/database.
// Lookups return (nil, nil) when the row does not exist.

type TourStore interface {
	GetTourByID(ctx context.Context, id uuid.UUID) (*models.Tour, error)
	GetDateSlots(ctx context.Context, tourID uuid.UUID) ([]models.TourDateSlot, error)
	ListPublishedWithAgency(ctx context.Context) ([]models.TourListing, error)
}

type BookingStore interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListHistory(ctx context.Context, bookingID uuid.UUID) ([]models.BookingStatusChange, error)
	TransitionStatus(ctx context.Context, booking *models.Booking, next models.BookingStatus, change *models.BookingStatusChange) error
	SetPaymentStatus(ctx context.Context, booking *models.Booking, next models.PaymentStatus, change *models.BookingStatusChange) error
	SetReceiptURL(ctx context.Context, bookingID uuid.UUID, url string) error
}

type AgencyStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.AgencyProfile, error)
}

// PlanCatalog is served by the plans table or a static YAML file
type PlanCatalog interface {
	GetBySlug(ctx context.Context, slug string) (*models.Plan, error)
	List(ctx context.Context) ([]models.Plan, error)
}

type LedgerStore interface {
	GetByTransactionID(ctx context.Context, transactionID string) (*models.PaymentLedgerEntry, error)
	RecordAndApply(ctx context.Context, entry *models.PaymentLedgerEntry, apply database.ApplyFunc) (*models.PaymentLedgerEntry, bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
	GetAmountMismatches(ctx context.Context, limit int) ([]*models.PaymentAudit, error)
	CountUnresolved(ctx context.Context) (int, error)
	HasOpenMismatch(ctx context.Context, transactionID string) (bool, error)
	Resolve(ctx context.Context, auditID uuid.UUID) error
}

// Clock returns the current instant; injected so expiry checks are testable
type Clock func() time.Time

// SystemClock is the wall clock
func SystemClock() time.Time {
	return time.Now()
}
