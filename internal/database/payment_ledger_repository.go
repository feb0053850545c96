package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/tourlink/marketplace-backend/internal/models"
)

const ledgerColumns = `
	external_transaction_id, payer_id, amount, currency, subject_type, subject_id,
	plan_slug, effect_expires_at, metadata, verified_at`

// LedgerTx applies the effect of a verified payment inside the transaction
// that records its ledger entry.
type LedgerTx interface {
	// MarkBookingPaid sets a PENDING booking to PAID; ErrAlreadyPaid otherwise
	MarkBookingPaid(ctx context.Context, bookingID uuid.UUID, transactionID string) error
	// ExtendTourPromotion locks the tour and extends its featured window
	ExtendTourPromotion(ctx context.Context, tourID uuid.UUID, planSlug string, d models.PlanDuration, now time.Time) (time.Time, error)
	// ExtendAgencyMembership locks the agency and extends its PRO tier
	ExtendAgencyMembership(ctx context.Context, agencyID uuid.UUID, d models.PlanDuration, now time.Time) (time.Time, error)
}

// ApplyFunc performs the effect and returns the new expiry, if any
type ApplyFunc func(ctx context.Context, tx LedgerTx) (*time.Time, error)

// PaymentLedgerRepository stores one row per external transaction id
type PaymentLedgerRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentLedgerRepository creates a new PaymentLedgerRepository
func NewPaymentLedgerRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentLedgerRepository {
	return &PaymentLedgerRepository{db: db, logger: logger}
}

// GetByTransactionID retrieves a ledger entry; returns nil if not found
func (r *PaymentLedgerRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.PaymentLedgerEntry, error) {
	var entry models.PaymentLedgerEntry
	err := r.db.GetContext(ctx, &entry, `SELECT `+ledgerColumns+` FROM payment_ledger WHERE external_transaction_id = $1`, transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return &entry, nil
}

// RecordAndApply inserts entry and runs apply in one transaction.
//
// If another request already recorded the same transaction id, nothing is
// applied and the stored entry is returned with replayed = true. The insert
// blocks on a concurrent uncommitted winner, so the loser always observes the
// committed row.
func (r *PaymentLedgerRepository) RecordAndApply(ctx context.Context, entry *models.PaymentLedgerEntry, apply ApplyFunc) (*models.PaymentLedgerEntry, bool, error) {
	if entry.VerifiedAt.IsZero() {
		entry.VerifiedAt = time.Now()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO payment_ledger (`+ledgerColumns+`
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (external_transaction_id) DO NOTHING`,
		entry.ExternalTransactionID, entry.PayerID, entry.Amount, entry.Currency, entry.SubjectType, entry.SubjectID,
		entry.PlanSlug, entry.EffectExpiresAt, entry.Metadata, entry.VerifiedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record ledger entry: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	if inserted == 0 {
		tx.Rollback()
		existing, err := r.GetByTransactionID(ctx, entry.ExternalTransactionID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("ledger entry %s vanished after conflict", entry.ExternalTransactionID)
		}
		r.logger.WithFields(logrus.Fields{
			"transaction_id": entry.ExternalTransactionID,
			"subject_type":   existing.SubjectType,
		}).Info("Payment already recorded, returning original result")
		return existing, true, nil
	}

	expiresAt, err := apply(ctx, &ledgerTx{tx: tx})
	if err != nil {
		return nil, false, err
	}

	if expiresAt != nil {
		entry.EffectExpiresAt = expiresAt
		_, err = tx.ExecContext(ctx, `
			UPDATE payment_ledger SET effect_expires_at = $2
			WHERE external_transaction_id = $1`,
			entry.ExternalTransactionID, expiresAt)
		if err != nil {
			return nil, false, fmt.Errorf("failed to store effect expiry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return entry, false, nil
}

// ============================================================================
// EFFECTS
// ============================================================================

type ledgerTx struct {
	tx *sqlx.Tx
}

func (l *ledgerTx) MarkBookingPaid(ctx context.Context, bookingID uuid.UUID, transactionID string) error {
	result, err := l.tx.ExecContext(ctx, `
		UPDATE bookings
		SET payment_status = 'PAID', external_transaction_id = $2, updated_at = NOW()
		WHERE id = $1 AND payment_status = 'PENDING' AND external_transaction_id IS NULL`,
		bookingID, transactionID)
	if isUniqueViolation(err) {
		return ErrAlreadyPaid
	}
	if err != nil {
		return fmt.Errorf("failed to mark booking paid: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAlreadyPaid
	}
	return nil
}

func (l *ledgerTx) ExtendTourPromotion(ctx context.Context, tourID uuid.UUID, planSlug string, d models.PlanDuration, now time.Time) (time.Time, error) {
	var current sql.NullTime
	err := l.tx.GetContext(ctx, &current, `SELECT featured_expires_at FROM tours WHERE id = $1 FOR UPDATE`, tourID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to lock tour: %w", err)
	}

	expiresAt := models.ExtendFrom(now, nullTimePtr(current), d)
	_, err = l.tx.ExecContext(ctx, `
		UPDATE tours
		SET featured_plan = $2, featured_expires_at = $3, updated_at = NOW()
		WHERE id = $1`,
		tourID, planSlug, expiresAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to extend tour promotion: %w", err)
	}
	return expiresAt, nil
}

func (l *ledgerTx) ExtendAgencyMembership(ctx context.Context, agencyID uuid.UUID, d models.PlanDuration, now time.Time) (time.Time, error) {
	var current sql.NullTime
	err := l.tx.GetContext(ctx, &current, `SELECT tier_expires_at FROM agencies WHERE id = $1 FOR UPDATE`, agencyID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to lock agency: %w", err)
	}

	expiresAt := models.ExtendFrom(now, nullTimePtr(current), d)
	_, err = l.tx.ExecContext(ctx, `
		UPDATE agencies
		SET tier = 'PRO', tier_expires_at = $2, updated_at = NOW()
		WHERE id = $1`,
		agencyID, expiresAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to extend membership: %w", err)
	}
	return expiresAt, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
