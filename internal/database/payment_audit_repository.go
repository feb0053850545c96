package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/tourlink/marketplace-backend/internal/models"
)

const auditColumns = `
	id, external_transaction_id, subject_type, subject_id, event_type, actor_id,
	expected_amount, received_amount, expected_currency, received_currency, amounts_match,
	error_message, ip_address, user_agent, device_info, resolved_at, created_at`

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log creates a new payment audit entry
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_audits (`+auditColumns+`
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17
		)`,
		audit.ID, audit.ExternalTransactionID, audit.SubjectType, audit.SubjectID, audit.EventType, audit.ActorID,
		audit.ExpectedAmount, audit.ReceivedAmount, audit.ExpectedCurrency, audit.ReceivedCurrency, audit.AmountsMatch,
		audit.ErrorMessage, audit.IPAddress, audit.UserAgent, audit.DeviceInfo, audit.ResolvedAt, audit.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type":     audit.EventType,
			"transaction_id": audit.ExternalTransactionID,
		}).Error("CRITICAL: Failed to log payment audit")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":       audit.ID,
		"event_type":     audit.EventType,
		"transaction_id": audit.ExternalTransactionID,
	}).Debug("Payment audit logged")

	return nil
}

// GetAmountMismatches returns unresolved amount mismatches, newest first.
// This is the manual reconciliation queue.
func (r *PaymentAuditRepository) GetAmountMismatches(ctx context.Context, limit int) ([]*models.PaymentAudit, error) {
	audits := []*models.PaymentAudit{}
	err := r.db.SelectContext(ctx, &audits, `
		SELECT `+auditColumns+`
		FROM payment_audits
		WHERE event_type = $1 AND resolved_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2`, models.PaymentEventMismatch, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get amount mismatches: %w", err)
	}
	return audits, nil
}

// CountUnresolved returns the size of the reconciliation queue
func (r *PaymentAuditRepository) CountUnresolved(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM payment_audits
		WHERE event_type = $1 AND resolved_at IS NULL`, models.PaymentEventMismatch)
	if err != nil {
		return 0, fmt.Errorf("failed to count unresolved mismatches: %w", err)
	}
	return count, nil
}

// HasOpenMismatch reports whether transactionID has an unresolved amount mismatch
func (r *PaymentAuditRepository) HasOpenMismatch(ctx context.Context, transactionID string) (bool, error) {
	var open bool
	err := r.db.GetContext(ctx, &open, `
		SELECT EXISTS (
			SELECT 1 FROM payment_audits
			WHERE external_transaction_id = $1 AND event_type = $2 AND resolved_at IS NULL
		)`, transactionID, models.PaymentEventMismatch)
	if err != nil {
		return false, fmt.Errorf("failed to check open mismatches: %w", err)
	}
	return open, nil
}

// Resolve closes one mismatch; ErrStaleState if it is unknown or already closed
func (r *PaymentAuditRepository) Resolve(ctx context.Context, auditID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_audits SET resolved_at = NOW()
		WHERE id = $1 AND event_type = $2 AND resolved_at IS NULL`,
		auditID, models.PaymentEventMismatch)
	if err != nil {
		return fmt.Errorf("failed to resolve mismatch: %w", err)
	}
	return expectOneRow(result)
}
