package models

import (
	"time"

	"github.com/google/uuid"
)

// SubjectType names what a verified payment pays for
type SubjectType string

const (
	SubjectBooking       SubjectType = "BOOKING"
	SubjectAdPromotion   SubjectType = "AD_PROMOTION"
	SubjectMembershipPro SubjectType = "MEMBERSHIP_PRO"
)

func (s SubjectType) IsValid() bool {
	switch s {
	case SubjectBooking, SubjectAdPromotion, SubjectMembershipPro:
		return true
	}
	return false
}

// RequiresPlan is true for subjects priced by the plan catalog
func (s SubjectType) RequiresPlan() bool {
	return s == SubjectAdPromotion || s == SubjectMembershipPro
}

// PaymentLedgerEntry is the durable witness that an external transaction was
// applied. ExternalTransactionID is unique in storage.
type PaymentLedgerEntry struct {
	ExternalTransactionID string      `json:"external_transaction_id" db:"external_transaction_id"`
	PayerID               string      `json:"payer_id" db:"payer_id"`
	Amount                float64     `json:"amount" db:"amount"`
	Currency              string      `json:"currency" db:"currency"`
	SubjectType           SubjectType `json:"subject_type" db:"subject_type"`
	SubjectID             uuid.UUID   `json:"subject_id" db:"subject_id"`
	PlanSlug              *string     `json:"plan_slug,omitempty" db:"plan_slug"`
	EffectExpiresAt       *time.Time  `json:"effect_expires_at,omitempty" db:"effect_expires_at"`
	Metadata              JSONB       `json:"metadata,omitempty" db:"metadata"`
	VerifiedAt            time.Time   `json:"verified_at" db:"verified_at"`
}

// VerificationResult is what VerifyPayment reports; replays return the
// originally recorded entry with Replayed set.
type VerificationResult struct {
	Entry    PaymentLedgerEntry `json:"entry"`
	Replayed bool               `json:"replayed"`
}

// ============================================================================
// PAYMENT CAPTURE PAYLOAD
// ============================================================================

// CaptureAmount mirrors purchase_units[].amount of the provider capture result
type CaptureAmount struct {
	Value        string `json:"value" binding:"required"`
	CurrencyCode string `json:"currency_code" binding:"required,iso_currency"`
}

// CapturePurchaseUnit mirrors one purchase unit of the capture result
type CapturePurchaseUnit struct {
	Amount CaptureAmount `json:"amount" binding:"required"`
}

// CapturePayer mirrors the payer block of the capture result
type CapturePayer struct {
	PayerID string `json:"payer_id" binding:"required"`
}

// VerifyPaymentRequest is the already-captured provider result plus the
// subject it pays for.
type VerifyPaymentRequest struct {
	ID            string                `json:"id" binding:"required,max=128"`
	Payer         CapturePayer          `json:"payer" binding:"required"`
	PurchaseUnits []CapturePurchaseUnit `json:"purchase_units" binding:"required,min=1,dive"`
	SubjectType   string                `json:"subject_type" binding:"required"`
	SubjectID     string                `json:"subject_id" binding:"required,uuid"`
	PlanSlug      string                `json:"plan_slug,omitempty"`
	Metadata      map[string]any        `json:"metadata,omitempty"`
}
