package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of payment verification event
type PaymentEventType string

const (
	PaymentEventApplied  PaymentEventType = "verification_applied"
	PaymentEventReplayed PaymentEventType = "verification_replayed"
	PaymentEventMismatch PaymentEventType = "amount_mismatch"
	PaymentEventRejected PaymentEventType = "verification_rejected"
)

// PaymentAudit is an immutable record of one verification attempt.
// amount_mismatch rows with no ResolvedAt form the reconciliation queue.
type PaymentAudit struct {
	ID                    uuid.UUID        `json:"id" db:"id"`
	ExternalTransactionID string           `json:"external_transaction_id" db:"external_transaction_id"`
	SubjectType           SubjectType      `json:"subject_type" db:"subject_type"`
	SubjectID             *uuid.UUID       `json:"subject_id,omitempty" db:"subject_id"`
	EventType             PaymentEventType `json:"event_type" db:"event_type"`
	ActorID               *uuid.UUID       `json:"actor_id,omitempty" db:"actor_id"`

	// Amount tracking
	ExpectedAmount   *float64 `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount   *float64 `json:"received_amount,omitempty" db:"received_amount"`
	ExpectedCurrency *string  `json:"expected_currency,omitempty" db:"expected_currency"`
	ReceivedCurrency *string  `json:"received_currency,omitempty" db:"received_currency"`
	AmountsMatch     *bool    `json:"amounts_match,omitempty" db:"amounts_match"`

	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`

	// Request metadata
	IPAddress  *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  *string `json:"user_agent,omitempty" db:"user_agent"`
	DeviceInfo JSONB   `json:"device_info,omitempty" db:"device_info"`

	ResolvedAt *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, transactionID string, subjectType SubjectType) *PaymentAudit {
	return &PaymentAudit{
		ID:                    uuid.New(),
		ExternalTransactionID: transactionID,
		SubjectType:           subjectType,
		EventType:             eventType,
		CreatedAt:             time.Now(),
	}
}

// SetSubject sets the booking, tour or agency the payment targets
func (pa *PaymentAudit) SetSubject(id uuid.UUID) *PaymentAudit {
	pa.SubjectID = &id
	return pa
}

func (pa *PaymentAudit) SetActor(id uuid.UUID) *PaymentAudit {
	pa.ActorID = &id
	return pa
}

// SetAmounts records both sides of the cross-check and returns whether they
// agree within tolerance. Currencies must match exactly.
func (pa *PaymentAudit) SetAmounts(expected float64, expectedCurrency string, received float64, receivedCurrency string, tolerance float64) bool {
	pa.ExpectedAmount = &expected
	pa.ReceivedAmount = &received
	pa.ExpectedCurrency = &expectedCurrency
	pa.ReceivedCurrency = &receivedCurrency

	match := expectedCurrency == receivedCurrency && abs(expected-received) < tolerance
	pa.AmountsMatch = &match
	return match
}

// SetError sets error information
func (pa *PaymentAudit) SetError(message string) *PaymentAudit {
	pa.ErrorMessage = &message
	return pa
}

// SetMetadata sets request metadata
func (pa *PaymentAudit) SetMetadata(ip, userAgent string, device map[string]interface{}) *PaymentAudit {
	if ip != "" {
		pa.IPAddress = &ip
	}
	if userAgent != "" {
		pa.UserAgent = &userAgent
	}
	if len(device) > 0 {
		pa.DeviceInfo = JSONB(device)
	}
	return pa
}

// abs returns absolute value of float64
func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
