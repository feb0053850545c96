package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types published by the marketplace
const (
	TypeBookingCreated       = "booking.created"
	TypeBookingStatusChanged = "booking.status_changed"
	TypePaymentVerified      = "payment.verified"
	TypePaymentRejected      = "payment.rejected"
)

// Event is a domain fact emitted after the owning transaction committed
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Type       string         `json:"type"`
	Key        string         `json:"key"` // partition key, usually the aggregate id
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

// New builds an event stamped with a fresh id and the current time
func New(eventType, key string, payload map[string]any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Publisher delivers events to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}
