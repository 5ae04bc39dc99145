package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the idempotency row for one provider event. ProcessedAt is
// set in the same transaction as the event's effects.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	CustomerRef     string         `json:"customer_ref" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypeChargeSucceeded       = "charge_succeeded"
	EventTypeChargeFailed          = "charge_failed"
	EventTypeSubscriptionCancelled = "subscription_cancelled"
)

// PaymentEvent is the canonical payment event parsed by adapters.
// CustomerRef is the provider's customer identifier.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	CustomerRef     string
	Amount          int64
	Currency        string
	InvoiceRef      string
	SubscriptionRef string
	OccurredAt      time.Time
	RawPayload      []byte
}
