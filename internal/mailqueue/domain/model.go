package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/kigyomail/internal/subscription/domain"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusReadyToSend Status = "ready_to_send"
	StatusSent        Status = "sent"
	StatusCancelled   Status = "cancelled"
)

// QuotaStatuses consume a customer's monthly letter allowance.
var QuotaStatuses = []Status{StatusPending, StatusConfirmed, StatusReadyToSend, StatusSent}

// CancellableStatuses may still be withdrawn by the customer.
var CancellableStatuses = []Status{StatusPending, StatusConfirmed}

// SendableStatuses may be marked sent by fulfilment.
var SendableStatuses = []Status{StatusPending, StatusConfirmed, StatusReadyToSend}

// OpenStatuses is the default operator listing filter.
var OpenStatuses = SendableStatuses

// MailJob is one scheduled letter to one corporation.
type MailJob struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	SubscriptionID  snowflake.ID `json:"subscription_id"`
	UserID          snowflake.ID `json:"user_id"`
	CorporationID   snowflake.ID `json:"corporation_id"`
	Status          Status       `json:"status"`
	ScheduledDate   time.Time    `json:"scheduled_date"`
	UnitPrice       int64        `json:"unit_price"`
	BalanceDeducted bool         `json:"balance_deducted"`
	SentAt          *time.Time   `json:"sent_at,omitempty"`
	CancelledAt     *time.Time   `json:"cancelled_at,omitempty"`
	CancelReason    *string      `json:"cancel_reason,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (MailJob) TableName() string { return "mailing_queue" }

type EnqueueRequest struct {
	Subscription subscriptiondomain.Subscription
	Candidates   []subscriptiondomain.Candidate
	// UnitPrice overrides the configured per-letter price when positive.
	UnitPrice int64
}

type EnqueueResult struct {
	Queued    int
	Skipped   int
	Remaining int
}

type LockResult struct {
	Locked int64  `json:"locked_count"`
	Date   string `json:"date"`
}

type CancelRequest struct {
	UserID snowflake.ID
	ID     snowflake.ID
	Reason string
}

type ListRequest struct {
	UserID   snowflake.ID
	Statuses []Status
	Limit    int
}
