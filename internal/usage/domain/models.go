// Package domain holds the per-customer monthly usage rollup.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusInvoiced PaymentStatus = "invoiced"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusCharged  PaymentStatus = "charged"
)

// MonthlyUsage is keyed by (UserID, YearMonth).
type MonthlyUsage struct {
	ID              snowflake.ID  `json:"id" gorm:"primaryKey"`
	UserID          snowflake.ID  `json:"user_id" gorm:"not null"`
	YearMonth       string        `json:"year_month" gorm:"type:text;not null"`
	TotalSent       int64         `json:"total_sent"`
	TotalAmount     int64         `json:"total_amount"`
	ChargedAmount   int64         `json:"charged_amount"`
	StripeInvoiceID *string       `json:"stripe_invoice_id,omitempty"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaidAt          *time.Time    `json:"paid_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (MonthlyUsage) TableName() string { return "monthly_usage" }

// ChargeRequest adds a successful payment to the month it landed in.
type ChargeRequest struct {
	UserID    snowflake.ID
	Amount    int64
	InvoiceID string
}

// SentRequest adds settled letters to the current month.
type SentRequest struct {
	UserID snowflake.ID
	Count  int64
	Amount int64
}
