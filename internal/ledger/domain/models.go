package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SourceType names the business event that moved a balance.
type SourceType string

const (
	SourceTypeSettlement SourceType = "settlement"
	SourceTypePayment    SourceType = "payment"
)

// Profile is a customer's prepaid billing account.
type Profile struct {
	ID                   snowflake.ID `json:"id" gorm:"primaryKey"`
	Email                string       `json:"email"`
	CompanyName          string       `json:"company_name"`
	StripeCustomerID     *string      `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string      `json:"stripe_subscription_id,omitempty"`
	Balance              int64        `json:"balance"`
	PlanAmount           int64        `json:"plan_amount"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

// BalanceTransaction is the immutable record written alongside every
// balance change. (SourceType, SourceID) is unique.
type BalanceTransaction struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	UserID       snowflake.ID `gorm:"not null;index"`
	SourceType   SourceType   `gorm:"type:text;not null"`
	SourceID     snowflake.ID `gorm:"not null"`
	Amount       int64        `gorm:"not null"`
	BalanceAfter int64        `gorm:"not null"`
	CreatedAt    time.Time    `gorm:"not null"`
}

func (BalanceTransaction) TableName() string { return "balance_transactions" }

// Mutation describes one balance change. Amount is always positive; the
// direction comes from Credit or Debit.
type Mutation struct {
	UserID     snowflake.ID
	SourceType SourceType
	SourceID   snowflake.ID
	Amount     int64
}

// Result reports the balance after the call. Applied is false when the
// source had already been recorded.
type Result struct {
	BalanceAfter int64
	Applied      bool
}
