package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Subscription is a customer's standing order for mail to new companies in
// one area. A nil City covers the whole prefecture.
type Subscription struct {
	ID                 snowflake.ID       `json:"id" gorm:"primaryKey"`
	UserID             snowflake.ID       `json:"user_id" gorm:"not null;index"`
	Prefecture         string             `json:"prefecture"`
	City               *string            `json:"city,omitempty"`
	AreaLabel          string             `json:"area_label"`
	MonthlyBudgetLimit int64              `json:"monthly_budget_limit"`
	MaxLettersPerMonth int                `json:"max_letters_per_month"`
	GreetingText       string             `json:"greeting_text"`
	ReportData         datatypes.JSON     `json:"report_data,omitempty" gorm:"type:jsonb"`
	Status             SubscriptionStatus `json:"status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

// CityName returns the trimmed city or "" for prefecture-wide subscriptions.
func (s Subscription) CityName() string {
	if s.City == nil {
		return ""
	}
	return strings.TrimSpace(*s.City)
}

func (s Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// Candidate is a newly registered company offered to the matcher.
type Candidate struct {
	CorporationID   snowflake.ID
	CorporateNumber string
	CompanyName     string
	Prefecture      string
	City            string
}

type CityMatchMode string

const (
	CityMatchContains CityMatchMode = "contains"
	CityMatchExact    CityMatchMode = "exact"
)

// ParseCityMatchMode falls back to contains for unknown values.
func ParseCityMatchMode(raw string) CityMatchMode {
	switch CityMatchMode(strings.ToLower(strings.TrimSpace(raw))) {
	case CityMatchExact:
		return CityMatchExact
	default:
		return CityMatchContains
	}
}
