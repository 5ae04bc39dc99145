package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service accumulates monthly usage. A nil tx writes outside any
// transaction.
type Service interface {
	RecordCharge(ctx context.Context, tx *gorm.DB, req ChargeRequest) error
	RecordSent(ctx context.Context, tx *gorm.DB, req SentRequest) error
	Get(ctx context.Context, userID snowflake.ID, yearMonth string) (*MonthlyUsage, error)
}

type Repository interface {
	AddCharge(ctx context.Context, db *gorm.DB, row MonthlyUsage) error
	AddSent(ctx context.Context, db *gorm.DB, row MonthlyUsage) error
	Find(ctx context.Context, db *gorm.DB, userID snowflake.ID, yearMonth string) (*MonthlyUsage, error)
}

var (
	ErrInvalidUser   = errors.New("invalid_user")
	ErrInvalidAmount = errors.New("invalid_amount")
	ErrInvalidMonth  = errors.New("invalid_year_month")
)
