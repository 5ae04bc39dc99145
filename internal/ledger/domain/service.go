package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service owns every write to profiles.balance. Methods taking tx join the
// caller's transaction; a nil tx opens a new one.
type Service interface {
	Credit(ctx context.Context, tx *gorm.DB, m Mutation) (Result, error)
	Debit(ctx context.Context, tx *gorm.DB, m Mutation) (Result, error)
	Balance(ctx context.Context, userID snowflake.ID) (int64, error)

	FindByCustomerRef(ctx context.Context, tx *gorm.DB, customerRef string) (*Profile, error)
	ClearSubscriptionRef(ctx context.Context, tx *gorm.DB, userID snowflake.ID) error
}

var (
	ErrInvalidUser       = errors.New("invalid_user")
	ErrInvalidSourceType = errors.New("invalid_source_type")
	ErrInvalidSourceID   = errors.New("invalid_source_id")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrProfileNotFound   = errors.New("profile_not_found")
)
