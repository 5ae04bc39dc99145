package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service manages subscription lifecycle. The *ByCustomer variants take the
// caller's transaction so they commit together with balance changes.
type Service interface {
	ListActive(ctx context.Context) ([]Subscription, error)
	Get(ctx context.Context, userID, id snowflake.ID) (Subscription, error)
	Pause(ctx context.Context, userID, id snowflake.ID) error
	Resume(ctx context.Context, userID, id snowflake.ID) error
	Cancel(ctx context.Context, userID, id snowflake.ID) error
	Toggle(ctx context.Context, userID, id snowflake.ID) (SubscriptionStatus, error)

	PauseByCustomer(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (int64, error)
	ResumeByCustomer(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (int64, error)
	CancelByCustomer(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (int64, error)
}

var (
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrStatusChanged        = errors.New("subscription_status_changed")
)
