package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	ListByStatus(ctx context.Context, db *gorm.DB, status SubscriptionStatus) ([]Subscription, error)
	FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*Subscription, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, userID, id snowflake.ID, from []SubscriptionStatus, to SubscriptionStatus) (int64, error)
	UpdateStatusByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, from []SubscriptionStatus, to SubscriptionStatus) (int64, error)
}
