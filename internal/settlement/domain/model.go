package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// NoItemsMessage is reported when a run finds nothing to settle.
const NoItemsMessage = "no items to deduct"

// PendingItem is a sent letter not yet charged to the balance.
type PendingItem struct {
	ID        snowflake.ID
	UserID    snowflake.ID
	UnitPrice int64
}

// UserBatch is every unsettled item of one customer.
type UserBatch struct {
	UserID  snowflake.ID
	ItemIDs []snowflake.ID
	Amount  int64
}

type Summary struct {
	UsersProcessed int      `json:"total_users"`
	ItemsDeducted  int      `json:"deducted_items"`
	UsersPaused    int      `json:"paused_users"`
	Errors         []string `json:"errors"`
	Message        string   `json:"message,omitempty"`
}

type Repository interface {
	ListPending(ctx context.Context, db *gorm.DB) ([]PendingItem, error)
	MarkDeducted(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (int64, error)
}

type Service interface {
	SettleSentItems(ctx context.Context) (Summary, error)
}

var ErrItemsChanged = errors.New("settlement_items_changed")
