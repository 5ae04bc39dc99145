package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	CountInRange(ctx context.Context, db *gorm.DB, userID snowflake.ID, statuses []Status, from, to string) (int64, error)
	ExistingCorporations(ctx context.Context, db *gorm.DB, userID snowflake.ID, corporationIDs []snowflake.ID) (map[snowflake.ID]struct{}, error)
	InsertIgnore(ctx context.Context, db *gorm.DB, job *MailJob, scheduledDate string) (bool, error)
	ConfirmScheduled(ctx context.Context, db *gorm.DB, date string, now time.Time) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*MailJob, error)
	Cancel(ctx context.Context, db *gorm.DB, userID, id snowflake.ID, reason string, now time.Time) (int64, error)
	MarkSent(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error)
	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]MailJob, error)
}
