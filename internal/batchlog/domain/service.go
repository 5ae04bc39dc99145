package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type BatchType string

const (
	BatchTypeFetchCorporations BatchType = "fetch_corporations"
	BatchTypeLockQueue         BatchType = "lock_queue"
	BatchTypeSettleBilling     BatchType = "settle_billing"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// BatchLog is written when a job starts and finalised once when it ends.
type BatchLog struct {
	ID                   snowflake.ID `json:"id" gorm:"primaryKey"`
	BatchType            BatchType    `json:"batch_type"`
	Status               Status       `json:"status"`
	CSVDate              string       `json:"csv_date" gorm:"column:csv_date"`
	TotalRecords         int          `json:"total_records"`
	NewCompanies         int          `json:"new_companies"`
	MatchedSubscriptions int          `json:"matched_subscriptions"`
	QueuedCount          int          `json:"queued_count"`
	ErrorMessage         *string      `json:"error_message,omitempty"`
	StartedAt            time.Time    `json:"started_at"`
	CompletedAt          *time.Time   `json:"completed_at,omitempty"`
}

func (BatchLog) TableName() string { return "batch_logs" }

type Counters struct {
	TotalRecords         int
	NewCompanies         int
	MatchedSubscriptions int
	QueuedCount          int
}

type ListRequest struct {
	BatchType BatchType
	Status    Status
	StartAt   *time.Time
	EndAt     *time.Time
	Limit     int
}

type Service interface {
	Start(ctx context.Context, batchType BatchType, csvDate string) (BatchLog, error)
	Complete(ctx context.Context, id snowflake.ID, counters Counters) error
	Fail(ctx context.Context, id snowflake.ID, cause error) error
	List(ctx context.Context, req ListRequest) ([]BatchLog, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *BatchLog) error
	Finish(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, counters Counters, message *string, at time.Time) (int64, error)
	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]BatchLog, error)
}

var (
	ErrInvalidBatchType = errors.New("invalid_batch_type")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidBatchLog  = errors.New("invalid_batch_log")
	ErrAlreadyFinalised = errors.New("batch_log_already_finalised")
)
