package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kigyomail/internal/batchlog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.BatchLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO batch_logs (
			id, batch_type, status, csv_date, total_records, new_companies,
			matched_subscriptions, queued_count, started_at
		) VALUES (?, ?, ?, ?, 0, 0, 0, 0, ?)`,
		entry.ID,
		entry.BatchType,
		entry.Status,
		entry.CSVDate,
		entry.StartedAt,
	).Error
}

// Finish only touches a row that is still running.
func (r *repo) Finish(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, counters domain.Counters, message *string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE batch_logs
		 SET status = ?,
		     total_records = ?,
		     new_companies = ?,
		     matched_subscriptions = ?,
		     queued_count = ?,
		     error_message = ?,
		     completed_at = ?
		 WHERE id = ? AND status = ?`,
		status,
		counters.TotalRecords,
		counters.NewCompanies,
		counters.MatchedSubscriptions,
		counters.QueuedCount,
		message,
		at,
		id,
		domain.StatusRunning,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]domain.BatchLog, error) {
	var logs []domain.BatchLog
	stmt := db.WithContext(ctx).Model(&domain.BatchLog{})

	if req.BatchType != "" {
		stmt = stmt.Where("batch_type = ?", req.BatchType)
	}
	if req.Status != "" {
		stmt = stmt.Where("status = ?", req.Status)
	}
	if req.StartAt != nil {
		stmt = stmt.Where("started_at >= ?", req.StartAt.UTC())
	}
	if req.EndAt != nil {
		stmt = stmt.Where("started_at <= ?", req.EndAt.UTC())
	}

	stmt = stmt.Order("started_at desc, id desc")
	if req.Limit > 0 {
		stmt = stmt.Limit(req.Limit)
	}

	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
