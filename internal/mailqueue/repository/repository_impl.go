package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kigyomail/internal/mailqueue/domain"
	"gorm.io/gorm"
)

const lookupChunk = 500

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CountInRange(ctx context.Context, db *gorm.DB, userID snowflake.ID, statuses []domain.Status, from, to string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM mailing_queue
		 WHERE user_id = ?
		   AND status IN ?
		   AND scheduled_date >= ?
		   AND scheduled_date < ?`,
		userID,
		statuses,
		from,
		to,
	).Scan(&count).Error
	return count, err
}

func (r *repo) ExistingCorporations(ctx context.Context, db *gorm.DB, userID snowflake.ID, corporationIDs []snowflake.ID) (map[snowflake.ID]struct{}, error) {
	out := make(map[snowflake.ID]struct{}, len(corporationIDs))
	for start := 0; start < len(corporationIDs); start += lookupChunk {
		end := start + lookupChunk
		if end > len(corporationIDs) {
			end = len(corporationIDs)
		}

		var ids []snowflake.ID
		err := db.WithContext(ctx).Raw(
			`SELECT corporation_id
			 FROM mailing_queue
			 WHERE user_id = ? AND corporation_id IN ?`,
			userID,
			corporationIDs[start:end],
		).Scan(&ids).Error
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// InsertIgnore reports whether a row was written. An existing job for the
// same (user, corporation) pair leaves the table untouched.
func (r *repo) InsertIgnore(ctx context.Context, db *gorm.DB, job *domain.MailJob, scheduledDate string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO mailing_queue (
			id, subscription_id, user_id, corporation_id, status,
			scheduled_date, unit_price, balance_deducted, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, corporation_id) DO NOTHING`,
		job.ID,
		job.SubscriptionID,
		job.UserID,
		job.CorporationID,
		job.Status,
		scheduledDate,
		job.UnitPrice,
		false,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ConfirmScheduled(ctx context.Context, db *gorm.DB, date string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE mailing_queue
		 SET status = ?, updated_at = ?
		 WHERE status = ? AND scheduled_date = ?`,
		domain.StatusConfirmed,
		now,
		domain.StatusPending,
		date,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*domain.MailJob, error) {
	var item domain.MailJob
	err := db.WithContext(ctx).Raw(
		`SELECT id, subscription_id, user_id, corporation_id, status, scheduled_date,
			unit_price, balance_deducted, sent_at, cancelled_at, cancel_reason,
			created_at, updated_at
		 FROM mailing_queue
		 WHERE id = ? AND user_id = ?
		 LIMIT 1`,
		id,
		userID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Cancel(ctx context.Context, db *gorm.DB, userID, id snowflake.ID, reason string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE mailing_queue
		 SET status = ?, cancelled_at = ?, cancel_reason = ?, updated_at = ?
		 WHERE id = ? AND user_id = ? AND status IN ?`,
		domain.StatusCancelled,
		now,
		reason,
		now,
		id,
		userID,
		domain.CancellableStatuses,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkSent(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error) {
	var total int64
	for start := 0; start < len(ids); start += lookupChunk {
		end := start + lookupChunk
		if end > len(ids) {
			end = len(ids)
		}
		res := db.WithContext(ctx).Exec(
			`UPDATE mailing_queue
			 SET status = ?, sent_at = ?, updated_at = ?
			 WHERE id IN ? AND status IN ?`,
			domain.StatusSent,
			now,
			now,
			ids[start:end],
			domain.SendableStatuses,
		)
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]domain.MailJob, error) {
	var (
		where = []string{"status IN ?"}
		args  = []any{req.Statuses}
	)
	if req.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, req.UserID)
	}
	args = append(args, req.Limit)

	var items []domain.MailJob
	err := db.WithContext(ctx).Raw(
		`SELECT id, subscription_id, user_id, corporation_id, status, scheduled_date,
			unit_price, balance_deducted, sent_at, cancelled_at, cancel_reason,
			created_at, updated_at
		 FROM mailing_queue
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		args...,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
