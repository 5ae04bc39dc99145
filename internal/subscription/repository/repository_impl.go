package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kigyomail/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `id, user_id, prefecture, city, area_label, monthly_budget_limit,
	max_letters_per_month, greeting_text, status, created_at, updated_at`

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, status domain.SubscriptionStatus) ([]domain.Subscription, error) {
	var items []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM subscriptions
		 WHERE status = ?
		 ORDER BY id ASC`,
		status,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, userID, id snowflake.ID) (*domain.Subscription, error) {
	var item domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`, COALESCE(report_data, '{}') AS report_data
		 FROM subscriptions
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

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, userID, id snowflake.ID, from []domain.SubscriptionStatus, to domain.SubscriptionStatus) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND user_id = ? AND status IN ?`,
		to,
		time.Now().UTC(),
		id,
		userID,
		from,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) UpdateStatusByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, from []domain.SubscriptionStatus, to domain.SubscriptionStatus) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE user_id = ? AND status IN ?`,
		to,
		time.Now().UTC(),
		userID,
		from,
	)
	return res.RowsAffected, res.Error
}
