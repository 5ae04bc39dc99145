package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kigyomail/internal/settlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListPending(ctx context.Context, db *gorm.DB) ([]domain.PendingItem, error) {
	var items []domain.PendingItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, unit_price
		 FROM mailing_queue
		 WHERE status = 'sent' AND balance_deducted = FALSE
		 ORDER BY user_id ASC, id ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkDeducted(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE mailing_queue
		 SET balance_deducted = TRUE, updated_at = ?
		 WHERE id IN ? AND balance_deducted = FALSE`,
		time.Now().UTC(),
		ids,
	)
	return res.RowsAffected, res.Error
}
