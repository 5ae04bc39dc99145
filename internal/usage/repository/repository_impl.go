package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/smallbiznis/kigyomail/internal/usage/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() usagedomain.Repository {
	return &repo{}
}

// AddCharge accumulates charged_amount; payment events are deduplicated
// upstream so every call is a distinct payment.
func (r *repo) AddCharge(ctx context.Context, db *gorm.DB, row usagedomain.MonthlyUsage) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO monthly_usage (
			id, user_id, year_month, total_sent, total_amount, charged_amount,
			stripe_invoice_id, payment_status, paid_at, created_at, updated_at
		) VALUES (?, ?, ?, 0, 0, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, year_month) DO UPDATE SET
			charged_amount = monthly_usage.charged_amount + excluded.charged_amount,
			stripe_invoice_id = COALESCE(excluded.stripe_invoice_id, monthly_usage.stripe_invoice_id),
			payment_status = excluded.payment_status,
			paid_at = excluded.paid_at,
			updated_at = excluded.updated_at`,
		row.ID,
		row.UserID,
		row.YearMonth,
		row.ChargedAmount,
		row.StripeInvoiceID,
		row.PaymentStatus,
		row.PaidAt,
		row.CreatedAt,
		row.UpdatedAt,
	).Error
}

func (r *repo) AddSent(ctx context.Context, db *gorm.DB, row usagedomain.MonthlyUsage) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO monthly_usage (
			id, user_id, year_month, total_sent, total_amount, charged_amount,
			payment_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT (user_id, year_month) DO UPDATE SET
			total_sent = monthly_usage.total_sent + excluded.total_sent,
			total_amount = monthly_usage.total_amount + excluded.total_amount,
			updated_at = excluded.updated_at`,
		row.ID,
		row.UserID,
		row.YearMonth,
		row.TotalSent,
		row.TotalAmount,
		usagedomain.PaymentStatusPending,
		row.CreatedAt,
		row.UpdatedAt,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, userID snowflake.ID, yearMonth string) (*usagedomain.MonthlyUsage, error) {
	var item usagedomain.MonthlyUsage
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, year_month, total_sent, total_amount, charged_amount,
			stripe_invoice_id, payment_status, paid_at, created_at, updated_at
		 FROM monthly_usage
		 WHERE user_id = ? AND year_month = ?
		 LIMIT 1`,
		userID,
		yearMonth,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
