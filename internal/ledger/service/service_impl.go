package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kigyomail/internal/config"
	ledgerdomain "github.com/smallbiznis/kigyomail/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/kigyomail/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type balanceRow struct {
	Balance    int64
	PlanAmount int64
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Credit(ctx context.Context, tx *gorm.DB, m ledgerdomain.Mutation) (ledgerdomain.Result, error) {
	return s.mutate(ctx, tx, m, 1)
}

func (s *Service) Debit(ctx context.Context, tx *gorm.DB, m ledgerdomain.Mutation) (ledgerdomain.Result, error) {
	return s.mutate(ctx, tx, m, -1)
}

func (s *Service) mutate(ctx context.Context, tx *gorm.DB, m ledgerdomain.Mutation, sign int64) (ledgerdomain.Result, error) {
	if err := validate(m); err != nil {
		return ledgerdomain.Result{}, err
	}

	var res ledgerdomain.Result
	run := func(tx *gorm.DB) error {
		var err error
		res, err = s.apply(ctx, tx, m, sign*m.Amount)
		return err
	}

	var err error
	if tx == nil {
		err = s.db.WithContext(ctx).Transaction(run)
	} else {
		err = run(tx)
	}
	if err != nil {
		return ledgerdomain.Result{}, err
	}

	if res.Applied && s.obsMetrics != nil {
		s.obsMetrics.RecordBalanceMutation(ctx, string(m.SourceType))
	}
	return res, nil
}

// apply records the transaction first so a replayed source is detected
// before the balance moves.
func (s *Service) apply(ctx context.Context, tx *gorm.DB, m ledgerdomain.Mutation, signed int64) (ledgerdomain.Result, error) {
	txID := s.genID.Generate()
	now := time.Now().UTC()

	inserted := tx.WithContext(ctx).Exec(
		`INSERT INTO balance_transactions (
			id, user_id, source_type, source_id, amount, balance_after, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_type, source_id) DO NOTHING`,
		txID,
		m.UserID,
		m.SourceType,
		m.SourceID,
		signed,
		0,
		now,
	)
	if inserted.Error != nil {
		return ledgerdomain.Result{}, inserted.Error
	}
	if inserted.RowsAffected == 0 {
		balance, err := s.balance(ctx, tx, m.UserID)
		if err != nil {
			return ledgerdomain.Result{}, err
		}
		s.log.Info("balance mutation already recorded",
			zap.String("user_id", m.UserID.String()),
			zap.String("source_type", string(m.SourceType)),
			zap.String("source_id", m.SourceID.String()),
		)
		return ledgerdomain.Result{BalanceAfter: balance, Applied: false}, nil
	}

	var row balanceRow
	updated := tx.WithContext(ctx).Raw(
		`UPDATE profiles
		 SET balance = balance + ?, updated_at = ?
		 WHERE id = ?
		 RETURNING balance, plan_amount`,
		signed,
		now,
		m.UserID,
	).Scan(&row)
	if updated.Error != nil {
		return ledgerdomain.Result{}, updated.Error
	}
	if updated.RowsAffected == 0 {
		return ledgerdomain.Result{}, ledgerdomain.ErrProfileNotFound
	}

	if err := tx.WithContext(ctx).Exec(
		`UPDATE balance_transactions SET balance_after = ? WHERE id = ?`,
		row.Balance,
		txID,
	).Error; err != nil {
		return ledgerdomain.Result{}, err
	}

	if signed > 0 {
		if limit := config.MaxBalance(row.PlanAmount); row.Balance > limit {
			s.log.Warn("balance above plan ceiling",
				zap.String("user_id", m.UserID.String()),
				zap.Int64("balance", row.Balance),
				zap.Int64("ceiling", limit),
			)
		}
	}

	return ledgerdomain.Result{BalanceAfter: row.Balance, Applied: true}, nil
}

func (s *Service) Balance(ctx context.Context, userID snowflake.ID) (int64, error) {
	if userID == 0 {
		return 0, ledgerdomain.ErrInvalidUser
	}
	return s.balance(ctx, s.db, userID)
}

func (s *Service) balance(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error) {
	var balance int64
	res := db.WithContext(ctx).Raw(`SELECT balance FROM profiles WHERE id = ?`, userID).Scan(&balance)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ledgerdomain.ErrProfileNotFound
	}
	return balance, nil
}

func (s *Service) FindByCustomerRef(ctx context.Context, tx *gorm.DB, customerRef string) (*ledgerdomain.Profile, error) {
	customerRef = strings.TrimSpace(customerRef)
	if customerRef == "" {
		return nil, nil
	}
	if tx == nil {
		tx = s.db
	}

	var item ledgerdomain.Profile
	err := tx.WithContext(ctx).Raw(
		`SELECT id, email, company_name, stripe_customer_id, stripe_subscription_id,
			balance, plan_amount, created_at, updated_at
		 FROM profiles
		 WHERE stripe_customer_id = ?
		 LIMIT 1`,
		customerRef,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (s *Service) ClearSubscriptionRef(ctx context.Context, tx *gorm.DB, userID snowflake.ID) error {
	if userID == 0 {
		return ledgerdomain.ErrInvalidUser
	}
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE profiles SET stripe_subscription_id = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(),
		userID,
	).Error
}

func validate(m ledgerdomain.Mutation) error {
	if m.UserID == 0 {
		return ledgerdomain.ErrInvalidUser
	}
	switch m.SourceType {
	case ledgerdomain.SourceTypeSettlement, ledgerdomain.SourceTypePayment:
	default:
		return ledgerdomain.ErrInvalidSourceType
	}
	if m.SourceID == 0 {
		return ledgerdomain.ErrInvalidSourceID
	}
	if m.Amount <= 0 {
		return ledgerdomain.ErrInvalidAmount
	}
	return nil
}
