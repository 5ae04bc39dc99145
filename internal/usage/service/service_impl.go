package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kigyomail/internal/clock"
	"github.com/smallbiznis/kigyomail/internal/config"
	usagedomain "github.com/smallbiznis/kigyomail/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   usagedomain.Repository
	Config config.Config
	Clock  clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  usagedomain.Repository
	clock clock.Clock
	loc   *time.Location
}

func NewService(p ServiceParam) usagedomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("usage.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: c,
		loc:   p.Config.Location(),
	}
}

func (s *Service) RecordCharge(ctx context.Context, tx *gorm.DB, req usagedomain.ChargeRequest) error {
	if req.UserID == 0 {
		return usagedomain.ErrInvalidUser
	}
	if req.Amount <= 0 {
		return usagedomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	paidAt := now.UTC()
	var invoiceID *string
	if trimmed := strings.TrimSpace(req.InvoiceID); trimmed != "" {
		invoiceID = &trimmed
	}

	return s.repo.AddCharge(ctx, s.conn(tx), usagedomain.MonthlyUsage{
		ID:              s.genID.Generate(),
		UserID:          req.UserID,
		YearMonth:       clock.YearMonth(now, s.loc),
		ChargedAmount:   req.Amount,
		StripeInvoiceID: invoiceID,
		PaymentStatus:   usagedomain.PaymentStatusCharged,
		PaidAt:          &paidAt,
		CreatedAt:       paidAt,
		UpdatedAt:       paidAt,
	})
}

func (s *Service) RecordSent(ctx context.Context, tx *gorm.DB, req usagedomain.SentRequest) error {
	if req.UserID == 0 {
		return usagedomain.ErrInvalidUser
	}
	if req.Count <= 0 || req.Amount < 0 {
		return usagedomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	return s.repo.AddSent(ctx, s.conn(tx), usagedomain.MonthlyUsage{
		ID:          s.genID.Generate(),
		UserID:      req.UserID,
		YearMonth:   clock.YearMonth(now, s.loc),
		TotalSent:   req.Count,
		TotalAmount: req.Amount,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	})
}

func (s *Service) Get(ctx context.Context, userID snowflake.ID, yearMonth string) (*usagedomain.MonthlyUsage, error) {
	if userID == 0 {
		return nil, usagedomain.ErrInvalidUser
	}
	yearMonth = strings.TrimSpace(yearMonth)
	if yearMonth == "" {
		yearMonth = clock.YearMonth(s.clock.Now(), s.loc)
	}
	if _, err := time.Parse("2006-01", yearMonth); err != nil {
		return nil, usagedomain.ErrInvalidMonth
	}
	return s.repo.Find(ctx, s.db, userID, yearMonth)
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
