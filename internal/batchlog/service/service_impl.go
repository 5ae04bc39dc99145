package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kigyomail/internal/batchlog/domain"
	"github.com/smallbiznis/kigyomail/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxErrorMessage bounds what a single failure stores.
const maxErrorMessage = 2000

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("batchlog.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: c,
	}
}

func (s *Service) Start(ctx context.Context, batchType domain.BatchType, csvDate string) (domain.BatchLog, error) {
	if !validType(batchType) {
		return domain.BatchLog{}, domain.ErrInvalidBatchType
	}

	entry := domain.BatchLog{
		ID:        s.genID.Generate(),
		BatchType: batchType,
		Status:    domain.StatusRunning,
		CSVDate:   strings.TrimSpace(csvDate),
		StartedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to start batch log", zap.String("batch_type", string(batchType)), zap.Error(err))
		return domain.BatchLog{}, err
	}
	return entry, nil
}

func (s *Service) Complete(ctx context.Context, id snowflake.ID, counters domain.Counters) error {
	return s.finish(ctx, id, domain.StatusCompleted, counters, nil)
}

// Fail records the cause; counters collected so far are not kept.
func (s *Service) Fail(ctx context.Context, id snowflake.ID, cause error) error {
	message := "unknown error"
	if cause != nil {
		message = cause.Error()
	}
	if len(message) > maxErrorMessage {
		message = message[:maxErrorMessage]
	}
	return s.finish(ctx, id, domain.StatusFailed, domain.Counters{}, &message)
}

func (s *Service) finish(ctx context.Context, id snowflake.ID, status domain.Status, counters domain.Counters, message *string) error {
	if id == 0 {
		return domain.ErrInvalidBatchLog
	}
	affected, err := s.repo.Finish(ctx, s.db, id, status, counters, message, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrAlreadyFinalised
	}
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.BatchLog, error) {
	if req.BatchType != "" && !validType(req.BatchType) {
		return nil, domain.ErrInvalidBatchType
	}
	switch req.Status {
	case "", domain.StatusRunning, domain.StatusCompleted, domain.StatusFailed:
	default:
		return nil, domain.ErrInvalidStatus
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return nil, domain.ErrInvalidTimeRange
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}
	if req.Limit > 250 {
		req.Limit = 250
	}
	return s.repo.List(ctx, s.db, req)
}

func validType(t domain.BatchType) bool {
	switch t {
	case domain.BatchTypeFetchCorporations, domain.BatchTypeLockQueue, domain.BatchTypeSettleBilling:
		return true
	default:
		return false
	}
}

