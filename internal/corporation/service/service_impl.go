package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kigyomail/internal/clock"
	"github.com/smallbiznis/kigyomail/internal/corporation/domain"
	registrydomain "github.com/smallbiznis/kigyomail/internal/registry/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

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
		log:   p.Log.Named("corporation.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: c,
	}
}

func (s *Service) Upsert(ctx context.Context, record registrydomain.RawRecord, csvDate string) error {
	corp, err := s.prepare(record, csvDate)
	if err != nil {
		return err
	}
	return s.repo.Upsert(ctx, s.db, &corp)
}

// UpsertBatch writes each record on its own so one bad row cannot sink the
// batch. Inserted counts numbers that were absent before the call.
func (s *Service) UpsertBatch(ctx context.Context, records []registrydomain.RawRecord, csvDate string) domain.UpsertResult {
	var result domain.UpsertResult
	if len(records) == 0 {
		return result
	}

	numbers := make([]string, 0, len(records))
	for _, r := range records {
		numbers = append(numbers, strings.TrimSpace(r.CorporateNumber))
	}
	existing, err := s.repo.ExistingNumbers(ctx, s.db, numbers)
	if err != nil {
		s.log.Warn("failed to pre-read corporations", zap.Error(err))
		existing = map[string]snowflake.ID{}
	}

	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		if err := s.Upsert(ctx, record, csvDate); err != nil {
			result.Failed++
			s.log.Warn("corporation upsert failed",
				zap.String("corporate_number", record.CorporateNumber),
				zap.Error(err),
			)
			continue
		}

		number := strings.TrimSpace(record.CorporateNumber)
		_, existed := existing[number]
		_, repeated := seen[number]
		seen[number] = struct{}{}
		if existed || repeated {
			result.Updated++
		} else {
			result.Inserted++
		}
	}

	s.log.Info("corporations upserted",
		zap.String("csv_date", csvDate),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed),
	)
	return result
}

func (s *Service) ResolveIDs(ctx context.Context, numbers []string) (map[string]snowflake.ID, error) {
	if len(numbers) == 0 {
		return map[string]snowflake.ID{}, nil
	}
	ids, err := s.repo.ExistingNumbers(ctx, s.db, numbers)
	if err != nil {
		return nil, fmt.Errorf("resolve corporation ids: %w", err)
	}
	return ids, nil
}

func (s *Service) prepare(record registrydomain.RawRecord, csvDate string) (domain.Corporation, error) {
	number := strings.TrimSpace(record.CorporateNumber)
	if number == "" {
		return domain.Corporation{}, domain.ErrInvalidCorporateNumber
	}
	if _, err := time.Parse(registrydomain.DateLayout, csvDate); err != nil {
		return domain.Corporation{}, domain.ErrInvalidCSVDate
	}

	now := s.clock.Now().UTC()
	corp := domain.FromRecord(record, csvDate)
	corp.CorporateNumber = number
	corp.ID = s.genID.Generate()
	corp.CreatedAt = now
	corp.UpdatedAt = now
	return corp, nil
}
