package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	batchlogdomain "github.com/smallbiznis/kigyomail/internal/batchlog/domain"
	"github.com/smallbiznis/kigyomail/internal/clock"
	"github.com/smallbiznis/kigyomail/internal/config"
	corporationdomain "github.com/smallbiznis/kigyomail/internal/corporation/domain"
	mailqueuedomain "github.com/smallbiznis/kigyomail/internal/mailqueue/domain"
	obsmetrics "github.com/smallbiznis/kigyomail/internal/observability/metrics"
	registrydomain "github.com/smallbiznis/kigyomail/internal/registry/domain"
	"github.com/smallbiznis/kigyomail/internal/registry/parser"
	settlementdomain "github.com/smallbiznis/kigyomail/internal/settlement/domain"
	subscriptiondomain "github.com/smallbiznis/kigyomail/internal/subscription/domain"
	"github.com/smallbiznis/kigyomail/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config          config.Config
	Rules           *config.PipelineConfigHolder `optional:"true"`
	Log             *zap.Logger
	Fetcher         registrydomain.Fetcher
	Snapshots       registrydomain.SnapshotStore `optional:"true"`
	CorporationSvc  corporationdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	QueueSvc        mailqueuedomain.Service
	SettlementSvc   settlementdomain.Service
	BatchLogs       batchlogdomain.Service
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
	Clock           clock.Clock         `optional:"true"`
}

// Service runs the daily jobs end to end and records each run in the batch log.
type Service struct {
	cfg             config.Config
	rules           *config.PipelineConfigHolder
	log             *zap.Logger
	fetcher         registrydomain.Fetcher
	snapshots       registrydomain.SnapshotStore
	corporationSvc  corporationdomain.Service
	subscriptionSvc subscriptiondomain.Service
	queueSvc        mailqueuedomain.Service
	settlementSvc   settlementdomain.Service
	batchLogs       batchlogdomain.Service
	obsMetrics      *obsmetrics.Metrics
	clock           clock.Clock
	loc             *time.Location
}

func NewService(p Params) *Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		cfg:             p.Config,
		rules:           p.Rules,
		log:             p.Log.Named("pipeline.service"),
		fetcher:         p.Fetcher,
		snapshots:       p.Snapshots,
		corporationSvc:  p.CorporationSvc,
		subscriptionSvc: p.SubscriptionSvc,
		queueSvc:        p.QueueSvc,
		settlementSvc:   p.SettlementSvc,
		batchLogs:       p.BatchLogs,
		obsMetrics:      p.ObsMetrics,
		clock:           c,
		loc:             p.Config.Location(),
	}
}

// FetchCorporations ingests the registry file for date (today when zero),
// upserts the new entities and queues mail for every matching subscription.
func (s *Service) FetchCorporations(ctx context.Context, date time.Time) (Summary, error) {
	started := s.clock.Now()
	if date.IsZero() {
		date = started
	}
	date = date.In(s.loc)
	label := registrydomain.DateLabel(date)

	ctx, runID := correlation.EnsureCorrelationID(ctx)
	log := s.log.With(zap.String("run_id", runID), zap.String("csv_date", label))

	summary := Summary{CSVDate: label}
	entry, err := s.batchLogs.Start(ctx, batchlogdomain.BatchTypeFetchCorporations, label)
	if err != nil {
		return summary, fmt.Errorf("start batch log: %w", err)
	}

	records, err := s.download(ctx, log, date)
	if err != nil {
		s.fail(ctx, log, entry.ID, err)
		return summary, err
	}
	summary.TotalRecords = len(records)

	rules := s.rules.Get()
	selected := parser.FilterFromConfig(rules).SelectNewEntities(records)
	summary.NewCompanies = len(selected)

	upserted := s.corporationSvc.UpsertBatch(ctx, selected, label)
	summary.Inserted = upserted.Inserted + upserted.Updated
	summary.Created = upserted.Inserted

	if len(selected) > 0 {
		candidates, err := s.candidates(ctx, selected)
		if err != nil {
			s.fail(ctx, log, entry.ID, err)
			return summary, err
		}
		if err := s.enqueue(ctx, log, rules.Matching, candidates, &summary); err != nil {
			s.fail(ctx, log, entry.ID, err)
			return summary, err
		}
	}

	summary.Duration = s.clock.Now().Sub(started)
	if err := s.batchLogs.Complete(ctx, entry.ID, batchlogdomain.Counters{
		TotalRecords:         summary.TotalRecords,
		NewCompanies:         summary.NewCompanies,
		MatchedSubscriptions: summary.MatchedSubscriptions,
		QueuedCount:          summary.QueuedCount,
	}); err != nil {
		log.Warn("failed to complete batch log", zap.Error(err))
	}
	s.obsMetrics.RecordMailQueued(ctx, summary.QueuedCount)

	log.Info("registry ingestion finished",
		zap.Int("total_records", summary.TotalRecords),
		zap.Int("new_companies", summary.NewCompanies),
		zap.Int("inserted", summary.Inserted),
		zap.Int("matched_subscriptions", summary.MatchedSubscriptions),
		zap.Int("queued", summary.QueuedCount),
		zap.Int("errors", len(summary.Errors)),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (s *Service) download(ctx context.Context, log *zap.Logger, date time.Time) ([]registrydomain.RawRecord, error) {
	if s.fetcher == nil {
		return nil, ErrNoFetcher
	}
	archive, err := s.fetcher.FetchDailyArchive(ctx, date)
	if err != nil {
		s.obsMetrics.RecordRegistryFetch(ctx, fetchStatus(err))
		return nil, fmt.Errorf("fetch registry archive: %w", err)
	}
	s.obsMetrics.RecordRegistryFetch(ctx, "ok")

	if s.snapshots != nil {
		if key, err := s.snapshots.Store(ctx, archive); err != nil {
			log.Warn("registry snapshot failed", zap.String("file", archive.FileName), zap.Error(err))
		} else if key != "" {
			log.Info("registry snapshot stored", zap.String("key", key))
		}
	}

	payload, err := parser.ExtractSingleFile(archive.Data)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", archive.FileName, err)
	}
	records, err := parser.DecodeRows(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", archive.FileName, err)
	}
	return records, nil
}

func (s *Service) candidates(ctx context.Context, records []registrydomain.RawRecord) ([]subscriptiondomain.Candidate, error) {
	numbers := make([]string, 0, len(records))
	for _, r := range records {
		numbers = append(numbers, strings.TrimSpace(r.CorporateNumber))
	}
	ids, err := s.corporationSvc.ResolveIDs(ctx, numbers)
	if err != nil {
		return nil, err
	}

	out := make([]subscriptiondomain.Candidate, 0, len(records))
	for _, r := range records {
		number := strings.TrimSpace(r.CorporateNumber)
		out = append(out, subscriptiondomain.Candidate{
			CorporationID:   ids[number],
			CorporateNumber: number,
			CompanyName:     r.Name,
			Prefecture:      r.Prefecture,
			City:            r.City,
		})
	}
	return out, nil
}

func (s *Service) enqueue(ctx context.Context, log *zap.Logger, rules config.MatchingConfig, candidates []subscriptiondomain.Candidate, summary *Summary) error {
	subs, err := s.subscriptionSvc.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active subscriptions: %w", err)
	}

	for _, sub := range subs {
		mode := subscriptiondomain.ParseCityMatchMode(rules.CityModeFor(sub.Prefecture))
		matched := subscriptiondomain.MatchCandidates(candidates, sub, mode)
		if len(matched) == 0 {
			continue
		}
		// Counted even when the quota turns out to be exhausted.
		summary.MatchedSubscriptions++

		result, err := s.queueSvc.Enqueue(ctx, mailqueuedomain.EnqueueRequest{
			Subscription: sub,
			Candidates:   matched,
			UnitPrice:    s.cfg.UnitPrice,
		})
		if err != nil {
			log.Warn("enqueue failed",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("user_id", sub.UserID.String()),
				zap.Error(err),
			)
			summary.Errors = append(summary.Errors, fmt.Sprintf("subscription %s: %v", sub.ID, err))
			continue
		}
		summary.QueuedCount += result.Queued
	}
	return nil
}

// LockQueue confirms tomorrow's pending items.
func (s *Service) LockQueue(ctx context.Context) (mailqueuedomain.LockResult, error) {
	ctx, runID := correlation.EnsureCorrelationID(ctx)
	log := s.log.With(zap.String("run_id", runID))

	entry, err := s.batchLogs.Start(ctx, batchlogdomain.BatchTypeLockQueue, "")
	if err != nil {
		return mailqueuedomain.LockResult{}, fmt.Errorf("start batch log: %w", err)
	}

	result, err := s.queueSvc.LockTomorrow(ctx)
	if err != nil {
		s.fail(ctx, log, entry.ID, err)
		return result, err
	}
	if err := s.batchLogs.Complete(ctx, entry.ID, batchlogdomain.Counters{
		TotalRecords: int(result.Locked),
		QueuedCount:  int(result.Locked),
	}); err != nil {
		log.Warn("failed to complete batch log", zap.Error(err))
	}
	log.Info("queue locked", zap.String("date", result.Date), zap.Int64("locked", result.Locked))
	return result, nil
}

// SettleBilling charges sent items to customer balances.
func (s *Service) SettleBilling(ctx context.Context) (settlementdomain.Summary, error) {
	ctx, runID := correlation.EnsureCorrelationID(ctx)
	log := s.log.With(zap.String("run_id", runID))

	entry, err := s.batchLogs.Start(ctx, batchlogdomain.BatchTypeSettleBilling, "")
	if err != nil {
		return settlementdomain.Summary{}, fmt.Errorf("start batch log: %w", err)
	}

	summary, err := s.settlementSvc.SettleSentItems(ctx)
	if err != nil {
		s.fail(ctx, log, entry.ID, err)
		return summary, err
	}
	if err := s.batchLogs.Complete(ctx, entry.ID, batchlogdomain.Counters{
		TotalRecords: summary.UsersProcessed,
		QueuedCount:  summary.ItemsDeducted,
	}); err != nil {
		log.Warn("failed to complete batch log", zap.Error(err))
	}
	return summary, nil
}

func (s *Service) fail(ctx context.Context, log *zap.Logger, id snowflake.ID, cause error) {
	log.Error("batch run failed", zap.Error(cause))
	// The run context may already be cancelled; the failure must still land.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.batchLogs.Fail(finishCtx, id, cause); err != nil {
		log.Warn("failed to mark batch log failed", zap.Error(err))
	}
}

func fetchStatus(err error) string {
	switch {
	case errors.Is(err, registrydomain.ErrNotFound):
		return "not_published"
	case errors.Is(err, registrydomain.ErrAuth):
		return "auth_failed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport_failed"
	}
}
