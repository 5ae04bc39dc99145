package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kigyomail/internal/clock"
	"github.com/smallbiznis/kigyomail/internal/config"
	"github.com/smallbiznis/kigyomail/internal/mailqueue/domain"
	subscriptiondomain "github.com/smallbiznis/kigyomail/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Config config.Config
	Clock  clock.Clock `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	clock     clock.Clock
	loc       *time.Location
	unitPrice int64
}

func NewService(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	unitPrice := p.Config.UnitPrice
	if unitPrice <= 0 {
		unitPrice = config.DefaultUnitPrice
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("mailqueue.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		clock:     c,
		loc:       p.Config.Location(),
		unitPrice: unitPrice,
	}
}

// Enqueue schedules letters for tomorrow without exceeding the customer's
// remaining monthly allowance. Candidates are taken in corporate number
// order. Unresolved or already queued corporations are skipped and do not
// use up quota.
func (s *Service) Enqueue(ctx context.Context, req domain.EnqueueRequest) (domain.EnqueueResult, error) {
	sub := req.Subscription
	if sub.ID == 0 || sub.UserID == 0 {
		return domain.EnqueueResult{}, domain.ErrInvalidSubscription
	}
	unitPrice := req.UnitPrice
	if unitPrice <= 0 {
		unitPrice = s.unitPrice
	}

	candidates := make([]subscriptiondomain.Candidate, len(req.Candidates))
	copy(candidates, req.Candidates)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CorporateNumber < candidates[j].CorporateNumber
	})

	now := s.clock.Now()
	scheduled := clock.Tomorrow(now, s.loc)

	var result domain.EnqueueResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		remaining, err := s.remaining(ctx, tx, sub.UserID, sub.MaxLettersPerMonth, now)
		if err != nil {
			return err
		}
		result = domain.EnqueueResult{Remaining: remaining}
		if remaining <= 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(candidates))
		for _, c := range candidates {
			if c.CorporationID != 0 {
				ids = append(ids, c.CorporationID)
			}
		}
		existing, err := s.repo.ExistingCorporations(ctx, tx, sub.UserID, ids)
		if err != nil {
			return err
		}

		for _, c := range candidates {
			if result.Queued >= remaining {
				break
			}
			if c.CorporationID == 0 {
				result.Skipped++
				continue
			}
			if _, ok := existing[c.CorporationID]; ok {
				result.Skipped++
				continue
			}

			job := domain.MailJob{
				ID:             s.genID.Generate(),
				SubscriptionID: sub.ID,
				UserID:         sub.UserID,
				CorporationID:  c.CorporationID,
				Status:         domain.StatusPending,
				UnitPrice:      unitPrice,
				CreatedAt:      now.UTC(),
				UpdatedAt:      now.UTC(),
			}
			inserted, err := s.repo.InsertIgnore(ctx, tx, &job, scheduled)
			if err != nil {
				return err
			}
			existing[c.CorporationID] = struct{}{}
			if !inserted {
				result.Skipped++
				continue
			}
			result.Queued++
		}
		result.Remaining = remaining - result.Queued
		return nil
	})
	if err != nil {
		return domain.EnqueueResult{}, err
	}

	if result.Queued > 0 {
		s.log.Info("mail jobs queued",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("user_id", sub.UserID.String()),
			zap.Int("queued", result.Queued),
			zap.Int("skipped", result.Skipped),
			zap.Int("remaining", result.Remaining),
			zap.String("scheduled_date", scheduled),
		)
	}
	return result, nil
}

func (s *Service) RemainingQuota(ctx context.Context, userID snowflake.ID, maxLetters int) (int, error) {
	if userID == 0 {
		return 0, domain.ErrInvalidUser
	}
	return s.remaining(ctx, s.db, userID, maxLetters, s.clock.Now())
}

func (s *Service) remaining(ctx context.Context, db *gorm.DB, userID snowflake.ID, maxLetters int, now time.Time) (int, error) {
	from, to := clock.MonthRange(now, s.loc)
	used, err := s.repo.CountInRange(ctx, db, userID, domain.QuotaStatuses, from, to)
	if err != nil {
		return 0, err
	}
	remaining := maxLetters - int(used)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// LockTomorrow confirms every pending job scheduled for tomorrow. Running it
// again the same day confirms nothing new.
func (s *Service) LockTomorrow(ctx context.Context) (domain.LockResult, error) {
	now := s.clock.Now()
	date := clock.Tomorrow(now, s.loc)

	locked, err := s.repo.ConfirmScheduled(ctx, s.db, date, now.UTC())
	if err != nil {
		return domain.LockResult{}, err
	}

	s.log.Info("mail queue locked",
		zap.String("scheduled_date", date),
		zap.Int64("locked", locked),
	)
	return domain.LockResult{Locked: locked, Date: date}, nil
}

func (s *Service) Cancel(ctx context.Context, req domain.CancelRequest) error {
	if req.UserID == 0 {
		return domain.ErrInvalidUser
	}
	if req.ID == 0 {
		return domain.ErrInvalidQueueItem
	}

	item, err := s.repo.FindByID(ctx, s.db, req.UserID, req.ID)
	if err != nil {
		return err
	}
	if item == nil {
		return domain.ErrQueueItemNotFound
	}
	if !statusIn(item.Status, domain.CancellableStatuses) {
		return domain.ErrNotCancellable
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = config.DefaultCancelReason
	}

	affected, err := s.repo.Cancel(ctx, s.db, req.UserID, req.ID, reason, s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrQueueItemChanged
	}

	s.log.Info("mail job cancelled",
		zap.String("queue_item_id", req.ID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.String("previous_status", string(item.Status)),
	)
	return nil
}

// MarkSent records the fulfilment signal. Items already sent or cancelled
// are left alone and not counted.
func (s *Service) MarkSent(ctx context.Context, ids []snowflake.ID) (int64, error) {
	unique := make([]snowflake.ID, 0, len(ids))
	seen := make(map[snowflake.ID]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return 0, domain.ErrEmptySelection
	}

	updated, err := s.repo.MarkSent(ctx, s.db, unique, s.clock.Now().UTC())
	if err != nil {
		return updated, err
	}
	s.log.Info("mail jobs marked sent",
		zap.Int("requested", len(unique)),
		zap.Int64("updated", updated),
	)
	return updated, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.MailJob, error) {
	if len(req.Statuses) == 0 {
		req.Statuses = domain.OpenStatuses
	}
	for _, status := range req.Statuses {
		if !validStatus(status) {
			return nil, domain.ErrInvalidStatus
		}
	}
	switch {
	case req.Limit <= 0:
		req.Limit = defaultListLimit
	case req.Limit > maxListLimit:
		req.Limit = maxListLimit
	}
	return s.repo.List(ctx, s.db, req)
}

func validStatus(status domain.Status) bool {
	switch status {
	case domain.StatusPending, domain.StatusConfirmed, domain.StatusReadyToSend,
		domain.StatusSent, domain.StatusCancelled:
		return true
	default:
		return false
	}
}

func statusIn(status domain.Status, set []domain.Status) bool {
	for _, candidate := range set {
		if status == candidate {
			return true
		}
	}
	return false
}
