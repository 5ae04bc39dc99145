package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kigyomail/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("subscription.service"),
		repo: p.Repo,
	}
}

func (s *Service) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	return s.repo.ListByStatus(ctx, s.db, domain.SubscriptionStatusActive)
}

func (s *Service) Get(ctx context.Context, userID, id snowflake.ID) (domain.Subscription, error) {
	if userID == 0 {
		return domain.Subscription{}, domain.ErrInvalidUser
	}
	if id == 0 {
		return domain.Subscription{}, domain.ErrInvalidSubscription
	}
	item, err := s.repo.FindByID(ctx, s.db, userID, id)
	if err != nil {
		return domain.Subscription{}, err
	}
	if item == nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	return *item, nil
}

func (s *Service) Pause(ctx context.Context, userID, id snowflake.ID) error {
	return s.transition(ctx, userID, id,
		[]domain.SubscriptionStatus{domain.SubscriptionStatusActive},
		domain.SubscriptionStatusPaused,
	)
}

func (s *Service) Resume(ctx context.Context, userID, id snowflake.ID) error {
	return s.transition(ctx, userID, id,
		[]domain.SubscriptionStatus{domain.SubscriptionStatusPaused},
		domain.SubscriptionStatusActive,
	)
}

func (s *Service) Cancel(ctx context.Context, userID, id snowflake.ID) error {
	return s.transition(ctx, userID, id,
		[]domain.SubscriptionStatus{domain.SubscriptionStatusActive, domain.SubscriptionStatusPaused},
		domain.SubscriptionStatusCancelled,
	)
}

// Toggle flips active and paused and returns the new status.
func (s *Service) Toggle(ctx context.Context, userID, id snowflake.ID) (domain.SubscriptionStatus, error) {
	current, err := s.Get(ctx, userID, id)
	if err != nil {
		return "", err
	}

	var next domain.SubscriptionStatus
	switch current.Status {
	case domain.SubscriptionStatusActive:
		next = domain.SubscriptionStatusPaused
	case domain.SubscriptionStatusPaused:
		next = domain.SubscriptionStatusActive
	default:
		return "", domain.ErrInvalidTransition
	}

	affected, err := s.repo.UpdateStatus(ctx, s.db, userID, id, []domain.SubscriptionStatus{current.Status}, next)
	if err != nil {
		return "", err
	}
	if affected == 0 {
		return "", domain.ErrStatusChanged
	}

	s.log.Info("subscription toggled",
		zap.String("subscription_id", id.String()),
		zap.String("user_id", userID.String()),
		zap.String("status", string(next)),
	)
	return next, nil
}

func (s *Service) PauseByCustomer(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (int64, error) {
	return s.bulk(ctx, tx, userID,
		[]domain.SubscriptionStatus{domain.SubscriptionStatusActive},
		domain.SubscriptionStatusPaused,
	)
}

func (s *Service) ResumeByCustomer(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (int64, error) {
	return s.bulk(ctx, tx, userID,
		[]domain.SubscriptionStatus{domain.SubscriptionStatusPaused},
		domain.SubscriptionStatusActive,
	)
}

func (s *Service) CancelByCustomer(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (int64, error) {
	return s.bulk(ctx, tx, userID,
		[]domain.SubscriptionStatus{domain.SubscriptionStatusActive, domain.SubscriptionStatusPaused},
		domain.SubscriptionStatusCancelled,
	)
}

func (s *Service) transition(ctx context.Context, userID, id snowflake.ID, from []domain.SubscriptionStatus, to domain.SubscriptionStatus) error {
	current, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if !statusIn(current.Status, from) {
		return domain.ErrInvalidTransition
	}

	affected, err := s.repo.UpdateStatus(ctx, s.db, userID, id, from, to)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrStatusChanged
	}
	return nil
}

func (s *Service) bulk(ctx context.Context, tx *gorm.DB, userID snowflake.ID, from []domain.SubscriptionStatus, to domain.SubscriptionStatus) (int64, error) {
	if userID == 0 {
		return 0, domain.ErrInvalidUser
	}
	if tx == nil {
		tx = s.db
	}
	affected, err := s.repo.UpdateStatusByUser(ctx, tx, userID, from, to)
	if err != nil {
		return 0, fmt.Errorf("update subscriptions for user %s: %w", userID, err)
	}
	if affected > 0 {
		s.log.Info("subscriptions updated for customer",
			zap.String("user_id", userID.String()),
			zap.String("status", string(to)),
			zap.Int64("count", affected),
		)
	}
	return affected, nil
}

func statusIn(status domain.SubscriptionStatus, set []domain.SubscriptionStatus) bool {
	for _, candidate := range set {
		if status == candidate {
			return true
		}
	}
	return false
}
