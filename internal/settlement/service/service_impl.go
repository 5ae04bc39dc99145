package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kigyomail/internal/config"
	ledgerdomain "github.com/smallbiznis/kigyomail/internal/ledger/domain"
	"github.com/smallbiznis/kigyomail/internal/settlement/domain"
	subscriptiondomain "github.com/smallbiznis/kigyomail/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/kigyomail/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Repo            domain.Repository
	Config          config.Config
	LedgerSvc       ledgerdomain.Service
	UsageSvc        usagedomain.Service
	SubscriptionSvc subscriptiondomain.Service
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	repo            domain.Repository
	unitPrice       int64
	ledgerSvc       ledgerdomain.Service
	usageSvc        usagedomain.Service
	subscriptionSvc subscriptiondomain.Service
}

func NewService(p Params) domain.Service {
	unitPrice := p.Config.UnitPrice
	if unitPrice <= 0 {
		unitPrice = config.DefaultUnitPrice
	}
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("settlement.service"),
		genID:           p.GenID,
		repo:            p.Repo,
		unitPrice:       unitPrice,
		ledgerSvc:       p.LedgerSvc,
		usageSvc:        p.UsageSvc,
		subscriptionSvc: p.SubscriptionSvc,
	}
}

// SettleSentItems charges every customer for letters sent but not yet
// deducted. Each customer settles in its own transaction; a failure is
// recorded in the summary and the run moves on.
func (s *Service) SettleSentItems(ctx context.Context) (domain.Summary, error) {
	items, err := s.repo.ListPending(ctx, s.db)
	if err != nil {
		return domain.Summary{}, err
	}
	if len(items) == 0 {
		return domain.Summary{Errors: []string{}, Message: domain.NoItemsMessage}, nil
	}

	summary := domain.Summary{Errors: []string{}}
	for _, batch := range groupByUser(items) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		paused, err := s.settleUser(ctx, batch)
		if err != nil {
			summary.Errors = append(summary.Errors, describeFailure(batch.UserID, err))
			s.log.Warn("settlement failed for user",
				zap.String("user_id", batch.UserID.String()),
				zap.Int("items", len(batch.ItemIDs)),
				zap.Int64("amount", batch.Amount),
				zap.Error(err),
			)
			continue
		}

		summary.UsersProcessed++
		summary.ItemsDeducted += len(batch.ItemIDs)
		if paused {
			summary.UsersPaused++
		}
	}

	s.log.Info("settlement finished",
		zap.Int("users_processed", summary.UsersProcessed),
		zap.Int("items_deducted", summary.ItemsDeducted),
		zap.Int("users_paused", summary.UsersPaused),
		zap.Int("errors", len(summary.Errors)),
	)
	return summary, nil
}

func (s *Service) settleUser(ctx context.Context, batch domain.UserBatch) (bool, error) {
	paused := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, err := s.ledgerSvc.Debit(ctx, tx, ledgerdomain.Mutation{
			UserID:     batch.UserID,
			SourceType: ledgerdomain.SourceTypeSettlement,
			SourceID:   s.genID.Generate(),
			Amount:     batch.Amount,
		})
		if err != nil {
			return err
		}

		marked, err := s.repo.MarkDeducted(ctx, tx, batch.ItemIDs)
		if err != nil {
			return err
		}
		if marked != int64(len(batch.ItemIDs)) {
			return domain.ErrItemsChanged
		}

		if err := s.usageSvc.RecordSent(ctx, tx, usagedomain.SentRequest{
			UserID: batch.UserID,
			Count:  int64(len(batch.ItemIDs)),
			Amount: batch.Amount,
		}); err != nil {
			return err
		}

		if res.BalanceAfter < s.unitPrice {
			if _, err := s.subscriptionSvc.PauseByCustomer(ctx, tx, batch.UserID); err != nil {
				return err
			}
			paused = true
		}
		return nil
	})
	return paused, err
}

func groupByUser(items []domain.PendingItem) []domain.UserBatch {
	var batches []domain.UserBatch
	for _, item := range items {
		if n := len(batches); n > 0 && batches[n-1].UserID == item.UserID {
			batches[n-1].ItemIDs = append(batches[n-1].ItemIDs, item.ID)
			batches[n-1].Amount += item.UnitPrice
			continue
		}
		batches = append(batches, domain.UserBatch{
			UserID:  item.UserID,
			ItemIDs: []snowflake.ID{item.ID},
			Amount:  item.UnitPrice,
		})
	}
	return batches
}

func describeFailure(userID snowflake.ID, err error) string {
	if errors.Is(err, ledgerdomain.ErrProfileNotFound) {
		return fmt.Sprintf("user %s: profile not found", userID)
	}
	return fmt.Sprintf("user %s: %v", userID, err)
}
