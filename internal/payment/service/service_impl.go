package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kigyomail/internal/config"
	ledgerdomain "github.com/smallbiznis/kigyomail/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/kigyomail/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/kigyomail/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/kigyomail/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/kigyomail/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Config          config.Config
	Repo            paymentdomain.Repository
	LedgerSvc       ledgerdomain.Service
	UsageSvc        usagedomain.Service
	SubscriptionSvc subscriptiondomain.Service
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	unitPrice       int64
	repo            paymentdomain.Repository
	ledgerSvc       ledgerdomain.Service
	usageSvc        usagedomain.Service
	subscriptionSvc subscriptiondomain.Service
	obsMetrics      *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	unitPrice := p.Config.UnitPrice
	if unitPrice <= 0 {
		unitPrice = config.DefaultUnitPrice
	}
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("payment.service"),
		genID:           p.GenID,
		unitPrice:       unitPrice,
		repo:            p.Repo,
		ledgerSvc:       p.LedgerSvc,
		usageSvc:        p.UsageSvc,
		subscriptionSvc: p.SubscriptionSvc,
		obsMetrics:      p.ObsMetrics,
	}
}

// ProcessEvent applies a verified event at most once. The event row is
// recorded before any effect; effects and the processed mark commit
// together, so a failed attempt leaves the row unprocessed and a redelivery
// runs it again.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent, payload []byte) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		CustomerRef:     event.CustomerRef,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      time.Now().UTC(),
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
		s.log.Info("retrying unprocessed payment event",
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
		)
	}

	customerMissing := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := s.ledgerSvc.FindByCustomerRef(ctx, tx, event.CustomerRef)
		if err != nil {
			return err
		}
		if profile == nil {
			customerMissing = true
		} else if err := s.apply(ctx, tx, stored.ID, profile.ID, event); err != nil {
			return err
		}
		return s.repo.MarkProcessed(ctx, tx, stored.ID, time.Now().UTC())
	})
	if err != nil {
		return err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	}
	if customerMissing {
		s.log.Warn("payment event for unknown customer",
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
			zap.String("customer_ref", event.CustomerRef),
		)
		return paymentdomain.ErrCustomerNotFound
	}
	return nil
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, eventID, userID snowflake.ID, event *paymentdomain.PaymentEvent) error {
	switch event.Type {
	case paymentdomain.EventTypeChargeSucceeded:
		return s.applyCharge(ctx, tx, eventID, userID, event)
	case paymentdomain.EventTypeChargeFailed:
		paused, err := s.subscriptionSvc.PauseByCustomer(ctx, tx, userID)
		if err != nil {
			return err
		}
		s.log.Info("charge failed, subscriptions paused",
			zap.String("user_id", userID.String()),
			zap.Int64("paused", paused),
		)
		return nil
	case paymentdomain.EventTypeSubscriptionCancelled:
		cancelled, err := s.subscriptionSvc.CancelByCustomer(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := s.ledgerSvc.ClearSubscriptionRef(ctx, tx, userID); err != nil {
			return err
		}
		s.log.Info("billing subscription cancelled",
			zap.String("user_id", userID.String()),
			zap.Int64("cancelled", cancelled),
		)
		return nil
	default:
		return paymentdomain.ErrInvalidEvent
	}
}

func (s *Service) applyCharge(ctx context.Context, tx *gorm.DB, eventID, userID snowflake.ID, event *paymentdomain.PaymentEvent) error {
	if event.Amount <= 0 {
		s.log.Info("zero amount charge ignored",
			zap.String("user_id", userID.String()),
			zap.String("provider_event_id", event.ProviderEventID),
		)
		return nil
	}

	res, err := s.ledgerSvc.Credit(ctx, tx, ledgerdomain.Mutation{
		UserID:     userID,
		SourceType: ledgerdomain.SourceTypePayment,
		SourceID:   eventID,
		Amount:     event.Amount,
	})
	if err != nil {
		return err
	}
	if !res.Applied {
		return nil
	}

	if err := s.usageSvc.RecordCharge(ctx, tx, usagedomain.ChargeRequest{
		UserID:    userID,
		Amount:    event.Amount,
		InvoiceID: event.InvoiceRef,
	}); err != nil {
		return err
	}

	var resumed int64
	if event.Amount >= s.unitPrice {
		resumed, err = s.subscriptionSvc.ResumeByCustomer(ctx, tx, userID)
		if err != nil {
			return err
		}
	}

	s.log.Info("charge credited",
		zap.String("user_id", userID.String()),
		zap.Int64("amount", event.Amount),
		zap.Int64("balance", res.BalanceAfter),
		zap.Int64("resumed", resumed),
	)
	return nil
}

func validateEvent(event *paymentdomain.PaymentEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	switch event.Type {
	case paymentdomain.EventTypeChargeSucceeded,
		paymentdomain.EventTypeChargeFailed,
		paymentdomain.EventTypeSubscriptionCancelled:
	default:
		return paymentdomain.ErrInvalidEvent
	}
	event.CustomerRef = strings.TrimSpace(event.CustomerRef)
	if event.CustomerRef == "" {
		return paymentdomain.ErrInvalidCustomer
	}
	if event.Amount < 0 {
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}
