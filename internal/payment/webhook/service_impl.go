package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/kigyomail/internal/config"
	"github.com/smallbiznis/kigyomail/internal/payment/adapters"
	"github.com/smallbiznis/kigyomail/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/kigyomail/internal/payment/domain"
	paymentservice "github.com/smallbiznis/kigyomail/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc *paymentservice.Service
	Adapters   *adapters.Registry
	Cfg        config.Config
}

type Service struct {
	log        *zap.Logger
	paymentSvc *paymentservice.Service
	adapters   *adapters.Registry
	configs    map[string]map[string]any
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
		configs: map[string]map[string]any{
			stripe.ProviderName: {"webhook_secret": p.Cfg.StripeWebhookSecret},
		},
	}
}

// IngestWebhook verifies, parses and processes one delivery. Nothing is
// written before the signature checks out.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}

	adapter, err := s.adapters.NewAdapter(provider, paymentdomain.AdapterConfig{
		Provider: provider,
		Config:   s.configs[provider],
	})
	if err != nil {
		if errors.Is(err, paymentdomain.ErrInvalidConfig) {
			s.log.Warn("payment webhook secret not configured", zap.String("provider", provider))
			return paymentdomain.ErrInvalidSignature
		}
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("payment webhook ignored", zap.String("provider", provider))
			return nil
		}
		if errors.Is(err, paymentdomain.ErrInvalidCustomer) {
			s.log.Warn("payment webhook missing customer", zap.String("provider", provider))
		}
		return err
	}
	if event.RawPayload == nil {
		event.RawPayload = payload
	}
	event.Provider = provider

	if s.paymentSvc == nil {
		return errors.New("payment_service_unavailable")
	}
	return s.paymentSvc.ProcessEvent(ctx, event, payload)
}
