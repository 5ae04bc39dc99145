package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/kigyomail/internal/payment/domain"
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	ProviderName    = "stripe"
	SignatureHeader = "Stripe-Signature"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret, ok := cfg.Config["webhook_secret"].(string)
	if !ok || strings.TrimSpace(secret) == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Adapter{webhookSecret: strings.TrimSpace(secret)}, nil
}

type Adapter struct {
	webhookSecret string
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}
	_, err := webhook.ConstructEventWithOptions(payload, sigHeader, a.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

// Parse maps the Stripe events that move money or access onto canonical
// events. Every other type is ErrEventIgnored.
func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event stripelib.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || event.Data == nil {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch event.Type {
	case stripelib.EventTypeInvoicePaid:
		return a.parseInvoice(event, payload, paymentdomain.EventTypeChargeSucceeded)
	case stripelib.EventTypeInvoicePaymentFailed:
		return a.parseInvoice(event, payload, paymentdomain.EventTypeChargeFailed)
	case stripelib.EventTypeCustomerSubscriptionDeleted:
		return a.parseSubscription(event, payload)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

func (a *Adapter) parseInvoice(event stripelib.Event, payload []byte, eventType string) (*paymentdomain.PaymentEvent, error) {
	var invoice stripelib.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	customer := customerRef(invoice.Customer)
	if customer == "" {
		return nil, paymentdomain.ErrInvalidCustomer
	}

	out := &paymentdomain.PaymentEvent{
		Provider:        ProviderName,
		ProviderEventID: event.ID,
		Type:            eventType,
		CustomerRef:     customer,
		Currency:        strings.ToUpper(string(invoice.Currency)),
		InvoiceRef:      invoice.ID,
		OccurredAt:      timestamp(event.Created),
		RawPayload:      payload,
	}
	if eventType == paymentdomain.EventTypeChargeSucceeded {
		out.Amount = invoice.AmountPaid
	}
	return out, nil
}

func (a *Adapter) parseSubscription(event stripelib.Event, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var sub stripelib.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	customer := customerRef(sub.Customer)
	if customer == "" {
		return nil, paymentdomain.ErrInvalidCustomer
	}

	return &paymentdomain.PaymentEvent{
		Provider:        ProviderName,
		ProviderEventID: event.ID,
		Type:            paymentdomain.EventTypeSubscriptionCancelled,
		CustomerRef:     customer,
		SubscriptionRef: sub.ID,
		OccurredAt:      timestamp(event.Created),
		RawPayload:      payload,
	}, nil
}

func customerRef(c *stripelib.Customer) string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.ID)
}

func timestamp(created int64) time.Time {
	if created == 0 {
		return time.Now().UTC()
	}
	return time.Unix(created, 0).UTC()
}
