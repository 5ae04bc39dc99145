package stripe

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/kigyomail/internal/payment/domain"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testSecret = "whsec_test"

func signedHeader(secret string, payload []byte) http.Header {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	header := http.Header{}
	header.Set(SignatureHeader, signed.Header)
	return header
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"invoice.paid","data":{"object":{}}}`)
	adapter := &Adapter{webhookSecret: testSecret}

	if err := adapter.Verify(context.Background(), payload, signedHeader(testSecret, payload)); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if err := adapter.Verify(context.Background(), payload, signedHeader("whsec_wrong", payload)); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	if err := adapter.Verify(context.Background(), payload, http.Header{}); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for missing header, got %v", err)
	}
}

func TestFactoryRequiresSecret(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{Config: map[string]any{"webhook_secret": " "}})
	if !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}

func TestParse(t *testing.T) {
	adapter := &Adapter{webhookSecret: testSecret}

	tests := []struct {
		name     string
		payload  string
		wantType string
		amount   int64
		customer string
		wantErr  error
	}{
		{
			name:     "invoice paid",
			payload:  `{"id":"evt_paid","object":"event","type":"invoice.paid","created":1715480000,"data":{"object":{"id":"in_1","object":"invoice","customer":"cus_1","amount_paid":3800,"currency":"jpy"}}}`,
			wantType: paymentdomain.EventTypeChargeSucceeded,
			amount:   3800,
			customer: "cus_1",
		},
		{
			name:     "invoice payment failed",
			payload:  `{"id":"evt_failed","object":"event","type":"invoice.payment_failed","data":{"object":{"id":"in_2","object":"invoice","customer":"cus_1","amount_paid":0,"currency":"jpy"}}}`,
			wantType: paymentdomain.EventTypeChargeFailed,
			customer: "cus_1",
		},
		{
			name:     "subscription deleted",
			payload:  `{"id":"evt_del","object":"event","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_9"}}}`,
			wantType: paymentdomain.EventTypeSubscriptionCancelled,
			customer: "cus_9",
		},
		{
			name:    "unhandled type",
			payload: `{"id":"evt_x","object":"event","type":"charge.refunded","data":{"object":{}}}`,
			wantErr: paymentdomain.ErrEventIgnored,
		},
		{
			name:    "missing customer",
			payload: `{"id":"evt_nc","object":"event","type":"invoice.paid","data":{"object":{"id":"in_3","object":"invoice","amount_paid":100}}}`,
			wantErr: paymentdomain.ErrInvalidCustomer,
		},
		{
			name:    "not json",
			payload: `nope`,
			wantErr: paymentdomain.ErrInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := adapter.Parse(context.Background(), []byte(tt.payload))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if event.Type != tt.wantType || event.Amount != tt.amount || event.CustomerRef != tt.customer {
				t.Fatalf("unexpected event: %+v", event)
			}
			if event.Provider != ProviderName {
				t.Fatalf("unexpected provider %q", event.Provider)
			}
		})
	}
}
