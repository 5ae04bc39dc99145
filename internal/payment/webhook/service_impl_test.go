package webhook_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/smallbiznis/kigyomail/internal/config"
	ledgerservice "github.com/smallbiznis/kigyomail/internal/ledger/service"
	"github.com/smallbiznis/kigyomail/internal/payment/adapters"
	"github.com/smallbiznis/kigyomail/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/kigyomail/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/kigyomail/internal/payment/repository"
	paymentservice "github.com/smallbiznis/kigyomail/internal/payment/service"
	paymentwebhook "github.com/smallbiznis/kigyomail/internal/payment/webhook"
	subscriptionrepo "github.com/smallbiznis/kigyomail/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/kigyomail/internal/subscription/service"
	"github.com/smallbiznis/kigyomail/internal/testutil/dbtest"
	usagerepo "github.com/smallbiznis/kigyomail/internal/usage/repository"
	usageservice "github.com/smallbiznis/kigyomail/internal/usage/service"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test_123"

func setup(t *testing.T, secret string) (paymentdomain.Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	log := zap.NewNop()
	cfg := config.Config{Timezone: "Asia/Tokyo", UnitPrice: 380, StripeWebhookSecret: secret}

	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB:     db,
		Log:    log,
		GenID:  node,
		Config: cfg,
		Repo:   paymentrepo.Provide(),
		LedgerSvc: ledgerservice.NewService(ledgerservice.Params{
			DB: db, Log: log, GenID: node,
		}),
		UsageSvc: usageservice.NewService(usageservice.ServiceParam{
			DB: db, Log: log, GenID: node, Repo: usagerepo.Provide(), Config: cfg,
		}),
		SubscriptionSvc: subscriptionservice.NewService(subscriptionservice.Params{
			DB: db, Log: log, Repo: subscriptionrepo.Provide(),
		}),
	})

	svc := paymentwebhook.NewService(paymentwebhook.Params{
		Log:        log,
		PaymentSvc: paymentSvc,
		Adapters:   adapters.NewRegistry(stripe.NewFactory()),
		Cfg:        cfg,
	})
	return svc, db
}

func sign(payload []byte, secret string) http.Header {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	header := http.Header{}
	header.Set("Stripe-Signature", signed.Header)
	return header
}

func invoicePaid(eventID, customer string, amount int64) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"object":"event","type":"invoice.paid","created":1715480000,"data":{"object":{"id":"in_%s","object":"invoice","customer":%q,"amount_paid":%d,"currency":"jpy"}}}`,
		eventID, eventID, customer, amount,
	))
}

func balanceOf(t *testing.T, db *gorm.DB, id int64) int64 {
	t.Helper()
	var balance int64
	if err := db.Raw(`SELECT balance FROM profiles WHERE id = ?`, id).Scan(&balance).Error; err != nil {
		t.Fatalf("read balance: %v", err)
	}
	return balance
}

func TestReplayDoesNotDoubleCredit(t *testing.T) {
	svc, db := setup(t, webhookSecret)
	ctx := context.Background()
	dbtest.SeedProfile(t, db, dbtest.Profile{ID: 1, StripeCustomerID: "cus_1", Balance: 1000})
	dbtest.SeedSubscription(t, db, dbtest.Subscription{ID: 10, UserID: 1, Prefecture: "東京都", Status: "paused"})

	payload := invoicePaid("evt_1", "cus_1", 3800)
	if err := svc.IngestWebhook(ctx, "stripe", payload, sign(payload, webhookSecret)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	err := svc.IngestWebhook(ctx, "stripe", payload, sign(payload, webhookSecret))
	if !errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
		t.Fatalf("expected already processed, got %v", err)
	}

	if got := balanceOf(t, db, 1); got != 4800 {
		t.Fatalf("expected 4800, got %d", got)
	}
	if n := dbtest.Count(t, db, `SELECT COUNT(1) FROM subscriptions WHERE id = 10 AND status = 'active'`); n != 1 {
		t.Fatalf("expected paused subscription to resume")
	}
	if n := dbtest.Count(t, db, `SELECT COUNT(1) FROM monthly_usage WHERE user_id = 1 AND charged_amount = 3800 AND payment_status = 'charged'`); n != 1 {
		t.Fatalf("expected one monthly usage charge")
	}
	if n := dbtest.Count(t, db, `SELECT COUNT(1) FROM payment_events WHERE processed_at IS NOT NULL`); n != 1 {
		t.Fatalf("expected processed event row")
	}
}

func TestSmallChargeDoesNotResume(t *testing.T) {
	svc, db := setup(t, webhookSecret)
	dbtest.SeedProfile(t, db, dbtest.Profile{ID: 1, StripeCustomerID: "cus_1", Balance: 0})
	dbtest.SeedSubscription(t, db, dbtest.Subscription{ID: 10, UserID: 1, Prefecture: "東京都", Status: "paused"})

	payload := invoicePaid("evt_small", "cus_1", 100)
	if err := svc.IngestWebhook(context.Background(), "stripe", payload, sign(payload, webhookSecret)); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if got := balanceOf(t, db, 1); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
	if n := dbtest.Count(t, db, `SELECT COUNT(1) FROM subscriptions WHERE status = 'paused'`); n != 1 {
		t.Fatalf("charge below unit price must not resume")
	}
}

func TestFailedAttemptIsRetriedOnRedelivery(t *testing.T) {
	svc, db := setup(t, webhookSecret)
	ctx := context.Background()
	dbtest.SeedProfile(t, db, dbtest.Profile{ID: 1, StripeCustomerID: "cus_1", Balance: 1000})

	// Break the usage write so the first attempt rolls back.
	if err := db.Exec(`ALTER TABLE monthly_usage RENAME TO monthly_usage_off`).Error; err != nil {
		t.Fatalf("rename: %v", err)
	}
	payload := invoicePaid("evt_retry", "cus_1", 3800)
	if err := svc.IngestWebhook(ctx, "stripe", payload, sign(payload, webhookSecret)); err == nil {
		t.Fatalf("expected first attempt to fail")
	}
	if got := balanceOf(t, db, 1); got != 1000 {
		t.Fatalf("failed attempt must not credit, got %d", got)
	}
	if n := dbtest.Count(t, db, `SELECT COUNT(1) FROM payment_events WHERE processed_at IS NULL`); n != 1 {
		t.Fatalf("expected unprocessed event row")
	}

	if err := db.Exec(`ALTER TABLE monthly_usage_off RENAME TO monthly_usage`).Error; err != nil {
		t.Fatalf("rename back: %v", err)
	}
	if err := svc.IngestWebhook(ctx, "stripe", payload, sign(payload, webhookSecret)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if got := balanceOf(t, db, 1); got != 4800 {
		t.Fatalf("expected 4800 after retry, got %d", got)
	}
}

func TestChargeFailedPausesSubscriptions(t *testing.T) {
	svc, db := setup(t, webhookSecret)
	dbtest.SeedProfile(t, db, dbtest.Profile{ID: 1, StripeCustomerID: "cus_1", Balance: 1000})
	dbtest.SeedSubscription(t, db, dbtest.Subscription{ID: 10, UserID: 1, Prefecture: "東京都"})

	payload := []byte(`{"id":"evt_f","object":"event","type":"invoice.payment_failed","data":{"object":{"id":"in_f","object":"invoice","customer":"cus_1","amount_paid":0,"currency":"jpy"}}}`)
	if err := svc.IngestWebhook(context.Background(), "stripe", payload, sign(payload, webhookSecret)); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if n := dbtest.Count(t, db, `SELECT COUNT(1) FROM subscriptions WHERE status = 'paused'`); n != 1 {
		t.Fatalf("expected subscription paused")
	}
	if got := balanceOf(t, db, 1); got != 1000 {
		t.Fatalf("balance must not change, got %d", got)
	}
}

func TestSubscriptionDeletedCancelsAndKeepsBalance(t *testing.T) {
	svc, db := setup(t, webhookSecret)
	dbtest.SeedProfile(t, db, dbtest.Profile{ID: 1, StripeCustomerID: "cus_1", Balance: 2500})
	dbtest.SeedSubscription(t, db, dbtest.Subscription{ID: 10, UserID: 1, Prefecture: "東京都"})
	dbtest.SeedSubscription(t, db, dbtest.Subscription{ID: 11, UserID: 1, Prefecture: "大阪府", Status: "paused"})

	payload := []byte(`{"id":"evt_d","object":"event","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_1"}}}`)
	if err := svc.IngestWebhook(context.Background(), "stripe", payload, sign(payload, webhookSecret)); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if n := dbtest.Count(t, db, `SELECT COUNT(1) FROM subscriptions WHERE status = 'cancelled'`); n != 2 {
		t.Fatalf("expected both subscriptions cancelled, got %d", n)
	}
	if n := dbtest.Count(t, db, `SELECT COUNT(1) FROM profiles WHERE id = 1 AND stripe_subscription_id IS NULL AND balance = 2500`); n != 1 {
		t.Fatalf("expected cleared subscription ref with balance kept")
	}
}

func TestUnknownCustomerIsMarkedProcessed(t *testing.T) {
	svc, db := setup(t, webhookSecret)

	payload := invoicePaid("evt_unknown", "cus_missing", 3800)
	err := svc.IngestWebhook(context.Background(), "stripe", payload, sign(payload, webhookSecret))
	if !errors.Is(err, paymentdomain.ErrCustomerNotFound) {
		t.Fatalf("expected customer not found, got %v", err)
	}
	if n := dbtest.Count(t, db, `SELECT COUNT(1) FROM payment_events WHERE processed_at IS NOT NULL`); n != 1 {
		t.Fatalf("expected event marked processed")
	}
}

func TestRejectedDeliveriesMutateNothing(t *testing.T) {
	svc, db := setup(t, webhookSecret)
	dbtest.SeedProfile(t, db, dbtest.Profile{ID: 1, StripeCustomerID: "cus_1", Balance: 1000})
	payload := invoicePaid("evt_bad", "cus_1", 3800)

	if err := svc.IngestWebhook(context.Background(), "stripe", payload, sign(payload, "whsec_wrong")); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	if err := svc.IngestWebhook(context.Background(), "stripe", payload, http.Header{}); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for missing header, got %v", err)
	}
	if err := svc.IngestWebhook(context.Background(), "paypal", payload, sign(payload, webhookSecret)); !errors.Is(err, paymentdomain.ErrProviderNotFound) {
		t.Fatalf("expected provider not found, got %v", err)
	}
	if n := dbtest.Count(t, db, `SELECT COUNT(1) FROM payment_events`); n != 0 {
		t.Fatalf("rejected deliveries must not record events")
	}
	if got := balanceOf(t, db, 1); got != 1000 {
		t.Fatalf("balance changed to %d", got)
	}
}

func TestMissingSecretRejects(t *testing.T) {
	svc, _ := setup(t, "")
	payload := invoicePaid("evt_ns", "cus_1", 3800)
	err := svc.IngestWebhook(context.Background(), "stripe", payload, sign(payload, webhookSecret))
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestIgnoredEventIsAccepted(t *testing.T) {
	svc, db := setup(t, webhookSecret)
	payload := []byte(`{"id":"evt_i","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)
	if err := svc.IngestWebhook(context.Background(), "stripe", payload, sign(payload, webhookSecret)); err != nil {
		t.Fatalf("expected ignored event to be accepted, got %v", err)
	}
	if n := dbtest.Count(t, db, `SELECT COUNT(1) FROM payment_events`); n != 0 {
		t.Fatalf("ignored events are not recorded")
	}
}
