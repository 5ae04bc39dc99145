package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/kigyomail/internal/subscription/domain"
	"github.com/smallbiznis/kigyomail/internal/subscription/repository"
	"github.com/smallbiznis/kigyomail/internal/subscription/service"
	"github.com/smallbiznis/kigyomail/internal/testutil/dbtest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	svc := service.NewService(service.Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: repository.Provide(),
	})
	return svc, db
}

func statusOf(t *testing.T, db *gorm.DB, id any) string {
	t.Helper()
	var status string
	if err := db.Raw(`SELECT status FROM subscriptions WHERE id = ?`, id).Scan(&status).Error; err != nil {
		t.Fatalf("read status: %v", err)
	}
	return status
}

func TestToggleFlipsActiveAndPaused(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	dbtest.SeedSubscription(t, db, dbtest.Subscription{ID: 10, UserID: 1, Prefecture: "東京都", City: "渋谷", MaxLetters: 20})

	status, err := svc.Toggle(ctx, 1, 10)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if status != domain.SubscriptionStatusPaused || statusOf(t, db, 10) != "paused" {
		t.Fatalf("expected paused, got %s", status)
	}

	status, err = svc.Toggle(ctx, 1, 10)
	if err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if status != domain.SubscriptionStatusActive || statusOf(t, db, 10) != "active" {
		t.Fatalf("expected active, got %s", status)
	}
}

func TestToggleIsScopedToOwner(t *testing.T) {
	svc, db := newService(t)
	dbtest.SeedSubscription(t, db, dbtest.Subscription{ID: 10, UserID: 1, Prefecture: "東京都"})

	_, err := svc.Toggle(context.Background(), 2, 10)
	if !errors.Is(err, domain.ErrSubscriptionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if statusOf(t, db, 10) != "active" {
		t.Fatalf("foreign toggle must not change status")
	}
}

func TestCancelledIsTerminal(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	dbtest.SeedSubscription(t, db, dbtest.Subscription{ID: 10, UserID: 1, Prefecture: "東京都", Status: "paused"})

	if err := svc.Cancel(ctx, 1, 10); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := svc.Toggle(ctx, 1, 10); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on toggle, got %v", err)
	}
	if err := svc.Resume(ctx, 1, 10); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on resume, got %v", err)
	}
	if statusOf(t, db, 10) != "cancelled" {
		t.Fatalf("expected cancelled to stick")
	}
}

func TestPauseRequiresActive(t *testing.T) {
	svc, db := newService(t)
	dbtest.SeedSubscription(t, db, dbtest.Subscription{ID: 10, UserID: 1, Prefecture: "東京都", Status: "paused"})

	if err := svc.Pause(context.Background(), 1, 10); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestBulkTransitionsByCustomer(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	dbtest.SeedSubscription(t, db, dbtest.Subscription{ID: 10, UserID: 1, Prefecture: "東京都"})
	dbtest.SeedSubscription(t, db, dbtest.Subscription{ID: 11, UserID: 1, Prefecture: "大阪府"})
	dbtest.SeedSubscription(t, db, dbtest.Subscription{ID: 12, UserID: 1, Prefecture: "京都府", Status: "cancelled"})
	dbtest.SeedSubscription(t, db, dbtest.Subscription{ID: 20, UserID: 2, Prefecture: "東京都"})

	paused, err := svc.PauseByCustomer(ctx, db, 1)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused != 2 {
		t.Fatalf("expected 2 paused, got %d", paused)
	}
	if statusOf(t, db, 20) != "active" {
		t.Fatalf("other customer must stay active")
	}

	resumed, err := svc.ResumeByCustomer(ctx, nil, 1)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed != 2 {
		t.Fatalf("expected 2 resumed, got %d", resumed)
	}

	cancelled, err := svc.CancelByCustomer(ctx, db, 1)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled != 2 {
		t.Fatalf("expected 2 cancelled, got %d", cancelled)
	}
	if statusOf(t, db, 12) != "cancelled" {
		t.Fatalf("cancelled row should be untouched")
	}

	active, err := svc.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != 20 {
		t.Fatalf("expected only subscription 20 active, got %+v", active)
	}
}
