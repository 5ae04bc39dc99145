package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/kigyomail/internal/batchlog/domain"
	"github.com/smallbiznis/kigyomail/internal/batchlog/repository"
	"github.com/smallbiznis/kigyomail/internal/batchlog/service"
	"github.com/smallbiznis/kigyomail/internal/clock"
	"github.com/smallbiznis/kigyomail/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	db := dbtest.Open(t)
	fc := clock.NewFakeClock(time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC))
	svc := service.NewService(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: dbtest.Node(t),
		Repo:  repository.Provide(),
		Clock: fc,
	})
	return svc, db, fc
}

func TestStartAndComplete(t *testing.T) {
	svc, db, fc := newService(t)
	ctx := context.Background()

	entry, err := svc.Start(ctx, domain.BatchTypeFetchCorporations, "20250512")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, entry.Status)

	fc.Advance(90 * time.Second)
	require.NoError(t, svc.Complete(ctx, entry.ID, domain.Counters{
		TotalRecords:         120,
		NewCompanies:         4,
		MatchedSubscriptions: 2,
		QueuedCount:          3,
	}))

	var stored domain.BatchLog
	require.NoError(t, db.Where("id = ?", entry.ID).First(&stored).Error)
	assert.Equal(t, domain.StatusCompleted, stored.Status)
	assert.Equal(t, "20250512", stored.CSVDate)
	assert.Equal(t, 120, stored.TotalRecords)
	assert.Equal(t, 4, stored.NewCompanies)
	assert.Equal(t, 2, stored.MatchedSubscriptions)
	assert.Equal(t, 3, stored.QueuedCount)
	assert.Nil(t, stored.ErrorMessage)
	require.NotNil(t, stored.CompletedAt)
	assert.Equal(t, 90*time.Second, stored.CompletedAt.Sub(stored.StartedAt))
}

func TestFailStoresMessage(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()

	entry, err := svc.Start(ctx, domain.BatchTypeLockQueue, "")
	require.NoError(t, err)
	require.NoError(t, svc.Fail(ctx, entry.ID, errors.New("registry unreachable")))

	var stored domain.BatchLog
	require.NoError(t, db.Where("id = ?", entry.ID).First(&stored).Error)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "registry unreachable", *stored.ErrorMessage)
}

func TestFailTruncatesLongMessages(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()

	entry, err := svc.Start(ctx, domain.BatchTypeSettleBilling, "")
	require.NoError(t, err)
	require.NoError(t, svc.Fail(ctx, entry.ID, errors.New(strings.Repeat("x", 5000))))

	var stored domain.BatchLog
	require.NoError(t, db.Where("id = ?", entry.ID).First(&stored).Error)
	require.NotNil(t, stored.ErrorMessage)
	assert.Len(t, *stored.ErrorMessage, 2000)
}

func TestFinaliseOnlyOnce(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	entry, err := svc.Start(ctx, domain.BatchTypeLockQueue, "")
	require.NoError(t, err)
	require.NoError(t, svc.Complete(ctx, entry.ID, domain.Counters{QueuedCount: 1}))

	if err := svc.Fail(ctx, entry.ID, errors.New("late")); !errors.Is(err, domain.ErrAlreadyFinalised) {
		t.Fatalf("expected ErrAlreadyFinalised, got %v", err)
	}
	if err := svc.Complete(ctx, entry.ID, domain.Counters{}); !errors.Is(err, domain.ErrAlreadyFinalised) {
		t.Fatalf("expected ErrAlreadyFinalised, got %v", err)
	}
}

func TestStartRejectsUnknownType(t *testing.T) {
	svc, _, _ := newService(t)
	if _, err := svc.Start(context.Background(), domain.BatchType("reindex"), ""); !errors.Is(err, domain.ErrInvalidBatchType) {
		t.Fatalf("expected ErrInvalidBatchType, got %v", err)
	}
}

func TestListNewestFirstWithFilters(t *testing.T) {
	svc, _, fc := newService(t)
	ctx := context.Background()

	first, err := svc.Start(ctx, domain.BatchTypeFetchCorporations, "20250511")
	require.NoError(t, err)
	fc.Advance(time.Hour)
	second, err := svc.Start(ctx, domain.BatchTypeLockQueue, "")
	require.NoError(t, err)
	fc.Advance(time.Hour)
	third, err := svc.Start(ctx, domain.BatchTypeFetchCorporations, "20250512")
	require.NoError(t, err)
	require.NoError(t, svc.Complete(ctx, third.ID, domain.Counters{}))

	all, err := svc.List(ctx, domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
	assert.Equal(t, first.ID, all[2].ID)

	fetches, err := svc.List(ctx, domain.ListRequest{BatchType: domain.BatchTypeFetchCorporations, Limit: 1})
	require.NoError(t, err)
	require.Len(t, fetches, 1)
	assert.Equal(t, third.ID, fetches[0].ID)

	running, err := svc.List(ctx, domain.ListRequest{Status: domain.StatusRunning})
	require.NoError(t, err)
	assert.Len(t, running, 2)
}

func TestListValidatesRange(t *testing.T) {
	svc, _, _ := newService(t)
	start := time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	_, err := svc.List(context.Background(), domain.ListRequest{StartAt: &start, EndAt: &end})
	if !errors.Is(err, domain.ErrInvalidTimeRange) {
		t.Fatalf("expected ErrInvalidTimeRange, got %v", err)
	}
	_, err = svc.List(context.Background(), domain.ListRequest{Status: domain.Status("paused")})
	if !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}
