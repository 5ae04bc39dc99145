package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/kigyomail/internal/clock"
	"github.com/smallbiznis/kigyomail/internal/corporation/domain"
	"github.com/smallbiznis/kigyomail/internal/corporation/repository"
	"github.com/smallbiznis/kigyomail/internal/corporation/service"
	registrydomain "github.com/smallbiznis/kigyomail/internal/registry/domain"
	"github.com/smallbiznis/kigyomail/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T, db *gorm.DB, clk clock.Clock) domain.Service {
	t.Helper()
	return service.NewService(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: dbtest.Node(t),
		Repo:  repository.Provide(),
		Clock: clk,
	})
}

func record(number, name, city string) registrydomain.RawRecord {
	return registrydomain.RawRecord{
		CorporateNumber: number,
		ProcessType:     "01",
		EntityType:      "301",
		Name:            name,
		Prefecture:      "東京都",
		City:            city,
		PostalCode:      "1500043",
	}
}

type snapshotRow struct {
	CorporateNumber string
	CompanyName     string
	City            string
	CSVDate         string `gorm:"column:csv_date"`
}

func snapshot(t *testing.T, db *gorm.DB) []snapshotRow {
	t.Helper()
	var rows []snapshotRow
	require.NoError(t, db.Raw(`SELECT corporate_number, company_name, city, csv_date FROM corporations ORDER BY corporate_number`).Scan(&rows).Error)
	return rows
}

func TestUpsertBatchIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	clk := clock.NewFakeClock(time.Date(2025, 5, 12, 9, 0, 0, 0, time.UTC))
	svc := newService(t, db, clk)

	records := []registrydomain.RawRecord{
		record("1000000000001", "株式会社アルファ", "渋谷区"),
		record("1000000000002", "合同会社ベータ", "新宿区"),
	}

	first := svc.UpsertBatch(ctx, records, "20250512")
	assert.Equal(t, domain.UpsertResult{Inserted: 2}, first)
	before := snapshot(t, db)

	clk.Advance(time.Hour)
	second := svc.UpsertBatch(ctx, records, "20250512")
	assert.Equal(t, domain.UpsertResult{Updated: 2}, second)

	assert.Equal(t, before, snapshot(t, db))
	assert.EqualValues(t, 2, dbtest.Count(t, db, `SELECT COUNT(1) FROM corporations`))
}

func TestUpsertOverwritesMutableFields(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	svc := newService(t, db, nil)

	require.NoError(t, svc.Upsert(ctx, record("1000000000001", "株式会社旧商号", "渋谷区"), "20250512"))
	require.NoError(t, svc.Upsert(ctx, record("1000000000001", "株式会社新商号", "港区"), "20250513"))

	rows := snapshot(t, db)
	require.Len(t, rows, 1)
	assert.Equal(t, "株式会社新商号", rows[0].CompanyName)
	assert.Equal(t, "港区", rows[0].City)
	assert.Equal(t, "20250513", rows[0].CSVDate)
}

func TestUpsertBatchIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	svc := newService(t, db, nil)

	result := svc.UpsertBatch(ctx, []registrydomain.RawRecord{
		record("1000000000001", "株式会社アルファ", "渋谷区"),
		record("   ", "株式会社番号なし", "渋谷区"),
		record("1000000000001", "株式会社アルファ", "渋谷区"),
	}, "20250512")

	assert.Equal(t, domain.UpsertResult{Inserted: 1, Updated: 1, Failed: 1}, result)
}

func TestUpsertRejectsBadCSVDate(t *testing.T) {
	svc := newService(t, dbtest.Open(t), nil)
	err := svc.Upsert(context.Background(), record("1000000000001", "株式会社", "渋谷区"), "2025-05-12")
	require.ErrorIs(t, err, domain.ErrInvalidCSVDate)
}

func TestResolveIDs(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	svc := newService(t, db, nil)

	svc.UpsertBatch(ctx, []registrydomain.RawRecord{record("1000000000001", "株式会社アルファ", "渋谷区")}, "20250512")

	ids, err := svc.ResolveIDs(ctx, []string{"1000000000001", "9999999999999"})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.NotZero(t, ids["1000000000001"])
}
