// Package dbtest opens throwaway in-memory SQLite databases carrying the
// kigyomail schema. It is imported from tests only.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE corporations (
		id BIGINT PRIMARY KEY,
		corporate_number TEXT NOT NULL,
		process_type TEXT NOT NULL,
		correction_type TEXT NOT NULL DEFAULT '',
		company_name TEXT NOT NULL,
		company_name_kana TEXT NOT NULL DEFAULT '',
		entity_type TEXT NOT NULL,
		prefecture TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		street_address TEXT NOT NULL DEFAULT '',
		prefecture_code TEXT NOT NULL DEFAULT '',
		city_code TEXT NOT NULL DEFAULT '',
		postal_code TEXT NOT NULL DEFAULT '',
		change_date TEXT NOT NULL DEFAULT '',
		update_date TEXT NOT NULL DEFAULT '',
		csv_date TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (corporate_number)
	)`,
	`CREATE TABLE profiles (
		id BIGINT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		company_name TEXT NOT NULL DEFAULT '',
		stripe_customer_id TEXT,
		stripe_subscription_id TEXT,
		balance BIGINT NOT NULL DEFAULT 0,
		plan_amount BIGINT NOT NULL DEFAULT 7600,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (stripe_customer_id)
	)`,
	`CREATE TABLE subscriptions (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		prefecture TEXT NOT NULL,
		city TEXT,
		area_label TEXT NOT NULL DEFAULT '',
		monthly_budget_limit BIGINT NOT NULL DEFAULT 0,
		max_letters_per_month INTEGER NOT NULL DEFAULT 0,
		greeting_text TEXT NOT NULL DEFAULT '',
		report_data TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE mailing_queue (
		id BIGINT PRIMARY KEY,
		subscription_id BIGINT NOT NULL,
		user_id BIGINT NOT NULL,
		corporation_id BIGINT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		scheduled_date DATE NOT NULL,
		unit_price BIGINT NOT NULL,
		balance_deducted BOOLEAN NOT NULL DEFAULT FALSE,
		sent_at DATETIME,
		cancelled_at DATETIME,
		cancel_reason TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (user_id, corporation_id)
	)`,
	`CREATE TABLE balance_transactions (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		source_type TEXT NOT NULL,
		source_id BIGINT NOT NULL,
		amount BIGINT NOT NULL,
		balance_after BIGINT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (source_type, source_id)
	)`,
	`CREATE TABLE monthly_usage (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL,
		year_month TEXT NOT NULL,
		total_sent INTEGER NOT NULL DEFAULT 0,
		total_amount BIGINT NOT NULL DEFAULT 0,
		charged_amount BIGINT NOT NULL DEFAULT 0,
		stripe_invoice_id TEXT,
		payment_status TEXT NOT NULL DEFAULT 'pending',
		paid_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (user_id, year_month)
	)`,
	`CREATE TABLE payment_events (
		id BIGINT PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		customer_ref TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME,
		UNIQUE (provider, provider_event_id)
	)`,
	`CREATE TABLE batch_logs (
		id BIGINT PRIMARY KEY,
		batch_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		csv_date TEXT NOT NULL DEFAULT '',
		total_records INTEGER NOT NULL DEFAULT 0,
		new_companies INTEGER NOT NULL DEFAULT 0,
		matched_subscriptions INTEGER NOT NULL DEFAULT 0,
		queued_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		started_at DATETIME NOT NULL,
		completed_at DATETIME
	)`,
}

// Open returns a fresh in-memory database with every table created.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:kigyomail_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}
	return db
}

// Node returns a snowflake node for test fixtures.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(int64(seq.Add(1) % 1024))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

// Profile is a minimal billing account fixture.
type Profile struct {
	ID               snowflake.ID
	Email            string
	StripeCustomerID string
	Balance          int64
	PlanAmount       int64
}

func SeedProfile(t testing.TB, db *gorm.DB, p Profile) {
	t.Helper()
	if p.PlanAmount == 0 {
		p.PlanAmount = 7600
	}
	var customerRef any
	if p.StripeCustomerID != "" {
		customerRef = p.StripeCustomerID
	}
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO profiles (id, email, stripe_customer_id, stripe_subscription_id, balance, plan_amount, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Email, customerRef, "sub_"+p.ID.String(), p.Balance, p.PlanAmount, now, now,
	).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}

// Subscription is a minimal area subscription fixture. An empty City means
// the whole prefecture.
type Subscription struct {
	ID         snowflake.ID
	UserID     snowflake.ID
	Prefecture string
	City       string
	MaxLetters int
	Status     string
}

func SeedSubscription(t testing.TB, db *gorm.DB, s Subscription) {
	t.Helper()
	if s.Status == "" {
		s.Status = "active"
	}
	var city any
	if s.City != "" {
		city = s.City
	}
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO subscriptions (id, user_id, prefecture, city, area_label, max_letters_per_month, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Prefecture, city, s.Prefecture+s.City, s.MaxLetters, s.Status, now, now,
	).Error; err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
}

// SeedCorporation inserts a new 株式会社 in the given area.
func SeedCorporation(t testing.TB, db *gorm.DB, id snowflake.ID, number, prefecture, city string) {
	t.Helper()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO corporations (id, corporate_number, process_type, company_name, entity_type, prefecture, city, csv_date, created_at, updated_at)
		 VALUES (?, ?, '01', ?, '301', ?, ?, '20250512', ?, ?)`,
		id, number, "株式会社"+number, prefecture, city, now, now,
	).Error; err != nil {
		t.Fatalf("seed corporation: %v", err)
	}
}

// QueueItem seeds a mailing_queue row.
type QueueItem struct {
	ID              snowflake.ID
	SubscriptionID  snowflake.ID
	UserID          snowflake.ID
	CorporationID   snowflake.ID
	Status          string
	ScheduledDate   string
	UnitPrice       int64
	BalanceDeducted bool
}

func SeedQueueItem(t testing.TB, db *gorm.DB, q QueueItem) {
	t.Helper()
	if q.UnitPrice == 0 {
		q.UnitPrice = 380
	}
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO mailing_queue (id, subscription_id, user_id, corporation_id, status, scheduled_date, unit_price, balance_deducted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.SubscriptionID, q.UserID, q.CorporationID, q.Status, q.ScheduledDate, q.UnitPrice, q.BalanceDeducted, now, now,
	).Error; err != nil {
		t.Fatalf("seed queue item: %v", err)
	}
}

// Count runs a COUNT query and returns the result.
func Count(t testing.TB, db *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Raw(query, args...).Scan(&n).Error; err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}
