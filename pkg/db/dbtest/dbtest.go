// Package dbtest opens throwaway sqlite databases with the service schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/linguamate-backend/pkg/db"
)

// sqlite mirror of pkg/migrate/migrations. Keep the two in step.
var schema = []string{
	`CREATE TABLE subscriptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		tier TEXT NOT NULL DEFAULT 'free',
		billing_customer_ref TEXT NOT NULL DEFAULT '',
		billing_subscription_ref TEXT NOT NULL DEFAULT '',
		current_period_start DATETIME NOT NULL,
		current_period_end DATETIME NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 0,
		days_remaining INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE INDEX subscriptions_user_ref_idx ON subscriptions (user_id, billing_subscription_ref)`,
	`CREATE TABLE daily_usage (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		date TEXT NOT NULL,
		conversations_count INTEGER NOT NULL DEFAULT 0,
		characters_used INTEGER NOT NULL DEFAULT 0,
		minutes_used INTEGER NOT NULL DEFAULT 0,
		subscription_tier TEXT NOT NULL,
		limit_reached INTEGER NOT NULL DEFAULT 0,
		last_reset_at DATETIME NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT daily_usage_user_date_key UNIQUE (user_id, date)
	)`,
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		full_name TEXT NOT NULL DEFAULT '',
		subscription_tier TEXT NOT NULL DEFAULT 'free',
		is_premium INTEGER NOT NULL DEFAULT 0,
		total_conversations INTEGER NOT NULL DEFAULT 0,
		total_characters_used INTEGER NOT NULL DEFAULT 0,
		total_minutes_used INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
}

// Open returns an isolated in-memory database with every table created. The
// pool is pinned to one connection so concurrent tests serialise on it.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), db.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}
