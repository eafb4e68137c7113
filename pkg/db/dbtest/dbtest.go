// Package dbtest opens isolated in-memory sqlite databases for repository tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Schema mirrors the postgres migrations with sqlite-compatible column types.
// Arrays are stored as their postgres literal text.
var Schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		external_subject TEXT UNIQUE,
		email TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		image_url TEXT,
		discord_id TEXT UNIQUE,
		discord_roles TEXT NOT NULL DEFAULT '{}',
		roles_version INTEGER NOT NULL DEFAULT 0,
		stripe_customer_id TEXT UNIQUE,
		subscription_status TEXT NOT NULL DEFAULT 'inactive',
		subscription_plan TEXT,
		subscription_event_at DATETIME,
		is_admin BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE videos (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		mux_asset_id TEXT,
		mux_playback_id TEXT,
		thumbnail_url TEXT,
		is_published BOOLEAN NOT NULL DEFAULT 0,
		transcript TEXT,
		ai_summary TEXT,
		chapters TEXT,
		required_roles TEXT,
		duration_seconds INTEGER,
		tags TEXT NOT NULL DEFAULT '{}',
		uploaded_by TEXT,
		source TEXT NOT NULL DEFAULT 'manual',
		source_ref TEXT,
		source_url TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX videos_source_ref_key ON videos (source, source_ref)`,
	`CREATE TABLE video_progress (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		video_id TEXT NOT NULL,
		position_seconds INTEGER NOT NULL DEFAULT 0,
		completed BOOLEAN NOT NULL DEFAULT 0,
		last_watched_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (user_id, video_id)
	)`,
	`CREATE TABLE daily_learning_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		log_date TEXT NOT NULL,
		seconds_watched INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (user_id, log_date)
	)`,
	`CREATE TABLE audit_logs (
		id TEXT PRIMARY KEY,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT NOT NULL,
		detail TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE processed_events (
		provider TEXT NOT NULL,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		processed_at DATETIME NOT NULL,
		PRIMARY KEY (provider, event_id)
	)`,
}

// Open returns a fresh in-memory database with the full schema applied.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("failed to get sql handle: %v", err)
	}
	// the named memory database lives as long as one pooled connection does
	sqlDB.SetMaxIdleConns(4)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to apply schema: %v", err)
		}
	}
	return conn
}
