package database

import (
	"context"
	"fmt"
)

// schemaStatements create the service tables. Each statement is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS emergencies (
		id TEXT PRIMARY KEY,
		emergency_type TEXT NOT NULL,
		priority_level TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		location_lat DOUBLE PRECISION,
		location_lon DOUBLE PRECISION,
		response_plan JSONB NOT NULL,
		estimated_response_time INTEGER,
		actual_response_time INTEGER,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_emergencies_created_at ON emergencies (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS emergency_status_updates (
		id TEXT PRIMARY KEY,
		emergency_id TEXT NOT NULL REFERENCES emergencies(id),
		old_status TEXT NOT NULL,
		new_status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_status_updates_emergency ON emergency_status_updates (emergency_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS service_availability (
		service_type TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		available_units INTEGER NOT NULL DEFAULT 0,
		average_response_time INTEGER,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notification_subscriptions (
		id TEXT PRIMARY KEY,
		subscriber_type TEXT NOT NULL,
		subscriber_id TEXT NOT NULL,
		notification_type TEXT NOT NULL,
		channel TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (subscriber_type, subscriber_id, notification_type, channel)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_type ON notification_subscriptions (notification_type)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		emergency_id TEXT REFERENCES emergencies(id),
		recipient_type TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		notification_type TEXT NOT NULL,
		message TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		sent_at TIMESTAMPTZ,
		delivered_at TIMESTAMPTZ,
		failed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications (recipient_id, created_at DESC)`,
}

// Migrate creates the service tables when they do not exist.
func (c *PostgresClient) Migrate(ctx context.Context) error {
	for i, stmt := range schemaStatements {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
