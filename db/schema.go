// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation and initialization
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT,
	start_utc DATETIME NOT NULL,
	end_utc DATETIME NOT NULL,
	time_zone TEXT,
	is_all_day INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL CHECK(status IN ('confirmed', 'tentative', 'cancelled')),
	color TEXT NOT NULL DEFAULT 'blue',
	recurrence_rule TEXT,
	recurring_event_id TEXT,
	original_start_utc DATETIME,
	version INTEGER NOT NULL DEFAULT 1,
	external_event_id TEXT,
	external_calendar_id TEXT,
	external_revision_tag TEXT,
	external_synced_at DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_user_start ON events(user_id, start_utc);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_user_external
	ON events(user_id, external_event_id) WHERE external_event_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	metadata TEXT,
	read INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at);

CREATE TABLE IF NOT EXISTS sync_state (
	user_id TEXT PRIMARY KEY,
	status TEXT NOT NULL CHECK(status IN ('idle', 'syncing', 'error')),
	error_message TEXT,
	started_at DATETIME,
	finished_at DATETIME,
	imported_count INTEGER NOT NULL DEFAULT 0,
	skipped_count INTEGER NOT NULL DEFAULT 0,
	conflict_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// InitSchema creates all tables and indexes if they don't exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
