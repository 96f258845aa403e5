// Package store provides database schema management for the local replica.
package store

import (
	"fmt"

	"github.com/adorsys-gis/dgat-sync/internal/models"
)

// recordTableDDL is the shared shape of every per-entity replica table.
// The payload is stored as opaque JSON; sync metadata lives alongside it.
const recordTableDDL = `
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	payload TEXT NOT NULL,
	updated_at INTEGER NOT NULL DEFAULT 0,
	sync_state TEXT NOT NULL DEFAULT 'synced'
		CHECK(sync_state IN ('synced', 'pending', 'failed')),
	local_changes INTEGER NOT NULL DEFAULT 0,
	last_synced INTEGER NOT NULL DEFAULT 0
);`

// engine bookkeeping tables
var engineDDL = []string{
	`CREATE TABLE IF NOT EXISTS sync_queue (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL DEFAULT '',
		operation TEXT NOT NULL
			CHECK(operation IN ('create', 'update', 'delete', 'submit', 'submit_review')),
		data TEXT NOT NULL DEFAULT '{}',
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		priority TEXT NOT NULL DEFAULT 'normal'
			CHECK(priority IN ('low', 'normal', 'high', 'critical')),
		next_retry_at INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		CHECK(retry_count >= 0 AND retry_count <= max_retries)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sync_queue_entity
		ON sync_queue(entity_type, entity_id, created_at);`,
	`CREATE TABLE IF NOT EXISTS conflicts (
		id TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		local_version TEXT NOT NULL,
		server_version TEXT NOT NULL,
		conflict_type TEXT NOT NULL
			CHECK(conflict_type IN ('timestamp', 'version', 'content')),
		resolution_strategy TEXT NOT NULL
			CHECK(resolution_strategy IN ('local_wins', 'server_wins', 'manual', 'merge')),
		resolved INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		resolved_at INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS sync_status (
		id INTEGER PRIMARY KEY CHECK(id = 1),
		is_online INTEGER NOT NULL DEFAULT 0,
		pending_items_count INTEGER NOT NULL DEFAULT 0,
		failed_items_count INTEGER NOT NULL DEFAULT 0,
		sync_in_progress INTEGER NOT NULL DEFAULT 0,
		sync_progress_pct INTEGER NOT NULL DEFAULT 0,
		last_successful_sync INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS network_status (
		id INTEGER PRIMARY KEY CHECK(id = 1),
		is_online INTEGER NOT NULL DEFAULT 0,
		quality TEXT NOT NULL DEFAULT 'offline',
		last_online INTEGER NOT NULL DEFAULT 0,
		last_offline INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS load_progress (
		entity_type TEXT PRIMARY KEY,
		loaded INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE TABLE IF NOT EXISTS store_stats (
		table_name TEXT PRIMARY KEY,
		row_count INTEGER NOT NULL DEFAULT 0,
		computed_at INTEGER NOT NULL DEFAULT 0
	);`,
}

// Migrate creates the replica tables for every known entity type and the
// engine bookkeeping tables. Safe to call repeatedly.
func (s *Store) Migrate() error {
	for _, t := range models.All() {
		ddl := fmt.Sprintf(recordTableDDL, t.TableName())
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.TableName(), err)
		}
	}
	for _, ddl := range engineDDL {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create engine table: %w", err)
		}
	}
	return nil
}
