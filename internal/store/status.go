// Package store provides persistence for engine status snapshots and stats.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adorsys-gis/dgat-sync/internal/models"
)

// SaveSyncStatus persists the aggregate sync status snapshot (single row).
func (s *Store) SaveSyncStatus(ctx context.Context, st *models.SyncStatus) error {
	query := `
	INSERT INTO sync_status (id, is_online, pending_items_count,
		failed_items_count, sync_in_progress, sync_progress_pct, last_successful_sync)
	VALUES (1, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		is_online = excluded.is_online,
		pending_items_count = excluded.pending_items_count,
		failed_items_count = excluded.failed_items_count,
		sync_in_progress = excluded.sync_in_progress,
		sync_progress_pct = excluded.sync_progress_pct,
		last_successful_sync = excluded.last_successful_sync`

	_, err := s.db.ExecContext(ctx, query,
		st.IsOnline, st.PendingItemsCount, st.FailedItemsCount,
		st.SyncInProgress, st.SyncProgressPct, st.LastSuccessfulSync)
	return classify(err)
}

// LoadSyncStatus returns the persisted aggregate status, or a zero snapshot.
func (s *Store) LoadSyncStatus(ctx context.Context) (*models.SyncStatus, error) {
	var st models.SyncStatus
	err := s.db.QueryRowContext(ctx, `
	SELECT is_online, pending_items_count, failed_items_count,
		sync_in_progress, sync_progress_pct, last_successful_sync
	FROM sync_status WHERE id = 1`).Scan(
		&st.IsOnline, &st.PendingItemsCount, &st.FailedItemsCount,
		&st.SyncInProgress, &st.SyncProgressPct, &st.LastSuccessfulSync)
	if err == sql.ErrNoRows {
		return &models.SyncStatus{}, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &st, nil
}

// SaveNetworkStatus persists the connectivity snapshot (single row).
func (s *Store) SaveNetworkStatus(ctx context.Context, ns *models.NetworkStatus) error {
	query := `
	INSERT INTO network_status (id, is_online, quality, last_online, last_offline, latency_ms)
	VALUES (1, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		is_online = excluded.is_online,
		quality = excluded.quality,
		last_online = excluded.last_online,
		last_offline = excluded.last_offline,
		latency_ms = excluded.latency_ms`

	_, err := s.db.ExecContext(ctx, query,
		ns.IsOnline, ns.Quality, ns.LastOnline, ns.LastOffline, ns.LatencyMs)
	return classify(err)
}

// SaveLoadProgress records per-entity flush progress for display.
func (s *Store) SaveLoadProgress(ctx context.Context, t models.EntityType, loaded, total int) error {
	query := `
	INSERT INTO load_progress (entity_type, loaded, total, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(entity_type) DO UPDATE SET
		loaded = excluded.loaded,
		total = excluded.total,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query, t, loaded, total, time.Now().Unix())
	return classify(err)
}

// Stats recomputes per-table row counts and persists them to store_stats.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int, len(models.All()))
	now := time.Now().Unix()

	for _, t := range models.All() {
		var count int
		q := fmt.Sprintf("SELECT COUNT(*) FROM %s", t.TableName())
		if err := s.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
			return nil, classify(err)
		}
		out[t.TableName()] = count

		_, err := s.db.ExecContext(ctx, `
		INSERT INTO store_stats (table_name, row_count, computed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(table_name) DO UPDATE SET
			row_count = excluded.row_count,
			computed_at = excluded.computed_at`, t.TableName(), count, now)
		if err != nil {
			return nil, classify(err)
		}
	}
	return out, nil
}
