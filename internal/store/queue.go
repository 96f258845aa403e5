// Package store provides durable persistence for the sync queue.
package store

import (
	"context"
	"database/sql"

	"github.com/adorsys-gis/dgat-sync/internal/models"
)

// PutQueueItem upserts a queue item durably.
func (s *Store) PutQueueItem(ctx context.Context, item *models.SyncQueueItem) error {
	query := `
	INSERT INTO sync_queue (id, entity_type, entity_id, operation, data,
		retry_count, max_retries, priority, next_retry_at, last_error, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		entity_id = excluded.entity_id,
		retry_count = excluded.retry_count,
		next_retry_at = excluded.next_retry_at,
		last_error = excluded.last_error,
		data = excluded.data`

	_, err := s.db.ExecContext(ctx, query,
		item.ID, item.EntityType, item.EntityID, item.Operation, string(item.Data),
		item.RetryCount, item.MaxRetries, item.Priority, item.NextRetryAt,
		item.LastError, item.CreatedAt)
	return classify(err)
}

// DeleteQueueItem removes an acknowledged or discarded item.
func (s *Store) DeleteQueueItem(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sync_queue WHERE id = ?", id)
	return classify(err)
}

// QueueItems loads every queued item, oldest first. The queue rebuilds its
// in-memory view from this scan at startup.
func (s *Store) QueueItems(ctx context.Context) ([]*models.SyncQueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, entity_type, entity_id, operation, data, retry_count,
		max_retries, priority, next_retry_at, last_error, created_at
	FROM sync_queue ORDER BY created_at ASC`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var items []*models.SyncQueueItem
	for rows.Next() {
		var item models.SyncQueueItem
		var data string
		if err := rows.Scan(
			&item.ID, &item.EntityType, &item.EntityID, &item.Operation, &data,
			&item.RetryCount, &item.MaxRetries, &item.Priority, &item.NextRetryAt,
			&item.LastError, &item.CreatedAt,
		); err != nil {
			return nil, classify(err)
		}
		item.Data = []byte(data)
		items = append(items, &item)
	}
	return items, classify(rows.Err())
}

// QueueCounts returns the number of retriable and terminal-failed items.
func (s *Store) QueueCounts(ctx context.Context) (pending, failed int, err error) {
	err = s.db.QueryRowContext(ctx, `
	SELECT
		COALESCE(SUM(CASE WHEN retry_count < max_retries THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN retry_count >= max_retries THEN 1 ELSE 0 END), 0)
	FROM sync_queue`).Scan(&pending, &failed)
	if err != nil && err != sql.ErrNoRows {
		return 0, 0, classify(err)
	}
	return pending, failed, nil
}
