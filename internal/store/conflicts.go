// Package store provides durable persistence for conflict records.
package store

import (
	"context"
	"time"

	"github.com/adorsys-gis/dgat-sync/internal/models"
)

// PutConflict upserts a conflict record.
func (s *Store) PutConflict(ctx context.Context, cd *models.ConflictData) error {
	query := `
	INSERT INTO conflicts (id, entity_type, entity_id, local_version,
		server_version, conflict_type, resolution_strategy, resolved,
		created_at, resolved_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		resolution_strategy = excluded.resolution_strategy,
		resolved = excluded.resolved,
		resolved_at = excluded.resolved_at`

	_, err := s.db.ExecContext(ctx, query,
		cd.ID, cd.EntityType, cd.EntityID, string(cd.LocalVersion),
		string(cd.ServerVersion), cd.ConflictType, cd.Strategy, cd.Resolved,
		cd.CreatedAt, cd.ResolvedAt)
	return classify(err)
}

// Conflicts lists recorded conflicts, newest first.
func (s *Store) Conflicts(ctx context.Context, onlyUnresolved bool) ([]*models.ConflictData, error) {
	query := `
	SELECT id, entity_type, entity_id, local_version, server_version,
		conflict_type, resolution_strategy, resolved, created_at, resolved_at
	FROM conflicts`
	if onlyUnresolved {
		query += " WHERE resolved = 0"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []*models.ConflictData
	for rows.Next() {
		var cd models.ConflictData
		var local, server string
		if err := rows.Scan(
			&cd.ID, &cd.EntityType, &cd.EntityID, &local, &server,
			&cd.ConflictType, &cd.Strategy, &cd.Resolved, &cd.CreatedAt, &cd.ResolvedAt,
		); err != nil {
			return nil, classify(err)
		}
		cd.LocalVersion = []byte(local)
		cd.ServerVersion = []byte(server)
		out = append(out, &cd)
	}
	return out, classify(rows.Err())
}

// MarkConflictResolved flips a conflict to resolved.
func (s *Store) MarkConflictResolved(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE conflicts SET resolved = 1, resolved_at = ? WHERE id = ?",
		time.Now().Unix(), id)
	return classify(err)
}
