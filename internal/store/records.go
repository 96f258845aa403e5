// Package store provides record operations against the local replica tables.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/adorsys-gis/dgat-sync/internal/errors"
	"github.com/adorsys-gis/dgat-sync/internal/models"
)

// Filter narrows a GetAll scan. Zero value matches everything.
type Filter struct {
	SyncState    models.SyncState // match a specific sync state
	UpdatedSince int64            // unix seconds, exclusive
	LocalOnly    bool             // only records with local changes
}

// Get retrieves a record by id. A missing record is not an error: the
// result is (nil, nil).
func (s *Store) Get(ctx context.Context, t models.EntityType, id string) (*models.Record, error) {
	if !t.Valid() {
		return nil, errors.New(errors.ErrUnknownEntity, fmt.Sprintf("unknown entity type %q", t))
	}

	query := fmt.Sprintf(`
	SELECT id, payload, updated_at, sync_state, local_changes, last_synced
	FROM %s WHERE id = ?`, t.TableName())

	stmt, err := s.prepareStmt(query)
	if err != nil {
		return nil, classify(err)
	}

	rec := models.Record{Type: t}
	var payload string
	err = stmt.QueryRowContext(ctx, id).Scan(
		&rec.ID, &payload, &rec.Meta.UpdatedAt, &rec.Meta.SyncState,
		&rec.Meta.LocalChanges, &rec.Meta.LastSynced,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	rec.Payload = []byte(payload)
	return &rec, nil
}

// Rows is a lazy cursor over replica records. Callers must Close it.
// A fresh scan can be restarted at any time by calling GetAll again.
type Rows struct {
	rows *sql.Rows
	t    models.EntityType
	cur  *models.Record
	err  error
}

// Next advances the cursor. It returns false at end of scan or on error.
func (r *Rows) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	rec := models.Record{Type: r.t}
	var payload string
	r.err = r.rows.Scan(
		&rec.ID, &payload, &rec.Meta.UpdatedAt, &rec.Meta.SyncState,
		&rec.Meta.LocalChanges, &rec.Meta.LastSynced,
	)
	if r.err != nil {
		return false
	}
	rec.Payload = []byte(payload)
	r.cur = &rec
	return true
}

// Record returns the record at the cursor position.
func (r *Rows) Record() *models.Record { return r.cur }

// Err returns the first error hit during the scan.
func (r *Rows) Err() error {
	if r.err != nil {
		return classify(r.err)
	}
	return classify(r.rows.Err())
}

// Close releases the cursor.
func (r *Rows) Close() error { return r.rows.Close() }

// GetAll scans a replica table lazily, oldest-first by updated_at.
func (s *Store) GetAll(ctx context.Context, t models.EntityType, f Filter) (*Rows, error) {
	if !t.Valid() {
		return nil, errors.New(errors.ErrUnknownEntity, fmt.Sprintf("unknown entity type %q", t))
	}

	var conds []string
	var args []interface{}
	if f.SyncState != "" {
		conds = append(conds, "sync_state = ?")
		args = append(args, f.SyncState)
	}
	if f.UpdatedSince > 0 {
		conds = append(conds, "updated_at > ?")
		args = append(args, f.UpdatedSince)
	}
	if f.LocalOnly {
		conds = append(conds, "local_changes = 1")
	}

	query := fmt.Sprintf(`
	SELECT id, payload, updated_at, sync_state, local_changes, last_synced
	FROM %s`, t.TableName())
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY updated_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	return &Rows{rows: rows, t: t}, nil
}

// Put upserts a record by key. The write is atomic per key.
func (s *Store) Put(ctx context.Context, rec *models.Record) error {
	if !rec.Type.Valid() {
		return errors.New(errors.ErrUnknownEntity, fmt.Sprintf("unknown entity type %q", rec.Type))
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (id, payload, updated_at, sync_state, local_changes, last_synced)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		payload = excluded.payload,
		updated_at = excluded.updated_at,
		sync_state = excluded.sync_state,
		local_changes = excluded.local_changes,
		last_synced = excluded.last_synced`, rec.Type.TableName())

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, string(rec.Payload), rec.Meta.UpdatedAt, rec.Meta.SyncState,
		rec.Meta.LocalChanges, rec.Meta.LastSynced)
	return classify(err)
}

// Delete removes a record by key. Deleting an absent record is a no-op.
func (s *Store) Delete(ctx context.Context, t models.EntityType, id string) error {
	if !t.Valid() {
		return errors.New(errors.ErrUnknownEntity, fmt.Sprintf("unknown entity type %q", t))
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", t.TableName())
	_, err := s.db.ExecContext(ctx, query, id)
	return classify(err)
}

// Replace swaps a temporary record for its server-issued canonical record in
// a single transaction. At no instant are both rows visible to a reader.
func (s *Store) Replace(ctx context.Context, t models.EntityType, tempID string, canonical *models.Record) error {
	if !t.Valid() {
		return errors.New(errors.ErrUnknownEntity, fmt.Sprintf("unknown entity type %q", t))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()

	table := t.TableName()
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), tempID); err != nil {
		return classify(err)
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (id, payload, updated_at, sync_state, local_changes, last_synced)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		payload = excluded.payload,
		updated_at = excluded.updated_at,
		sync_state = excluded.sync_state,
		local_changes = excluded.local_changes,
		last_synced = excluded.last_synced`, table)
	if _, err := tx.ExecContext(ctx, query,
		canonical.ID, string(canonical.Payload), canonical.Meta.UpdatedAt,
		canonical.Meta.SyncState, canonical.Meta.LocalChanges, canonical.Meta.LastSynced); err != nil {
		return classify(err)
	}

	return classify(tx.Commit())
}
