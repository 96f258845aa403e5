// Package models provides data model definitions for the offline sync engine.
package models

import (
	"encoding/json"
	"time"
)

// SyncState tracks where a record stands relative to the remote service.
type SyncState string

const (
	SyncStateSynced  SyncState = "synced"
	SyncStatePending SyncState = "pending"
	SyncStateFailed  SyncState = "failed"
)

// Meta is the sync metadata embedded in every replicated record.
type Meta struct {
	UpdatedAt    int64     `db:"updated_at" json:"updated_at"`
	SyncState    SyncState `db:"sync_state" json:"sync_state"`
	LocalChanges bool      `db:"local_changes" json:"local_changes"`
	LastSynced   int64     `db:"last_synced" json:"last_synced,omitempty"` // 0 = never reconciled
}

// Record is a replicated entity: an opaque domain payload plus sync metadata.
type Record struct {
	ID      string          `db:"id" json:"id"`
	Type    EntityType      `db:"-" json:"entity_type"`
	Payload json.RawMessage `db:"payload" json:"payload"`
	Meta    Meta            `json:"meta"`
}

// MarkSynced records a successful reconciliation.
// A synced record never carries local changes.
func (m *Meta) MarkSynced(at int64) {
	m.SyncState = SyncStateSynced
	m.LocalChanges = false
	m.LastSynced = at
}

// MarkPending flags a local mutation awaiting delivery.
func (m *Meta) MarkPending(at int64) {
	m.SyncState = SyncStatePending
	m.LocalChanges = true
	m.UpdatedAt = at
}

// MarkFailed flags a record whose queued mutation exhausted its retries.
func (m *Meta) MarkFailed() {
	m.SyncState = SyncStateFailed
}

// UpdatedAtTime returns UpdatedAt as time.Time.
func (m *Meta) UpdatedAtTime() time.Time {
	return time.Unix(m.UpdatedAt, 0)
}
