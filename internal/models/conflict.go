// Package models provides data model definitions for the offline sync engine.
package models

import (
	"encoding/json"
	"time"
)

// ConflictType is the detected basis of divergence between local and server copies.
type ConflictType string

const (
	ConflictTimestamp ConflictType = "timestamp"
	ConflictVersion   ConflictType = "version"
	ConflictContent   ConflictType = "content"
)

// Strategy selects how a conflict is resolved.
type Strategy string

const (
	StrategyLocalWins  Strategy = "local_wins"
	StrategyServerWins Strategy = "server_wins"
	StrategyManual     Strategy = "manual"
	StrategyMerge      Strategy = "merge"
)

// ConflictData records a divergence between a locally held version and the
// server's version of the same entity. Unresolved manual conflicts are a
// durable state, not an error.
type ConflictData struct {
	ID            string          `db:"id" json:"id"`
	EntityType    EntityType      `db:"entity_type" json:"entity_type"`
	EntityID      string          `db:"entity_id" json:"entity_id"`
	LocalVersion  json.RawMessage `db:"local_version" json:"local_version"`
	ServerVersion json.RawMessage `db:"server_version" json:"server_version"`
	ConflictType  ConflictType    `db:"conflict_type" json:"conflict_type"`
	Strategy      Strategy        `db:"resolution_strategy" json:"resolution_strategy"`
	Resolved      bool            `db:"resolved" json:"resolved"`
	CreatedAt     int64           `db:"created_at" json:"created_at"`
	ResolvedAt    int64           `db:"resolved_at" json:"resolved_at,omitempty"`
}

// TableName returns the table name for ConflictData.
func (ConflictData) TableName() string {
	return "conflicts"
}

// CreatedAtTime returns CreatedAt as time.Time.
func (c *ConflictData) CreatedAtTime() time.Time {
	return time.Unix(c.CreatedAt, 0)
}
