// Package models provides data model definitions for the offline sync engine.
package models

import "encoding/json"

// Operation is a queued mutation kind.
type Operation string

const (
	OperationCreate       Operation = "create"
	OperationUpdate       Operation = "update"
	OperationDelete       Operation = "delete"
	OperationSubmit       Operation = "submit"
	OperationSubmitReview Operation = "submit_review"
)

// Priority orders queue drain across unrelated entities.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns the numeric ordering of a priority; higher drains first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// SyncQueueItem is one pending mutation awaiting remote delivery.
type SyncQueueItem struct {
	ID          string          `db:"id" json:"id"`
	EntityType  EntityType      `db:"entity_type" json:"entity_type"`
	EntityID    string          `db:"entity_id" json:"entity_id,omitempty"`
	Operation   Operation       `db:"operation" json:"operation"`
	Data        json.RawMessage `db:"data" json:"data"`
	RetryCount  int             `db:"retry_count" json:"retry_count"`
	MaxRetries  int             `db:"max_retries" json:"max_retries"`
	Priority    Priority        `db:"priority" json:"priority"`
	NextRetryAt int64           `db:"next_retry_at" json:"next_retry_at"`
	LastError   string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   int64           `db:"created_at" json:"created_at"`
}

// TableName returns the table name for SyncQueueItem.
func (SyncQueueItem) TableName() string {
	return "sync_queue"
}

// Terminal reports whether the item exhausted its retry budget.
// Terminal items stay in the queue until the user retries or discards them.
func (i *SyncQueueItem) Terminal() bool {
	return i.RetryCount >= i.MaxRetries
}
