// Package models provides data model definitions for the offline sync engine.
package models

// ConnectionQuality grades the link based on measured heartbeat latency.
type ConnectionQuality string

const (
	QualityExcellent ConnectionQuality = "excellent"
	QualityGood      ConnectionQuality = "good"
	QualityPoor      ConnectionQuality = "poor"
	QualityOffline   ConnectionQuality = "offline"
)

// NetworkStatus is the process-wide connectivity snapshot.
// Written only by the network monitor, read by everyone else.
type NetworkStatus struct {
	IsOnline    bool              `db:"is_online" json:"is_online"`
	Quality     ConnectionQuality `db:"quality" json:"connection_quality"`
	LastOnline  int64             `db:"last_online" json:"last_online,omitempty"`
	LastOffline int64             `db:"last_offline" json:"last_offline,omitempty"`
	LatencyMs   int64             `db:"latency_ms" json:"latency_ms,omitempty"`
}

// TableName returns the table name for NetworkStatus snapshots.
func (NetworkStatus) TableName() string {
	return "network_status"
}

// SyncStatus is the aggregate engine state, recomputed after every queue
// mutation and consumed by the UI layer for display.
type SyncStatus struct {
	IsOnline           bool  `db:"is_online" json:"is_online"`
	PendingItemsCount  int   `db:"pending_items_count" json:"pending_items_count"`
	FailedItemsCount   int   `db:"failed_items_count" json:"failed_items_count"`
	SyncInProgress     bool  `db:"sync_in_progress" json:"sync_in_progress"`
	SyncProgressPct    int   `db:"sync_progress_pct" json:"sync_progress_percentage"`
	LastSuccessfulSync int64 `db:"last_successful_sync" json:"last_successful_sync,omitempty"`
}

// TableName returns the table name for SyncStatus snapshots.
func (SyncStatus) TableName() string {
	return "sync_status"
}
