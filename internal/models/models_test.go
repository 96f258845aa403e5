// Package models provides unit tests for the sync data model.
package models

import (
	"testing"
	"time"
)

func TestEntityTypeValid(t *testing.T) {
	for _, et := range All() {
		if !et.Valid() {
			t.Errorf("expected %q to be valid", et)
		}
	}

	if EntityType("memo").Valid() {
		t.Error("expected unknown entity type to be invalid")
	}
	if EntityType("").Valid() {
		t.Error("expected empty entity type to be invalid")
	}
}

func TestEntityTableNames(t *testing.T) {
	if got := EntityAssessment.TableName(); got != "records_assessment" {
		t.Errorf("expected records_assessment, got %s", got)
	}

	// Table names must be unique across the closed set.
	seen := make(map[string]bool)
	for _, et := range All() {
		name := et.TableName()
		if seen[name] {
			t.Errorf("duplicate table name %s", name)
		}
		seen[name] = true
	}
}

func TestMarkSyncedClearsLocalChanges(t *testing.T) {
	var m Meta
	m.MarkPending(time.Now().Unix())

	if m.SyncState != SyncStatePending {
		t.Errorf("expected pending, got %s", m.SyncState)
	}
	if !m.LocalChanges {
		t.Error("expected local changes after MarkPending")
	}

	now := time.Now().Unix()
	m.MarkSynced(now)

	// A synced record never carries local changes.
	if m.SyncState != SyncStateSynced {
		t.Errorf("expected synced, got %s", m.SyncState)
	}
	if m.LocalChanges {
		t.Error("synced record must not have local changes")
	}
	if m.LastSynced != now {
		t.Errorf("expected last_synced %d, got %d", now, m.LastSynced)
	}
}

func TestPriorityRank(t *testing.T) {
	order := []Priority{PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("expected %s to outrank %s", order[i], order[i-1])
		}
	}

	if Priority("unknown").Rank() != PriorityNormal.Rank() {
		t.Error("unknown priority should rank as normal")
	}
}

func TestQueueItemTerminal(t *testing.T) {
	item := SyncQueueItem{RetryCount: 0, MaxRetries: 3}
	if item.Terminal() {
		t.Error("fresh item must not be terminal")
	}

	item.RetryCount = 2
	if item.Terminal() {
		t.Error("item below max retries must not be terminal")
	}

	item.RetryCount = 3
	if !item.Terminal() {
		t.Error("item at max retries must be terminal")
	}
}
