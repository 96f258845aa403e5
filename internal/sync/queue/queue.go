// Package queue provides the durable, ordered list of pending mutations,
// replayed until acknowledged or exhausted. Drain order is priority-major
// and creation-time-minor, except that mutations for the same entity always
// apply in creation order so a stale queued write can never overwrite a
// newer one.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adorsys-gis/dgat-sync/internal/errors"
	"github.com/adorsys-gis/dgat-sync/internal/logging"
	"github.com/adorsys-gis/dgat-sync/internal/models"
	"github.com/adorsys-gis/dgat-sync/internal/uuid"
)

// Storage is the durable backing for queue items.
type Storage interface {
	PutQueueItem(ctx context.Context, item *models.SyncQueueItem) error
	DeleteQueueItem(ctx context.Context, id string) error
	QueueItems(ctx context.Context) ([]*models.SyncQueueItem, error)
}

// Disposition tells the queue what to do with an item after a delivery attempt.
type Disposition int

const (
	// Delivered: remotely acknowledged; remove the item.
	Delivered Disposition = iota
	// Retry: transient failure; back off and retry up to max_retries.
	Retry
	// Drop: non-retryable; remove without acknowledgement (validation
	// rejection, or a conflict the resolver settled by discarding the
	// local mutation).
	Drop
	// Block: retain the item and stop delivering for its entity until the
	// caller unblocks it (manual conflict).
	Block
)

// Deliverer performs the remote call for one queued mutation.
type Deliverer interface {
	Deliver(ctx context.Context, item *models.SyncQueueItem) (Disposition, error)
}

// DeliverFunc adapts a function to the Deliverer interface.
type DeliverFunc func(ctx context.Context, item *models.SyncQueueItem) (Disposition, error)

// Deliver implements Deliverer.
func (f DeliverFunc) Deliver(ctx context.Context, item *models.SyncQueueItem) (Disposition, error) {
	return f(ctx, item)
}

// Config holds queue tunables.
type Config struct {
	MaxSize     int
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Queue manages pending sync mutations with retry bookkeeping. All items
// are mirrored in memory for selection and persisted through Storage for
// durability.
type Queue struct {
	storage Storage
	cfg     Config

	mu       sync.Mutex
	items    map[string]*models.SyncQueueItem
	blocked  map[string]bool // entity key -> blocked by manual conflict
	flushing bool

	// onChange fires after every queue mutation with (pending, failed)
	// counts. Display-only; must not block.
	onChange func(pending, failed int)
}

// New creates a Queue over the given durable storage.
func New(storage Storage, cfg Config) *Queue {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = time.Hour
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1000
	}
	return &Queue{
		storage: storage,
		cfg:     cfg,
		items:   make(map[string]*models.SyncQueueItem),
		blocked: make(map[string]bool),
	}
}

// OnChange registers the queue-changed callback.
func (q *Queue) OnChange(fn func(pending, failed int)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onChange = fn
}

// Load rebuilds the in-memory mirror from durable storage. Called once at
// engine start; queued mutations survive restarts.
func (q *Queue) Load(ctx context.Context) error {
	items, err := q.storage.QueueItems(ctx)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make(map[string]*models.SyncQueueItem, len(items))
	for _, item := range items {
		q.items[item.ID] = item
	}
	return nil
}

// entityKey serializes same-entity mutations. Items without an entity id
// (nothing else can race them) key by their own id.
func entityKey(item *models.SyncQueueItem) string {
	if item.EntityID == "" {
		return string(item.EntityType) + "/" + item.ID
	}
	return string(item.EntityType) + "/" + item.EntityID
}

// Enqueue stores a mutation durably and returns immediately; it never
// touches the network. Missing fields get defaults.
func (q *Queue) Enqueue(ctx context.Context, item *models.SyncQueueItem) error {
	q.mu.Lock()
	if len(q.items) >= q.cfg.MaxSize {
		q.mu.Unlock()
		return errors.New(errors.ErrQueueFull,
			fmt.Sprintf("sync queue is full (max size %d)", q.cfg.MaxSize))
	}

	if item.ID == "" {
		item.ID = uuid.New()
	}
	if item.Priority == "" {
		item.Priority = models.PriorityNormal
	}
	if item.MaxRetries <= 0 {
		item.MaxRetries = q.cfg.MaxRetries
	}
	if item.CreatedAt == 0 {
		// Nanosecond precision: same-entity items enqueued within the same
		// second must still drain in enqueue order.
		item.CreatedAt = time.Now().UnixNano()
	}
	item.RetryCount = 0
	item.NextRetryAt = 0

	q.items[item.ID] = item
	q.mu.Unlock()

	if err := q.storage.PutQueueItem(ctx, item); err != nil {
		q.mu.Lock()
		delete(q.items, item.ID)
		q.mu.Unlock()
		return err
	}

	logging.Debug("enqueued mutation", map[string]interface{}{
		"id": item.ID, "entity_type": string(item.EntityType),
		"entity_id": item.EntityID, "operation": string(item.Operation),
	})
	q.notifyChange()
	return nil
}

// DequeueNext selects the next deliverable item without removing it; the
// caller confirms the outcome through MarkSucceeded or MarkFailed.
//
// Selection: for each entity, only its oldest queued item is a candidate
// (per-entity FIFO, regardless of priority). Entities whose oldest item is
// terminal-failed, blocked, or still backing off are skipped entirely.
// Among the remaining heads, highest priority wins, ties broken by
// creation time.
func (q *Queue) DequeueNext() *models.SyncQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.selectNext(time.Now().Unix())
}

// selectNext must be called with q.mu held.
func (q *Queue) selectNext(now int64) *models.SyncQueueItem {
	heads := make(map[string]*models.SyncQueueItem)
	for _, item := range q.items {
		key := entityKey(item)
		if head, ok := heads[key]; !ok || item.CreatedAt < head.CreatedAt ||
			(item.CreatedAt == head.CreatedAt && item.ID < head.ID) {
			heads[key] = item
		}
	}

	var best *models.SyncQueueItem
	for key, head := range heads {
		if q.blocked[key] || head.Terminal() || head.NextRetryAt > now {
			// Head-of-line blocked; later same-entity items must wait
			// to preserve apply order.
			continue
		}
		if best == nil {
			best = head
			continue
		}
		if head.Priority.Rank() > best.Priority.Rank() ||
			(head.Priority.Rank() == best.Priority.Rank() && head.CreatedAt < best.CreatedAt) {
			best = head
		}
	}
	return best
}

// MarkSucceeded removes an acknowledged item.
func (q *Queue) MarkSucceeded(ctx context.Context, id string) error {
	q.mu.Lock()
	_, ok := q.items[id]
	delete(q.items, id)
	q.mu.Unlock()
	if !ok {
		return nil
	}

	if err := q.storage.DeleteQueueItem(ctx, id); err != nil {
		return err
	}
	q.notifyChange()
	return nil
}

// MarkFailed increments the retry count and schedules the next attempt with
// exponential backoff. Once retry_count reaches max_retries the item is
// retained terminal-failed and excluded from automatic retry.
func (q *Queue) MarkFailed(ctx context.Context, id string, cause error) error {
	q.mu.Lock()
	item, ok := q.items[id]
	if !ok {
		q.mu.Unlock()
		return errors.New(errors.ErrNotFound, fmt.Sprintf("queue item %s not found", id))
	}

	if item.RetryCount < item.MaxRetries {
		item.RetryCount++
	}
	if cause != nil {
		item.LastError = cause.Error()
	}

	terminal := item.Terminal()
	if !terminal {
		item.NextRetryAt = time.Now().Add(q.backoff(item.RetryCount)).Unix()
	}
	snapshot := *item
	q.mu.Unlock()

	if err := q.storage.PutQueueItem(ctx, &snapshot); err != nil {
		return err
	}

	if terminal {
		logging.Warn("queue item exhausted retries, requires manual action",
			map[string]interface{}{
				"id": id, "entity_type": string(snapshot.EntityType),
				"entity_id": snapshot.EntityID, "retries": snapshot.RetryCount,
			})
	} else {
		logging.Debug("queue item failed, retry scheduled", map[string]interface{}{
			"id": id, "retry": snapshot.RetryCount, "max": snapshot.MaxRetries,
			"next_retry_at": snapshot.NextRetryAt,
		})
	}
	q.notifyChange()
	return nil
}

// backoff computes the delay before attempt n: base * 2^n, capped.
func (q *Queue) backoff(retryCount int) time.Duration {
	d := q.cfg.BackoffBase << uint(retryCount)
	if d > q.cfg.BackoffCap || d <= 0 {
		d = q.cfg.BackoffCap
	}
	return d
}

// BlockEntity stops delivery for one entity until UnblockEntity. Used while
// a manual conflict awaits resolution.
func (q *Queue) BlockEntity(t models.EntityType, id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.blocked[string(t)+"/"+id] = true
}

// Block retains an item and stops delivery under the same key selection
// serializes on, so an item without an entity id blocks under its own id
// rather than under the bare type prefix.
func (q *Queue) Block(item *models.SyncQueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.blocked[entityKey(item)] = true
}

// UnblockEntity resumes delivery for a previously blocked entity.
func (q *Queue) UnblockEntity(t models.EntityType, id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.blocked, string(t)+"/"+id)
}

// RemapEntity rewrites the entity id carried by queued mutations after a
// create delivery swaps a temporary id for the server-issued one. Later
// items for the entity must target the canonical id, or their delivery
// would resurrect the temporary record under a synced echo. Any block on
// the old key follows the rename.
func (q *Queue) RemapEntity(ctx context.Context, t models.EntityType, oldID, newID string) error {
	if oldID == "" || newID == "" || oldID == newID {
		return nil
	}

	q.mu.Lock()
	var changed []*models.SyncQueueItem
	for _, item := range q.items {
		if item.EntityType == t && item.EntityID == oldID {
			item.EntityID = newID
			snapshot := *item
			changed = append(changed, &snapshot)
		}
	}
	oldKey := string(t) + "/" + oldID
	if q.blocked[oldKey] {
		delete(q.blocked, oldKey)
		q.blocked[string(t)+"/"+newID] = true
	}
	q.mu.Unlock()

	for _, item := range changed {
		if err := q.storage.PutQueueItem(ctx, item); err != nil {
			return err
		}
	}
	if len(changed) > 0 {
		logging.Debug("remapped queued mutations to canonical id", map[string]interface{}{
			"entity_type": string(t), "temp_id": oldID,
			"canonical_id": newID, "count": len(changed),
		})
	}
	return nil
}

// UpdateData rewrites a queued item's payload durably. Used when conflict
// resolution re-issues the local mutation with a refreshed payload.
func (q *Queue) UpdateData(ctx context.Context, id string, data json.RawMessage) error {
	q.mu.Lock()
	item, ok := q.items[id]
	if !ok {
		q.mu.Unlock()
		return errors.New(errors.ErrNotFound, fmt.Sprintf("queue item %s not found", id))
	}
	item.Data = data
	snapshot := *item
	q.mu.Unlock()

	return q.storage.PutQueueItem(ctx, &snapshot)
}

// FlushResult summarizes one drain pass.
type FlushResult struct {
	Processed int
	Delivered int
	Failed    int
	Dropped   int
	Blocked   int
}

// Flush drains the queue one item at a time until it is empty, the network
// goes offline, or only undeliverable items remain. Only one flush runs at
// a time; a second call is a coded no-op.
func (q *Queue) Flush(ctx context.Context, deliver Deliverer, online func() bool, onProgress func(pct int)) (*FlushResult, error) {
	q.mu.Lock()
	if q.flushing {
		q.mu.Unlock()
		return nil, errors.New(errors.ErrSyncInProgress, "flush already in progress")
	}
	q.flushing = true
	total := len(q.items)
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.flushing = false
		q.mu.Unlock()
	}()

	result := &FlushResult{}
	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if online != nil && !online() {
			logging.Info("flush paused, network offline",
				map[string]interface{}{"processed": result.Processed})
			return result, nil
		}

		item := q.DequeueNext()
		if item == nil {
			break
		}

		disposition, err := deliver.Deliver(ctx, item)
		result.Processed++

		switch disposition {
		case Delivered:
			if err := q.MarkSucceeded(ctx, item.ID); err != nil {
				return result, err
			}
			result.Delivered++
		case Retry:
			if err := q.MarkFailed(ctx, item.ID, err); err != nil {
				return result, err
			}
			result.Failed++
		case Drop:
			if err := q.MarkSucceeded(ctx, item.ID); err != nil {
				return result, err
			}
			result.Dropped++
		case Block:
			q.Block(item)
			result.Blocked++
		}

		if onProgress != nil && total > 0 {
			pct := result.Processed * 100 / total
			if pct > 100 {
				pct = 100
			}
			onProgress(pct)
		}
	}

	if onProgress != nil {
		onProgress(100)
	}
	return result, nil
}

// RetryFailed resets every terminal-failed item for another round of
// attempts. This is the user-level "try again" action.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	q.mu.Lock()
	var reset []*models.SyncQueueItem
	for _, item := range q.items {
		if item.Terminal() {
			item.RetryCount = 0
			item.NextRetryAt = 0
			item.LastError = ""
			snapshot := *item
			reset = append(reset, &snapshot)
		}
	}
	q.mu.Unlock()

	for _, item := range reset {
		if err := q.storage.PutQueueItem(ctx, item); err != nil {
			return 0, err
		}
	}
	if len(reset) > 0 {
		logging.Info("reset terminal-failed items for retry",
			map[string]interface{}{"count": len(reset)})
		q.notifyChange()
	}
	return len(reset), nil
}

// Discard drops a terminal-failed item. This is the user-level "give up"
// action; the optimistic local change stays in the replica.
func (q *Queue) Discard(ctx context.Context, id string) error {
	return q.MarkSucceeded(ctx, id)
}

// Counts returns (retriable, terminal-failed) item counts.
func (q *Queue) Counts() (pending, failed int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range q.items {
		if item.Terminal() {
			failed++
		} else {
			pending++
		}
	}
	return pending, failed
}

// Items returns a snapshot copy of every queued item.
func (q *Queue) Items() []*models.SyncQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*models.SyncQueueItem, 0, len(q.items))
	for _, item := range q.items {
		snapshot := *item
		out = append(out, &snapshot)
	}
	return out
}

// ItemsForEntity returns queued items for one entity, oldest first.
func (q *Queue) ItemsForEntity(t models.EntityType, id string) []*models.SyncQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []*models.SyncQueueItem
	for _, item := range q.items {
		if item.EntityType == t && item.EntityID == id {
			snapshot := *item
			out = append(out, &snapshot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}

func (q *Queue) notifyChange() {
	q.mu.Lock()
	fn := q.onChange
	pending, failed := 0, 0
	for _, item := range q.items {
		if item.Terminal() {
			failed++
		} else {
			pending++
		}
	}
	q.mu.Unlock()
	if fn != nil {
		fn(pending, failed)
	}
}
