// Package sync provides the reconciler: the single entry point application
// code calls for reads and writes against the offline-first replica. Reads
// go remote-first with a stale-marked local fallback; writes apply
// optimistically, queue for delivery, and reconcile against the server.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	stdsync "sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/adorsys-gis/dgat-sync/internal/config"
	"github.com/adorsys-gis/dgat-sync/internal/errors"
	"github.com/adorsys-gis/dgat-sync/internal/logging"
	"github.com/adorsys-gis/dgat-sync/internal/models"
	"github.com/adorsys-gis/dgat-sync/internal/netmon"
	"github.com/adorsys-gis/dgat-sync/internal/remote"
	"github.com/adorsys-gis/dgat-sync/internal/store"
	"github.com/adorsys-gis/dgat-sync/internal/sync/conflict"
	"github.com/adorsys-gis/dgat-sync/internal/sync/queue"
	"github.com/adorsys-gis/dgat-sync/internal/uuid"
)

// Events are display-only callbacks consumed by the UI layer. They must not
// block and are never load-bearing.
type Events struct {
	OnQueueChanged func(pending, failed int)
	OnProgress     func(pct int)
	OnConflict     func(cd *models.ConflictData)
}

// Engine wires the local store, sync queue, network monitor, conflict
// resolver, and remote registry into the reconciliation flow. Construct one
// at process start and pass it by reference; there is no global instance.
type Engine struct {
	cfg      *config.Config
	store    *store.Store
	queue    *queue.Queue
	monitor  *netmon.Monitor
	resolver *conflict.Resolver
	registry *remote.Registry
	events   Events

	// collapses concurrent remote reads of the same key
	group singleflight.Group

	statusMu stdsync.Mutex
	status   models.SyncStatus
}

// New assembles an Engine. The queue is rebuilt from durable storage, so
// mutations queued before a restart survive.
func New(ctx context.Context, cfg *config.Config, st *store.Store, monitor *netmon.Monitor, registry *remote.Registry, events Events) (*Engine, error) {
	e := &Engine{
		cfg:      cfg,
		store:    st,
		monitor:  monitor,
		registry: registry,
		events:   events,
	}

	e.queue = queue.New(st, queue.Config{
		MaxSize:     cfg.Queue.MaxSize,
		MaxRetries:  cfg.Queue.MaxRetries,
		BackoffBase: cfg.Queue.BackoffBase,
		BackoffCap:  cfg.Queue.BackoffCap,
	})
	if err := e.queue.Load(ctx); err != nil {
		return nil, err
	}
	e.queue.OnChange(e.onQueueChanged)

	e.resolver = conflict.NewResolver(st, cfg.DefaultStrategy, cfg.Strategies)

	// The offline -> online edge triggers a queue flush.
	monitor.Subscribe(func(online bool) {
		if online {
			go func() {
				if _, err := e.Flush(context.Background()); err != nil &&
					!errors.Is(err, errors.ErrSyncInProgress) {
					logging.Warn("flush after reconnect failed",
						map[string]interface{}{"error": err.Error()})
				}
			}()
		}
	})

	// Status survives restarts; the queue counts are recomputed from the
	// reloaded queue.
	if persisted, err := st.LoadSyncStatus(ctx); err == nil {
		e.status = *persisted
		e.status.SyncInProgress = false
	}
	e.refreshStatus(ctx)
	return e, nil
}

// Resolver exposes merge registration and manual conflict resolution.
func (e *Engine) Resolver() *conflict.Resolver { return e.resolver }

// Queue exposes user-level queue actions (retry failed, discard).
func (e *Engine) Queue() *queue.Queue { return e.queue }

// ReadResult is the outcome of a reconciled read.
type ReadResult struct {
	Records []*models.Record
	// Stale is true when the data came from the local replica because the
	// remote fetch failed or the client is offline.
	Stale bool
}

// readKey collapses concurrent identical reads.
func readKey(t models.EntityType, f remote.Filter) string {
	if len(f) == 0 {
		return string(t)
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(string(t))
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%s", k, f[k])
	}
	return b.String()
}

// Read fetches records remote-first. On success the local replica is
// updated (write-through) and fresh data returned. On remote failure or
// offline, the local replica answers with an explicit stale marker. Only
// when both sides come up empty does Read fail, with a no-data error.
func (e *Engine) Read(ctx context.Context, t models.EntityType, f remote.Filter) (*ReadResult, error) {
	if !t.Valid() {
		return nil, errors.New(errors.ErrUnknownEntity, fmt.Sprintf("unknown entity type %q", t))
	}

	var remoteErr error
	if e.monitor.IsOnline() {
		v, err, _ := e.group.Do(readKey(t, f), func() (interface{}, error) {
			svc, err := e.registry.For(t)
			if err != nil {
				return nil, err
			}
			return svc.Fetch(ctx, f)
		})
		if err == nil {
			records := v.([]*models.Record)
			// Write-through. Skipped when the caller abandoned the read:
			// cancellation must not mutate shared state.
			if ctx.Err() == nil {
				e.writeThrough(ctx, t, records)
			}
			return &ReadResult{Records: records, Stale: false}, nil
		}
		remoteErr = err
		logging.Debug("remote read failed, falling back to local replica",
			map[string]interface{}{"entity_type": string(t), "error": err.Error()})
	}

	records, err := e.readLocal(ctx, t, f)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		if remoteErr != nil {
			return nil, errors.Wrap(errors.ErrNoData,
				fmt.Sprintf("no local data for %s and remote fetch failed", t), remoteErr)
		}
		return nil, errors.New(errors.ErrNoData,
			fmt.Sprintf("no local data for %s while offline", t))
	}
	return &ReadResult{Records: records, Stale: true}, nil
}

func (e *Engine) writeThrough(ctx context.Context, t models.EntityType, records []*models.Record) {
	now := time.Now().Unix()
	applied := 0
	for _, rec := range records {
		// Never clobber a pending optimistic write with fetched data; the
		// queue will reconcile it.
		existing, err := e.store.Get(ctx, rec.Type, rec.ID)
		if err == nil && existing != nil && existing.Meta.LocalChanges {
			continue
		}
		rec.Meta.MarkSynced(now)
		if err := e.store.Put(ctx, rec); err != nil {
			logging.Warn("write-through failed", map[string]interface{}{
				"entity_type": string(rec.Type), "id": rec.ID, "error": err.Error(),
			})
			continue
		}
		applied++
	}
	if err := e.store.SaveLoadProgress(ctx, t, applied, len(records)); err != nil {
		logging.Warn("failed to record load progress",
			map[string]interface{}{"entity_type": string(t), "error": err.Error()})
	}
}

func (e *Engine) readLocal(ctx context.Context, t models.EntityType, f remote.Filter) ([]*models.Record, error) {
	rows, err := e.store.GetAll(ctx, t, store.Filter{})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		rec := rows.Record()
		if matchesFilter(rec, f) {
			records = append(records, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// matchesFilter applies a fetch filter to a replica record so a filtered
// read answered locally returns the same subset the remote call would.
// Filter keys match against top-level payload fields; a payload that does
// not decode never matches a non-empty filter.
func matchesFilter(rec *models.Record, f remote.Filter) bool {
	if len(f) == 0 {
		return true
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(rec.Payload, &fields); err != nil {
		return false
	}
	for key, want := range f {
		got, ok := fields[key]
		if !ok || fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

// priorityFor maps operations to queue priority. Submissions carry user
// intent to finalize and jump ahead of routine edits.
func priorityFor(op models.Operation) models.Priority {
	switch op {
	case models.OperationSubmit, models.OperationSubmitReview:
		return models.PriorityHigh
	default:
		return models.PriorityNormal
	}
}

// Write applies a mutation optimistically to the local replica, queues it
// for delivery, and attempts immediate delivery when online. The returned
// record is the optimistic one, or the canonical server record if the
// immediate attempt succeeded.
func (e *Engine) Write(ctx context.Context, t models.EntityType, op models.Operation, entityID string, payload json.RawMessage) (*models.Record, error) {
	if !t.Valid() {
		return nil, errors.New(errors.ErrUnknownEntity, fmt.Sprintf("unknown entity type %q", t))
	}

	now := time.Now().Unix()
	var rec *models.Record
	var prior *models.Record

	switch op {
	case models.OperationCreate:
		rec = &models.Record{
			ID:      uuid.NewTemporary(),
			Type:    t,
			Payload: payload,
		}
		rec.Meta.MarkPending(now)
		if err := e.store.Put(ctx, rec); err != nil {
			return nil, err
		}

	case models.OperationUpdate, models.OperationSubmit, models.OperationSubmitReview:
		var err error
		prior, err = e.store.Get(ctx, t, entityID)
		if err != nil {
			return nil, err
		}
		rec = &models.Record{ID: entityID, Type: t, Payload: payload}
		rec.Meta.MarkPending(now)
		if err := e.store.Put(ctx, rec); err != nil {
			return nil, err
		}

	case models.OperationDelete:
		var err error
		prior, err = e.store.Get(ctx, t, entityID)
		if err != nil {
			return nil, err
		}
		if prior == nil {
			return nil, errors.New(errors.ErrNotFound,
				fmt.Sprintf("cannot delete absent %s/%s", t, entityID))
		}
		// The row stays visible until the remote acknowledges; a record is
		// never silently dropped.
		rec = prior
		rec.Meta.MarkPending(now)
		if err := e.store.Put(ctx, rec); err != nil {
			return nil, err
		}

	default:
		return nil, errors.New(errors.ErrInvalid, fmt.Sprintf("unknown operation %q", op))
	}

	item := &models.SyncQueueItem{
		EntityType: t,
		EntityID:   rec.ID,
		Operation:  op,
		Data:       payload,
		Priority:   priorityFor(op),
	}
	if err := e.queue.Enqueue(ctx, item); err != nil {
		return nil, err
	}

	if !e.monitor.IsOnline() {
		return rec, nil
	}

	// Immediate delivery. The caller abandoning ctx must not abort it:
	// the optimistic write already committed locally, so delivery runs
	// under a detached context.
	result, err := e.deliverNow(context.WithoutCancel(ctx), item, prior)
	if err != nil {
		return nil, err
	}
	if result != nil {
		return result, nil
	}
	return rec, nil
}

// deliverNow attempts immediate delivery of a just-enqueued item. A
// transient failure leaves the item queued for the next flush; the UI
// already sees the optimistic result. A validation rejection reverts the
// optimistic write and surfaces synchronously.
func (e *Engine) deliverNow(ctx context.Context, item *models.SyncQueueItem, prior *models.Record) (*models.Record, error) {
	disposition, canonical, cause := e.attempt(ctx, item)

	switch disposition {
	case queue.Delivered:
		if err := e.queue.MarkSucceeded(ctx, item.ID); err != nil {
			return nil, err
		}
		return canonical, nil

	case queue.Retry:
		if err := e.queue.MarkFailed(ctx, item.ID, cause); err != nil {
			return nil, err
		}
		if item.Terminal() {
			e.markRecordFailed(ctx, item)
		}
		return nil, nil

	case queue.Drop:
		if errors.Is(cause, errors.ErrValidation) {
			if err := e.revert(ctx, item, prior); err != nil {
				logging.Warn("failed to revert optimistic write",
					map[string]interface{}{"entity_id": item.EntityID, "error": err.Error()})
			}
			if derr := e.queue.Discard(ctx, item.ID); derr != nil {
				return nil, derr
			}
			return nil, cause
		}
		// Conflict settled by discarding the local mutation.
		if err := e.queue.Discard(ctx, item.ID); err != nil {
			return nil, err
		}
		return nil, nil

	case queue.Block:
		e.queue.Block(item)
		return nil, nil
	}
	return nil, nil
}

// markRecordFailed flags the affected record when its queued mutation
// exhausts the retry budget. The local payload is kept; only user action
// (retry or discard) moves it on.
func (e *Engine) markRecordFailed(ctx context.Context, item *models.SyncQueueItem) {
	rec, err := e.store.Get(ctx, item.EntityType, item.EntityID)
	if err != nil || rec == nil {
		return
	}
	rec.Meta.MarkFailed()
	if err := e.store.Put(ctx, rec); err != nil {
		logging.Warn("failed to flag record after terminal retry failure",
			map[string]interface{}{"entity_id": item.EntityID, "error": err.Error()})
	}
}

// revert undoes an optimistic write after a validation rejection.
func (e *Engine) revert(ctx context.Context, item *models.SyncQueueItem, prior *models.Record) error {
	if item.Operation == models.OperationCreate {
		return e.store.Delete(ctx, item.EntityType, item.EntityID)
	}
	if prior != nil {
		return e.store.Put(ctx, prior)
	}
	return e.store.Delete(ctx, item.EntityType, item.EntityID)
}

// attempt performs the remote call for one queued mutation and reconciles
// the local replica on success. It returns the queue disposition, the
// canonical record (when one was produced), and the causing error.
func (e *Engine) attempt(ctx context.Context, item *models.SyncQueueItem) (queue.Disposition, *models.Record, error) {
	svc, err := e.registry.For(item.EntityType)
	if err != nil {
		return queue.Drop, nil, err
	}

	// Idempotence: if the record already reconciled to this item's payload,
	// there is nothing to deliver. The payload comparison keeps a follow-up
	// edit deliverable after its entity id was remapped to a just-created
	// canonical record.
	if item.Operation != models.OperationDelete {
		current, err := e.store.Get(ctx, item.EntityType, item.EntityID)
		if err == nil && current != nil &&
			current.Meta.SyncState == models.SyncStateSynced && !current.Meta.LocalChanges &&
			bytes.Equal(current.Payload, item.Data) {
			return queue.Delivered, current, nil
		}
	}

	now := time.Now().Unix()

	switch item.Operation {
	case models.OperationCreate:
		canonical, err := svc.Create(ctx, item.Data)
		if err != nil {
			return e.classify(ctx, item, err)
		}
		canonical.Meta.MarkSynced(now)
		// Single transaction: the temporary and canonical records are
		// never simultaneously visible.
		if err := e.store.Replace(ctx, item.EntityType, item.EntityID, canonical); err != nil {
			return queue.Retry, nil, err
		}
		// Queued follow-up edits still carry the temporary id; point them
		// at the canonical one before the next same-entity item is selected.
		if err := e.queue.RemapEntity(ctx, item.EntityType, item.EntityID, canonical.ID); err != nil {
			logging.Warn("failed to remap queued mutations to canonical id",
				map[string]interface{}{
					"temp_id": item.EntityID, "canonical_id": canonical.ID,
					"error": err.Error(),
				})
		}
		return queue.Delivered, canonical, nil

	case models.OperationUpdate, models.OperationSubmit, models.OperationSubmitReview:
		canonical, err := svc.Update(ctx, item.EntityID, item.Data)
		if err != nil {
			return e.classify(ctx, item, err)
		}
		canonical.Meta.MarkSynced(now)
		if err := e.store.Put(ctx, canonical); err != nil {
			return queue.Retry, nil, err
		}
		return queue.Delivered, canonical, nil

	case models.OperationDelete:
		if err := svc.Delete(ctx, item.EntityID); err != nil {
			return e.classify(ctx, item, err)
		}
		if err := e.store.Delete(ctx, item.EntityType, item.EntityID); err != nil {
			return queue.Retry, nil, err
		}
		return queue.Delivered, nil, nil
	}

	return queue.Drop, nil, errors.New(errors.ErrInvalid,
		fmt.Sprintf("unknown operation %q", item.Operation))
}

// classify routes a failed remote attempt: conflicts to the resolver,
// transient failures back to the queue, everything else dropped.
func (e *Engine) classify(ctx context.Context, item *models.SyncQueueItem, err error) (queue.Disposition, *models.Record, error) {
	if ce, ok := remote.AsConflict(err); ok {
		return e.handleConflict(ctx, item, ce)
	}
	if errors.IsRetryable(err) {
		return queue.Retry, nil, err
	}
	if errors.Is(err, errors.ErrValidation) {
		return queue.Drop, nil, err
	}
	// Unknown failure shapes retry rather than losing the mutation.
	return queue.Retry, nil, err
}

// handleConflict runs detection and resolution when the server reports its
// copy changed independently of the queued mutation.
func (e *Engine) handleConflict(ctx context.Context, item *models.SyncQueueItem, ce *remote.ConflictError) (queue.Disposition, *models.Record, error) {
	server := ce.Server
	if server == nil {
		// Server reported a conflict but sent no record; retry so the next
		// attempt can pick up its copy.
		return queue.Retry, nil, errors.New(errors.ErrConflictDetected,
			"conflict reported without server record")
	}

	local, err := e.store.Get(ctx, item.EntityType, item.EntityID)
	if err != nil {
		return queue.Retry, nil, err
	}
	if local == nil {
		local = &models.Record{ID: item.EntityID, Type: item.EntityType, Payload: item.Data}
	}

	cd, found := e.resolver.Detect(local, server, 0, ce.ServerVersion)
	if !found {
		// Same content on both sides; treat as delivered.
		now := time.Now().Unix()
		server.Meta.MarkSynced(now)
		if uuid.IsTemporary(item.EntityID) {
			if err := e.store.Replace(ctx, item.EntityType, item.EntityID, server); err != nil {
				return queue.Retry, nil, err
			}
			if err := e.queue.RemapEntity(ctx, item.EntityType, item.EntityID, server.ID); err != nil {
				logging.Warn("failed to remap queued mutations to canonical id",
					map[string]interface{}{
						"temp_id": item.EntityID, "canonical_id": server.ID,
						"error": err.Error(),
					})
			}
		} else if err := e.store.Put(ctx, server); err != nil {
			return queue.Retry, nil, err
		}
		return queue.Delivered, server, nil
	}

	outcome, err := e.resolver.Resolve(ctx, cd)
	if err != nil {
		return queue.Retry, nil, err
	}

	if e.events.OnConflict != nil {
		e.events.OnConflict(cd)
	}

	return e.applyOutcome(ctx, item, outcome)
}

// applyOutcome maps a resolver outcome onto the store and the queue.
func (e *Engine) applyOutcome(ctx context.Context, item *models.SyncQueueItem, outcome *conflict.Outcome) (queue.Disposition, *models.Record, error) {
	switch outcome.Action {
	case conflict.DiscardLocal:
		if err := e.store.Put(ctx, outcome.Winner); err != nil {
			return queue.Retry, nil, err
		}
		return queue.Drop, outcome.Winner, nil

	case conflict.ReissueLocal:
		// Refresh the base and re-deliver the local (or merged) payload.
		svc, err := e.registry.For(item.EntityType)
		if err != nil {
			return queue.Drop, nil, err
		}
		canonical, err := svc.Update(ctx, outcome.Conflict.EntityID, outcome.ReissuePayload)
		if err != nil {
			item.Data = outcome.ReissuePayload
			return queue.Retry, nil, err
		}
		canonical.Meta.MarkSynced(time.Now().Unix())
		if err := e.store.Put(ctx, canonical); err != nil {
			return queue.Retry, nil, err
		}
		return queue.Delivered, canonical, nil

	case conflict.AwaitManual:
		return queue.Block, nil, nil
	}
	return queue.Retry, nil, nil
}

// ResolveManual settles a manual conflict with the caller's choice and
// unblocks the entity's queued mutations.
func (e *Engine) ResolveManual(ctx context.Context, conflictID string, choice models.Strategy) error {
	outcome, err := e.resolver.ResolveManual(ctx, conflictID, choice)
	if err != nil {
		return err
	}

	cd := outcome.Conflict
	e.queue.UnblockEntity(cd.EntityType, cd.EntityID)

	switch outcome.Action {
	case conflict.DiscardLocal:
		if err := e.store.Put(ctx, outcome.Winner); err != nil {
			return err
		}
		// Queued mutations for the entity are now stale; discard them.
		for _, item := range e.queue.ItemsForEntity(cd.EntityType, cd.EntityID) {
			if err := e.queue.Discard(ctx, item.ID); err != nil {
				return err
			}
		}

	case conflict.ReissueLocal:
		// The retained head mutation would re-deliver its stale payload and
		// re-conflict. Swap in the chosen payload, then re-issue it right
		// away when online; otherwise the next flush delivers it.
		items := e.queue.ItemsForEntity(cd.EntityType, cd.EntityID)
		if len(items) == 0 {
			return nil
		}
		head := items[0]
		if err := e.queue.UpdateData(ctx, head.ID, outcome.ReissuePayload); err != nil {
			return err
		}
		if !e.monitor.IsOnline() {
			return nil
		}
		disposition, _, cause := e.applyOutcome(ctx, head, outcome)
		switch disposition {
		case queue.Delivered:
			return e.queue.MarkSucceeded(ctx, head.ID)
		case queue.Retry:
			return e.queue.MarkFailed(ctx, head.ID, cause)
		}
	}
	return nil
}

// Flush drains the sync queue against the remote service. It is a no-op on
// an empty queue, and a coded no-op when a flush is already running.
func (e *Engine) Flush(ctx context.Context) (*queue.FlushResult, error) {
	e.setSyncInProgress(ctx, true)
	defer e.setSyncInProgress(ctx, false)

	deliver := queue.DeliverFunc(func(ctx context.Context, item *models.SyncQueueItem) (queue.Disposition, error) {
		disposition, _, cause := e.attempt(ctx, item)
		// This failure will exhaust the retry budget; surface it on the
		// record itself.
		if disposition == queue.Retry && item.RetryCount+1 >= item.MaxRetries {
			e.markRecordFailed(ctx, item)
		}
		// A validation rejection this long after the optimistic write has no
		// prior snapshot to restore. A rejected create vanishes; a rejected
		// update keeps its payload but is flagged so the UI can surface it.
		if disposition == queue.Drop && errors.Is(cause, errors.ErrValidation) {
			if item.Operation == models.OperationCreate {
				if err := e.store.Delete(ctx, item.EntityType, item.EntityID); err != nil {
					logging.Warn("failed to remove rejected optimistic create",
						map[string]interface{}{"entity_id": item.EntityID, "error": err.Error()})
				}
			} else {
				e.markRecordFailed(ctx, item)
			}
		}
		return disposition, cause
	})

	result, err := e.queue.Flush(ctx, deliver, e.monitor.IsOnline, func(pct int) {
		e.onProgress(ctx, pct)
	})
	if err != nil {
		return result, err
	}

	if result.Delivered > 0 || result.Processed == 0 {
		e.markSyncSuccess(ctx)
	}
	return result, nil
}

// Status returns the aggregate engine state.
func (e *Engine) Status() models.SyncStatus {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	st := e.status
	st.IsOnline = e.monitor.IsOnline()
	return st
}

// Conflicts lists recorded conflicts for display.
func (e *Engine) Conflicts(ctx context.Context, onlyUnresolved bool) ([]*models.ConflictData, error) {
	return e.store.Conflicts(ctx, onlyUnresolved)
}

func (e *Engine) onQueueChanged(pending, failed int) {
	e.statusMu.Lock()
	e.status.PendingItemsCount = pending
	e.status.FailedItemsCount = failed
	snapshot := e.status
	snapshot.IsOnline = e.monitor.IsOnline()
	e.statusMu.Unlock()

	if err := e.store.SaveSyncStatus(context.Background(), &snapshot); err != nil {
		logging.Warn("failed to persist sync status",
			map[string]interface{}{"error": err.Error()})
	}
	if e.events.OnQueueChanged != nil {
		e.events.OnQueueChanged(pending, failed)
	}
}

func (e *Engine) onProgress(ctx context.Context, pct int) {
	e.statusMu.Lock()
	e.status.SyncProgressPct = pct
	e.statusMu.Unlock()
	if e.events.OnProgress != nil {
		e.events.OnProgress(pct)
	}
}

func (e *Engine) setSyncInProgress(ctx context.Context, v bool) {
	e.statusMu.Lock()
	e.status.SyncInProgress = v
	snapshot := e.status
	e.statusMu.Unlock()
	if err := e.store.SaveSyncStatus(ctx, &snapshot); err != nil {
		logging.Warn("failed to persist sync status",
			map[string]interface{}{"error": err.Error()})
	}
}

func (e *Engine) markSyncSuccess(ctx context.Context) {
	e.statusMu.Lock()
	e.status.LastSuccessfulSync = time.Now().Unix()
	snapshot := e.status
	e.statusMu.Unlock()
	if err := e.store.SaveSyncStatus(ctx, &snapshot); err != nil {
		logging.Warn("failed to persist sync status",
			map[string]interface{}{"error": err.Error()})
	}
}

func (e *Engine) refreshStatus(ctx context.Context) {
	pending, failed := e.queue.Counts()
	e.statusMu.Lock()
	e.status.PendingItemsCount = pending
	e.status.FailedItemsCount = failed
	e.statusMu.Unlock()
}
