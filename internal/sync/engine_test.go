package sync

import (
	"context"
	"encoding/json"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adorsys-gis/dgat-sync/internal/config"
	"github.com/adorsys-gis/dgat-sync/internal/errors"
	"github.com/adorsys-gis/dgat-sync/internal/models"
	"github.com/adorsys-gis/dgat-sync/internal/netmon"
	"github.com/adorsys-gis/dgat-sync/internal/remote"
	"github.com/adorsys-gis/dgat-sync/internal/store"
	"github.com/adorsys-gis/dgat-sync/internal/uuid"
)

// fakeService is an in-memory remote.Service with scriptable failures.
type fakeService struct {
	mu      stdsync.Mutex
	records map[string]*models.Record

	createErr error
	updateErr error
	deleteErr error
	fetchErr  error

	createCalls int
	updateCalls int
	updateIDs   []string

	nextID int
}

func newFakeService() *fakeService {
	return &fakeService{records: make(map[string]*models.Record)}
}

func (s *fakeService) seed(rec *models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
}

func (s *fakeService) Fetch(_ context.Context, _ remote.Filter) ([]*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []*models.Record
	for _, rec := range s.records {
		snapshot := *rec
		out = append(out, &snapshot)
	}
	return out, nil
}

func (s *fakeService) Create(_ context.Context, payload []byte) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.nextID++
	rec := &models.Record{
		ID:      fmt.Sprintf("srv-%d", s.nextID),
		Type:    models.EntityAssessment,
		Payload: payload,
		Meta:    models.Meta{UpdatedAt: time.Now().Unix(), SyncState: models.SyncStateSynced},
	}
	s.records[rec.ID] = rec
	snapshot := *rec
	return &snapshot, nil
}

func (s *fakeService) Update(_ context.Context, id string, payload []byte) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	s.updateIDs = append(s.updateIDs, id)
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	rec := &models.Record{
		ID:      id,
		Type:    models.EntityAssessment,
		Payload: payload,
		Meta:    models.Meta{UpdatedAt: time.Now().Unix(), SyncState: models.SyncStateSynced},
	}
	s.records[id] = rec
	snapshot := *rec
	return &snapshot, nil
}

func (s *fakeService) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.records, id)
	return nil
}

type testEnv struct {
	engine  *Engine
	store   *store.Store
	monitor *netmon.Monitor
	svc     *fakeService
}

func newTestEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Store.DataDir = t.TempDir()
	cfg.Queue.BackoffBase = time.Nanosecond // due immediately at unix-second granularity
	cfg.Network.DebounceWindow = 0
	if mutate != nil {
		mutate(cfg)
	}

	st, err := store.Open(cfg.Store.DataDir)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate())

	monitor := netmon.New(cfg.Network, nil, st)

	svc := newFakeService()
	registry := remote.NewRegistry()
	for _, et := range models.All() {
		registry.Register(et, svc)
	}

	engine, err := New(context.Background(), cfg, st, monitor, registry, Events{})
	require.NoError(t, err)

	return &testEnv{engine: engine, store: st, monitor: monitor, svc: svc}
}

func payload(s string) json.RawMessage { return json.RawMessage(s) }

func TestOfflineWriteIsOptimisticAndQueued(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	rec, err := env.engine.Write(ctx, models.EntityAssessment, models.OperationCreate, "", payload(`{"score":5}`))
	require.NoError(t, err)

	assert.True(t, uuid.IsTemporary(rec.ID))
	assert.Equal(t, models.SyncStatePending, rec.Meta.SyncState)
	assert.True(t, rec.Meta.LocalChanges)

	// Visible in the replica immediately.
	stored, err := env.store.Get(ctx, models.EntityAssessment, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.JSONEq(t, `{"score":5}`, string(stored.Payload))

	st := env.engine.Status()
	assert.Equal(t, 1, st.PendingItemsCount)
	assert.False(t, st.IsOnline)

	// No remote call was made.
	assert.Zero(t, env.svc.createCalls)
}

func TestOnlineCreateSwapsTempIDForCanonical(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.monitor.SetOnline(true)

	rec, err := env.engine.Write(ctx, models.EntityAssessment, models.OperationCreate, "", payload(`{"score":5}`))
	require.NoError(t, err)

	assert.False(t, uuid.IsTemporary(rec.ID))
	assert.Equal(t, models.SyncStateSynced, rec.Meta.SyncState)

	// Only the canonical record is visible.
	stored, err := env.store.Get(ctx, models.EntityAssessment, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.SyncStateSynced, stored.Meta.SyncState)
	assert.False(t, stored.Meta.LocalChanges)

	pending, failed := env.engine.Queue().Counts()
	assert.Zero(t, pending+failed)
}

func TestReconnectFlushDeliversQueuedWrites(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	rec, err := env.engine.Write(ctx, models.EntityAssessment, models.OperationCreate, "", payload(`{"score":5}`))
	require.NoError(t, err)
	require.True(t, uuid.IsTemporary(rec.ID))

	// Going online triggers an automatic flush.
	env.monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		pending, failed := env.engine.Queue().Counts()
		return pending+failed == 0
	}, 2*time.Second, 10*time.Millisecond)

	// The temp record was replaced by the server-issued one.
	stored, err := env.store.Get(ctx, models.EntityAssessment, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, stored, "temporary record must be gone")

	canonical, err := env.store.Get(ctx, models.EntityAssessment, "srv-1")
	require.NoError(t, err)
	require.NotNil(t, canonical)
	assert.Equal(t, models.SyncStateSynced, canonical.Meta.SyncState)
}

func TestOfflineCreateThenUpdateReconcilesUnderCanonicalID(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	rec, err := env.engine.Write(ctx, models.EntityAssessment, models.OperationCreate, "", payload(`{"score":1}`))
	require.NoError(t, err)
	require.True(t, uuid.IsTemporary(rec.ID))

	_, err = env.engine.Write(ctx, models.EntityAssessment, models.OperationUpdate, rec.ID, payload(`{"score":2}`))
	require.NoError(t, err)

	env.monitor.SetOnline(true)
	require.Eventually(t, func() bool {
		pending, failed := env.engine.Queue().Counts()
		return pending+failed == 0
	}, 2*time.Second, 10*time.Millisecond)

	// The temporary record is gone and the follow-up edit landed on the
	// canonical record, not back under the temporary id.
	stored, err := env.store.Get(ctx, models.EntityAssessment, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, stored, "temporary record must be gone after reconciliation")

	canonical, err := env.store.Get(ctx, models.EntityAssessment, "srv-1")
	require.NoError(t, err)
	require.NotNil(t, canonical)
	assert.JSONEq(t, `{"score":2}`, string(canonical.Payload))
	assert.Equal(t, models.SyncStateSynced, canonical.Meta.SyncState)

	// The server only ever saw the canonical id.
	env.svc.mu.Lock()
	updated := append([]string(nil), env.svc.updateIDs...)
	env.svc.mu.Unlock()
	require.Len(t, updated, 1)
	assert.Equal(t, "srv-1", updated[0])
}

func TestValidationRejectionRevertsCreate(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.monitor.SetOnline(true)
	env.svc.createErr = errors.New(errors.ErrValidation, "score out of range")

	_, err := env.engine.Write(ctx, models.EntityAssessment, models.OperationCreate, "", payload(`{"score":-1}`))
	require.Error(t, err)
	assert.Equal(t, errors.ErrValidation, errors.Code(err))

	// The optimistic create was rolled back and nothing is queued.
	rows, err := env.store.GetAll(ctx, models.EntityAssessment, store.Filter{})
	require.NoError(t, err)
	defer rows.Close()
	assert.False(t, rows.Next())

	pending, failed := env.engine.Queue().Counts()
	assert.Zero(t, pending+failed)
}

func TestValidationRejectionRevertsUpdateToPrior(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	prior := &models.Record{ID: "a1", Type: models.EntityAssessment, Payload: payload(`{"score":5}`)}
	prior.Meta.MarkSynced(time.Now().Unix())
	require.NoError(t, env.store.Put(ctx, prior))

	env.monitor.SetOnline(true)
	env.svc.updateErr = errors.New(errors.ErrValidation, "score out of range")

	_, err := env.engine.Write(ctx, models.EntityAssessment, models.OperationUpdate, "a1", payload(`{"score":-1}`))
	require.Error(t, err)
	assert.Equal(t, errors.ErrValidation, errors.Code(err))

	stored, err := env.store.Get(ctx, models.EntityAssessment, "a1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.JSONEq(t, `{"score":5}`, string(stored.Payload), "prior state restored")
	assert.Equal(t, models.SyncStateSynced, stored.Meta.SyncState)
}

func TestFlushTimeValidationRejectionRemovesCreate(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	// Queued while offline, rejected when the flush finally delivers it.
	rec, err := env.engine.Write(ctx, models.EntityAssessment, models.OperationCreate, "", payload(`{"score":-1}`))
	require.NoError(t, err)

	env.svc.createErr = errors.New(errors.ErrValidation, "score out of range")
	env.monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		pending, failed := env.engine.Queue().Counts()
		return pending+failed == 0
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := env.store.Get(ctx, models.EntityAssessment, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, stored, "rejected optimistic create must not linger")
}

func TestTransientFailureKeepsOptimisticState(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.monitor.SetOnline(true)
	env.svc.createErr = errors.New(errors.ErrTransientNetwork, "connection reset")

	rec, err := env.engine.Write(ctx, models.EntityAssessment, models.OperationCreate, "", payload(`{"score":5}`))
	require.NoError(t, err, "transient failures are not surfaced; the queue retries")

	assert.True(t, uuid.IsTemporary(rec.ID))
	assert.Equal(t, models.SyncStatePending, rec.Meta.SyncState)

	pending, _ := env.engine.Queue().Counts()
	assert.Equal(t, 1, pending)
}

func TestTerminalRetryFailureFlagsRecord(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.monitor.SetOnline(true)
	env.svc.updateErr = errors.New(errors.ErrTransientNetwork, "connection reset")

	prior := &models.Record{ID: "a1", Type: models.EntityAssessment, Payload: payload(`{"score":5}`)}
	prior.Meta.MarkSynced(time.Now().Unix())
	require.NoError(t, env.store.Put(ctx, prior))

	_, err := env.engine.Write(ctx, models.EntityAssessment, models.OperationUpdate, "a1", payload(`{"score":9}`))
	require.NoError(t, err)

	// Drive the remaining retries to exhaustion.
	require.Eventually(t, func() bool {
		_, ferr := env.engine.Flush(ctx)
		if ferr != nil {
			return false
		}
		_, failed := env.engine.Queue().Counts()
		return failed == 1
	}, 5*time.Second, 50*time.Millisecond)

	// The record keeps the local payload and is flagged failed.
	stored, err := env.store.Get(ctx, models.EntityAssessment, "a1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.SyncStateFailed, stored.Meta.SyncState)
	assert.JSONEq(t, `{"score":9}`, string(stored.Payload))

	// User-level retry brings it back to pending.
	count, err := env.engine.Queue().RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestConflictServerWinsByDefault(t *testing.T) {
	var conflictMu stdsync.Mutex
	var seen []*models.ConflictData

	env := newTestEnv(t, nil)
	env.engine.events.OnConflict = func(cd *models.ConflictData) {
		conflictMu.Lock()
		seen = append(seen, cd)
		conflictMu.Unlock()
	}
	ctx := context.Background()

	prior := &models.Record{ID: "a1", Type: models.EntityAssessment, Payload: payload(`{"score":5}`)}
	prior.Meta.MarkSynced(time.Now().Unix() - 100)
	require.NoError(t, env.store.Put(ctx, prior))

	server := &models.Record{ID: "a1", Type: models.EntityAssessment, Payload: payload(`{"score":7}`)}
	server.Meta.UpdatedAt = time.Now().Unix() - 50
	env.svc.updateErr = &remote.ConflictError{Server: server}

	env.monitor.SetOnline(true)
	_, err := env.engine.Write(ctx, models.EntityAssessment, models.OperationUpdate, "a1", payload(`{"score":9}`))
	require.NoError(t, err, "a resolved conflict is data, not an error")

	// The server copy won; the local mutation was discarded.
	stored, err := env.store.Get(ctx, models.EntityAssessment, "a1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.JSONEq(t, `{"score":7}`, string(stored.Payload))
	assert.Equal(t, models.SyncStateSynced, stored.Meta.SyncState)

	pending, failed := env.engine.Queue().Counts()
	assert.Zero(t, pending+failed)

	// Recorded for history and surfaced through the event.
	history, err := env.engine.Conflicts(ctx, false)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Resolved)

	conflictMu.Lock()
	assert.Len(t, seen, 1)
	conflictMu.Unlock()
}

func TestManualConflictBlocksUntilResolved(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Strategies = map[models.EntityType]models.Strategy{
			models.EntityAssessment: models.StrategyManual,
		}
	})
	ctx := context.Background()

	prior := &models.Record{ID: "a1", Type: models.EntityAssessment, Payload: payload(`{"score":5}`)}
	prior.Meta.MarkSynced(time.Now().Unix() - 100)
	require.NoError(t, env.store.Put(ctx, prior))

	server := &models.Record{ID: "a1", Type: models.EntityAssessment, Payload: payload(`{"score":7}`)}
	server.Meta.UpdatedAt = time.Now().Unix() - 50
	env.svc.updateErr = &remote.ConflictError{Server: server}

	env.monitor.SetOnline(true)
	_, err := env.engine.Write(ctx, models.EntityAssessment, models.OperationUpdate, "a1", payload(`{"score":9}`))
	require.NoError(t, err)

	// The mutation is retained but blocked.
	pending, _ := env.engine.Queue().Counts()
	assert.Equal(t, 1, pending)
	assert.Nil(t, env.engine.Queue().DequeueNext())

	unresolved, err := env.engine.Conflicts(ctx, true)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)

	// Settle it: server wins, stale queued mutation discarded.
	require.NoError(t, env.engine.ResolveManual(ctx, unresolved[0].ID, models.StrategyServerWins))

	stored, err := env.store.Get(ctx, models.EntityAssessment, "a1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"score":7}`, string(stored.Payload))

	pending, failed := env.engine.Queue().Counts()
	assert.Zero(t, pending+failed)

	unresolved, err = env.engine.Conflicts(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
}

func TestManualConflictLocalWinsReissues(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Strategies = map[models.EntityType]models.Strategy{
			models.EntityAssessment: models.StrategyManual,
		}
	})
	ctx := context.Background()

	prior := &models.Record{ID: "a1", Type: models.EntityAssessment, Payload: payload(`{"score":5}`)}
	prior.Meta.MarkSynced(time.Now().Unix() - 100)
	require.NoError(t, env.store.Put(ctx, prior))

	server := &models.Record{ID: "a1", Type: models.EntityAssessment, Payload: payload(`{"score":7}`)}
	server.Meta.UpdatedAt = time.Now().Unix() - 50
	env.svc.updateErr = &remote.ConflictError{Server: server}

	env.monitor.SetOnline(true)
	_, err := env.engine.Write(ctx, models.EntityAssessment, models.OperationUpdate, "a1", payload(`{"score":9}`))
	require.NoError(t, err)

	unresolved, err := env.engine.Conflicts(ctx, true)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)

	// The server accepts once the user explicitly chose the local copy.
	env.svc.mu.Lock()
	env.svc.updateErr = nil
	env.svc.mu.Unlock()

	require.NoError(t, env.engine.ResolveManual(ctx, unresolved[0].ID, models.StrategyLocalWins))

	// The local payload was re-delivered, not retried against the stale base.
	stored, err := env.store.Get(ctx, models.EntityAssessment, "a1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.JSONEq(t, `{"score":9}`, string(stored.Payload))
	assert.Equal(t, models.SyncStateSynced, stored.Meta.SyncState)

	env.svc.mu.Lock()
	remoteCopy := env.svc.records["a1"]
	env.svc.mu.Unlock()
	require.NotNil(t, remoteCopy)
	assert.JSONEq(t, `{"score":9}`, string(remoteCopy.Payload))

	pending, failed := env.engine.Queue().Counts()
	assert.Zero(t, pending+failed, "the retained mutation is settled, not re-queued")

	unresolved, err = env.engine.Conflicts(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, unresolved)
}

func TestOfflineReadServesStaleReplica(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	rec := &models.Record{ID: "a1", Type: models.EntityAssessment, Payload: payload(`{"score":5}`)}
	rec.Meta.MarkSynced(time.Now().Unix())
	require.NoError(t, env.store.Put(ctx, rec))

	result, err := env.engine.Read(ctx, models.EntityAssessment, nil)
	require.NoError(t, err)
	assert.True(t, result.Stale, "offline reads must be stale-marked")
	require.Len(t, result.Records, 1)
	assert.Equal(t, "a1", result.Records[0].ID)
}

func TestOfflineReadAppliesFilter(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for id, assessment := range map[string]string{"r1": "a1", "r2": "a1", "r3": "a2"} {
		rec := &models.Record{
			ID:      id,
			Type:    models.EntityResponse,
			Payload: payload(fmt.Sprintf(`{"assessment_id":%q,"score":5}`, assessment)),
		}
		rec.Meta.MarkSynced(time.Now().Unix())
		require.NoError(t, env.store.Put(ctx, rec))
	}

	// A filtered read answered from the replica returns the same subset the
	// remote call would, not the whole table.
	result, err := env.engine.Read(ctx, models.EntityResponse, remote.Filter{"assessment_id": "a1"})
	require.NoError(t, err)
	assert.True(t, result.Stale)
	require.Len(t, result.Records, 2)
	for _, rec := range result.Records {
		assert.Contains(t, []string{"r1", "r2"}, rec.ID)
	}

	// No local match for the filter means no data, not unrelated records.
	_, err = env.engine.Read(ctx, models.EntityResponse, remote.Filter{"assessment_id": "a9"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrNoData, errors.Code(err))
}

func TestOfflineReadWithoutDataFails(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.Read(context.Background(), models.EntityQuestion, nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrNoData, errors.Code(err))
}

func TestOnlineReadWritesThrough(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.monitor.SetOnline(true)

	remoteRec := &models.Record{ID: "a1", Type: models.EntityAssessment, Payload: payload(`{"score":5}`)}
	remoteRec.Meta.UpdatedAt = time.Now().Unix()
	env.svc.seed(remoteRec)

	result, err := env.engine.Read(ctx, models.EntityAssessment, nil)
	require.NoError(t, err)
	assert.False(t, result.Stale)
	require.Len(t, result.Records, 1)

	// The replica was refreshed, so a later offline read succeeds.
	env.monitor.SetOnline(false)
	stale, err := env.engine.Read(ctx, models.EntityAssessment, nil)
	require.NoError(t, err)
	assert.True(t, stale.Stale)
	require.Len(t, stale.Records, 1)
	assert.Equal(t, models.SyncStateSynced, stale.Records[0].Meta.SyncState)
}

func TestWriteThroughDoesNotClobberPendingLocal(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	// A pending local edit...
	local := &models.Record{ID: "a1", Type: models.EntityAssessment, Payload: payload(`{"score":9}`)}
	local.Meta.MarkPending(time.Now().Unix())
	require.NoError(t, env.store.Put(ctx, local))

	// ...must survive a fetch that returns the server's older copy.
	remoteRec := &models.Record{ID: "a1", Type: models.EntityAssessment, Payload: payload(`{"score":5}`)}
	remoteRec.Meta.UpdatedAt = time.Now().Unix()
	env.svc.seed(remoteRec)

	env.monitor.SetOnline(true)
	_, err := env.engine.Read(ctx, models.EntityAssessment, nil)
	require.NoError(t, err)

	stored, err := env.store.Get(ctx, models.EntityAssessment, "a1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"score":9}`, string(stored.Payload))
	assert.True(t, stored.Meta.LocalChanges)
}

func TestRemoteFailureFallsBackToReplica(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	rec := &models.Record{ID: "a1", Type: models.EntityAssessment, Payload: payload(`{"score":5}`)}
	rec.Meta.MarkSynced(time.Now().Unix())
	require.NoError(t, env.store.Put(ctx, rec))

	env.monitor.SetOnline(true)
	env.svc.fetchErr = errors.New(errors.ErrTransientNetwork, "gateway timeout")

	result, err := env.engine.Read(ctx, models.EntityAssessment, nil)
	require.NoError(t, err)
	assert.True(t, result.Stale)
	require.Len(t, result.Records, 1)
}

func TestDeleteKeepsRowUntilAcknowledged(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	rec := &models.Record{ID: "a1", Type: models.EntityAssessment, Payload: payload(`{"score":5}`)}
	rec.Meta.MarkSynced(time.Now().Unix())
	require.NoError(t, env.store.Put(ctx, rec))
	env.svc.seed(rec)

	// Offline delete: the row stays visible as pending.
	_, err := env.engine.Write(ctx, models.EntityAssessment, models.OperationDelete, "a1", nil)
	require.NoError(t, err)

	stored, err := env.store.Get(ctx, models.EntityAssessment, "a1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.SyncStatePending, stored.Meta.SyncState)

	// Acknowledged on flush; the row disappears.
	env.monitor.SetOnline(true)
	require.Eventually(t, func() bool {
		got, gerr := env.store.Get(ctx, models.EntityAssessment, "a1")
		return gerr == nil && got == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFlushOnEmptyQueue(t *testing.T) {
	env := newTestEnv(t, nil)
	env.monitor.SetOnline(true)

	result, err := env.engine.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Processed)

	st := env.engine.Status()
	assert.NotZero(t, st.LastSuccessfulSync)
	assert.False(t, st.SyncInProgress)
}

func TestUnknownEntityTypeRefused(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.engine.Read(ctx, models.EntityType("bogus"), nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrUnknownEntity, errors.Code(err))

	_, err = env.engine.Write(ctx, models.EntityType("bogus"), models.OperationCreate, "", payload(`{}`))
	require.Error(t, err)
	assert.Equal(t, errors.ErrUnknownEntity, errors.Code(err))
}

func TestSubmitOutranksRoutineEdits(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.engine.Write(ctx, models.EntityAssessment, models.OperationCreate, "", payload(`{"score":5}`))
	require.NoError(t, err)

	sub := &models.Record{ID: "s1", Type: models.EntitySubmission, Payload: payload(`{"final":true}`)}
	sub.Meta.MarkSynced(time.Now().Unix())
	require.NoError(t, env.store.Put(ctx, sub))
	_, err = env.engine.Write(ctx, models.EntitySubmission, models.OperationSubmit, "s1", payload(`{"final":true}`))
	require.NoError(t, err)

	next := env.engine.Queue().DequeueNext()
	require.NotNil(t, next)
	assert.Equal(t, models.OperationSubmit, next.Operation)
	assert.Equal(t, models.PriorityHigh, next.Priority)
}
