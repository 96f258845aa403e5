// Package dgatsync is the offline-first local replica and synchronization
// engine behind the sustainability-assessment dashboard. Application code
// keeps working against a local SQLite replica while disconnected; mutations
// queue durably for later delivery, optimistic local writes reconcile
// against the remote service, and conflicting edits are detected and
// resolved per entity-type policy.
//
// Construct one Client at process start and inject it wherever reads and
// writes happen:
//
//	cfg := dgatsync.DefaultConfig()
//	cfg.Store.DataDir = dataDir
//	cfg.Remote.BaseURL = "https://api.example.org"
//
//	client, err := dgatsync.Open(ctx, cfg, registry, dgatsync.Events{})
//	if err != nil { ... }
//	defer client.Close()
package dgatsync

import (
	"context"
	"encoding/json"

	"github.com/adorsys-gis/dgat-sync/internal/config"
	"github.com/adorsys-gis/dgat-sync/internal/models"
	"github.com/adorsys-gis/dgat-sync/internal/netmon"
	"github.com/adorsys-gis/dgat-sync/internal/remote"
	"github.com/adorsys-gis/dgat-sync/internal/store"
	syncengine "github.com/adorsys-gis/dgat-sync/internal/sync"
	"github.com/adorsys-gis/dgat-sync/internal/sync/conflict"
	"github.com/adorsys-gis/dgat-sync/internal/sync/queue"
)

// Re-exported data model types.
type (
	EntityType    = models.EntityType
	Record        = models.Record
	Operation     = models.Operation
	Priority      = models.Priority
	SyncState     = models.SyncState
	Strategy      = models.Strategy
	SyncQueueItem = models.SyncQueueItem
	SyncStatus    = models.SyncStatus
	NetworkStatus = models.NetworkStatus
	ConflictData  = models.ConflictData

	Config    = config.Config
	Events    = syncengine.Events
	Filter    = remote.Filter
	Service   = remote.Service
	Registry  = remote.Registry
	MergeFunc = conflict.MergeFunc

	ReadResult  = syncengine.ReadResult
	FlushResult = queue.FlushResult
)

// Entity type constants.
const (
	EntityQuestion             = models.EntityQuestion
	EntityAssessment           = models.EntityAssessment
	EntityResponse             = models.EntityResponse
	EntityCategoryCatalog      = models.EntityCategoryCatalog
	EntitySubmission           = models.EntitySubmission
	EntityDraftSubmission      = models.EntityDraftSubmission
	EntityReport               = models.EntityReport
	EntityAdminReport          = models.EntityAdminReport
	EntityOrganization         = models.EntityOrganization
	EntityUser                 = models.EntityUser
	EntityInvitation           = models.EntityInvitation
	EntityRecommendation       = models.EntityRecommendation
	EntityOrganizationCategory = models.EntityOrganizationCategory
	EntityImage                = models.EntityImage
	EntityActionPlan           = models.EntityActionPlan
)

// Operation and strategy constants.
const (
	OpCreate       = models.OperationCreate
	OpUpdate       = models.OperationUpdate
	OpDelete       = models.OperationDelete
	OpSubmit       = models.OperationSubmit
	OpSubmitReview = models.OperationSubmitReview

	LocalWins  = models.StrategyLocalWins
	ServerWins = models.StrategyServerWins
	Manual     = models.StrategyManual
	Merge      = models.StrategyMerge
)

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config { return config.Default() }

// LoadConfig overlays a YAML file onto the defaults.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// NewRegistry creates an empty remote service registry.
func NewRegistry() *Registry { return remote.NewRegistry() }

// NewHTTPService creates an HTTP-backed remote service for one entity
// collection.
func NewHTTPService(cfg *Config, path string, entity EntityType) Service {
	return remote.NewHTTPService(cfg.Remote.BaseURL, path, entity, cfg.Remote.AttemptTimeout)
}

// Client bundles the engine with the resources it owns.
type Client struct {
	engine  *syncengine.Engine
	store   *store.Store
	monitor *netmon.Monitor
	cancel  context.CancelFunc
}

// Open constructs the full engine: local store (migrated), network monitor
// (started), durable queue (reloaded), and reconciler.
func Open(ctx context.Context, cfg *Config, registry *Registry, events Events) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store.DataDir)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, err
	}

	monitor := netmon.New(cfg.Network, nil, st)

	engine, err := syncengine.New(ctx, cfg, st, monitor, registry, events)
	if err != nil {
		st.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	monitor.Start(runCtx)

	return &Client{
		engine:  engine,
		store:   st,
		monitor: monitor,
		cancel:  cancel,
	}, nil
}

// Close stops background work and closes the local store.
func (c *Client) Close() error {
	c.monitor.Stop()
	c.cancel()
	return c.store.Close()
}

// Read fetches records remote-first with a stale-marked local fallback.
func (c *Client) Read(ctx context.Context, t EntityType, f Filter) (*ReadResult, error) {
	return c.engine.Read(ctx, t, f)
}

// Write applies a mutation optimistically and queues it for delivery.
func (c *Client) Write(ctx context.Context, t EntityType, op Operation, entityID string, payload json.RawMessage) (*Record, error) {
	return c.engine.Write(ctx, t, op, entityID, payload)
}

// Flush drains the sync queue. Also triggered automatically when the
// network monitor reports the offline-to-online transition.
func (c *Client) Flush(ctx context.Context) (*FlushResult, error) {
	return c.engine.Flush(ctx)
}

// Status returns the aggregate engine state.
func (c *Client) Status() SyncStatus { return c.engine.Status() }

// Network returns the current connectivity snapshot.
func (c *Client) Network() NetworkStatus { return c.monitor.Status() }

// SetOnline feeds a platform online/offline signal into the monitor.
func (c *Client) SetOnline(online bool) { c.monitor.SetOnline(online) }

// Conflicts lists recorded conflicts.
func (c *Client) Conflicts(ctx context.Context, onlyUnresolved bool) ([]*ConflictData, error) {
	return c.engine.Conflicts(ctx, onlyUnresolved)
}

// ResolveConflict settles a manual conflict with local_wins or server_wins.
func (c *Client) ResolveConflict(ctx context.Context, conflictID string, choice Strategy) error {
	return c.engine.ResolveManual(ctx, conflictID, choice)
}

// RegisterMerge installs an entity-specific merge function for the merge
// strategy.
func (c *Client) RegisterMerge(t EntityType, fn MergeFunc) {
	c.engine.Resolver().RegisterMerge(t, fn)
}

// RetryFailed resets terminal-failed queue items for another round.
func (c *Client) RetryFailed(ctx context.Context) (int, error) {
	return c.engine.Queue().RetryFailed(ctx)
}

// DiscardFailed drops a terminal-failed queue item.
func (c *Client) DiscardFailed(ctx context.Context, itemID string) error {
	return c.engine.Queue().Discard(ctx, itemID)
}

// QueueItems returns a snapshot of the pending mutation queue.
func (c *Client) QueueItems() []*SyncQueueItem {
	return c.engine.Queue().Items()
}
