// Package conflict detects and resolves divergence between a locally held
// version and the server's version of the same record.
package conflict

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/adorsys-gis/dgat-sync/internal/errors"
	"github.com/adorsys-gis/dgat-sync/internal/logging"
	"github.com/adorsys-gis/dgat-sync/internal/models"
	"github.com/adorsys-gis/dgat-sync/internal/uuid"
)

// Storage persists conflict records.
type Storage interface {
	PutConflict(ctx context.Context, cd *models.ConflictData) error
	Conflicts(ctx context.Context, onlyUnresolved bool) ([]*models.ConflictData, error)
	MarkConflictResolved(ctx context.Context, id string) error
}

// MergeFunc combines local and server payloads for one entity type.
type MergeFunc func(local, server json.RawMessage) (json.RawMessage, error)

// Action tells the caller what to do with the queued local mutation.
type Action int

const (
	// DiscardLocal: the server copy won; overwrite the local store and
	// drop the queued mutation.
	DiscardLocal Action = iota
	// ReissueLocal: the local (or merged) payload should be re-delivered
	// against the refreshed server base.
	ReissueLocal
	// AwaitManual: both versions are recorded; the entity's queue items
	// stay blocked until the caller resolves the conflict.
	AwaitManual
)

// Outcome is the result of resolving one conflict.
type Outcome struct {
	Conflict *models.ConflictData
	Action   Action
	// Winner is the record the local store should hold after resolution.
	// Nil for AwaitManual.
	Winner *models.Record
	// ReissuePayload is set when Action == ReissueLocal.
	ReissuePayload json.RawMessage
}

// Resolver resolves divergence per the configured strategy. The default is
// server_wins: safe, and it never re-delivers stale data.
type Resolver struct {
	storage         Storage
	defaultStrategy models.Strategy
	strategies      map[models.EntityType]models.Strategy
	merges          map[models.EntityType]MergeFunc
}

// NewResolver creates a Resolver. Strategy overrides may be nil.
func NewResolver(storage Storage, defaultStrategy models.Strategy, strategies map[models.EntityType]models.Strategy) *Resolver {
	if defaultStrategy == "" {
		defaultStrategy = models.StrategyServerWins
	}
	return &Resolver{
		storage:         storage,
		defaultStrategy: defaultStrategy,
		strategies:      strategies,
		merges:          make(map[models.EntityType]MergeFunc),
	}
}

// RegisterMerge installs the entity-specific merge function used by the
// merge strategy. Types without one fall back to server_wins.
func (r *Resolver) RegisterMerge(t models.EntityType, fn MergeFunc) {
	r.merges[t] = fn
}

// StrategyFor returns the effective strategy for an entity type.
func (r *Resolver) StrategyFor(t models.EntityType) models.Strategy {
	if s, ok := r.strategies[t]; ok {
		return s
	}
	return r.defaultStrategy
}

// fingerprint hashes a payload for content-divergence detection.
func fingerprint(payload json.RawMessage) uint64 {
	return xxhash.Sum64(payload)
}

// Detect compares the local base version against the server's current copy.
// An explicit version counter wins over timestamps; equal versions with
// differing content still conflict.
func (r *Resolver) Detect(local, server *models.Record, localVersion, serverVersion int64) (*models.ConflictData, bool) {
	if local == nil || server == nil {
		return nil, false
	}
	if local.ID != server.ID && !uuid.IsTemporary(local.ID) {
		return nil, false
	}

	var conflictType models.ConflictType
	switch {
	case localVersion > 0 && serverVersion > 0 && localVersion != serverVersion:
		conflictType = models.ConflictVersion
	case server.Meta.UpdatedAt != local.Meta.UpdatedAt:
		conflictType = models.ConflictTimestamp
	case fingerprint(local.Payload) != fingerprint(server.Payload):
		conflictType = models.ConflictContent
	default:
		return nil, false
	}

	cd := &models.ConflictData{
		ID:            uuid.New(),
		EntityType:    server.Type,
		EntityID:      server.ID,
		LocalVersion:  local.Payload,
		ServerVersion: server.Payload,
		ConflictType:  conflictType,
		Strategy:      r.StrategyFor(server.Type),
		CreatedAt:     time.Now().Unix(),
	}

	logging.Warn("divergence detected", map[string]interface{}{
		"entity_type":   string(server.Type),
		"entity_id":     server.ID,
		"conflict_type": string(conflictType),
		"local_ts":      local.Meta.UpdatedAt,
		"server_ts":     server.Meta.UpdatedAt,
	})
	return cd, true
}

// Resolve applies the configured strategy to a detected conflict and
// persists the conflict record. An unresolved manual conflict is not an
// error: it is durable, surfaced state.
func (r *Resolver) Resolve(ctx context.Context, cd *models.ConflictData) (*Outcome, error) {
	strategy := cd.Strategy
	if strategy == "" {
		strategy = r.StrategyFor(cd.EntityType)
		cd.Strategy = strategy
	}

	if strategy == models.StrategyMerge {
		if _, ok := r.merges[cd.EntityType]; !ok {
			logging.Warn("no merge function registered, falling back to server_wins",
				map[string]interface{}{"entity_type": string(cd.EntityType)})
			strategy = models.StrategyServerWins
			cd.Strategy = strategy
		}
	}

	var outcome *Outcome
	switch strategy {
	case models.StrategyServerWins:
		cd.Resolved = true
		cd.ResolvedAt = time.Now().Unix()
		outcome = &Outcome{Conflict: cd, Action: DiscardLocal, Winner: r.serverRecord(cd)}

	case models.StrategyLocalWins:
		cd.Resolved = true
		cd.ResolvedAt = time.Now().Unix()
		outcome = &Outcome{Conflict: cd, Action: ReissueLocal, ReissuePayload: cd.LocalVersion}

	case models.StrategyManual:
		cd.Resolved = false
		outcome = &Outcome{Conflict: cd, Action: AwaitManual}

	case models.StrategyMerge:
		merged, err := r.merges[cd.EntityType](cd.LocalVersion, cd.ServerVersion)
		if err != nil {
			return nil, errors.Wrap(errors.ErrConflictDetected,
				fmt.Sprintf("merge failed for %s/%s", cd.EntityType, cd.EntityID), err)
		}
		cd.Resolved = true
		cd.ResolvedAt = time.Now().Unix()
		outcome = &Outcome{Conflict: cd, Action: ReissueLocal, ReissuePayload: merged}

	default:
		return nil, errors.New(errors.ErrInvalid,
			fmt.Sprintf("unknown resolution strategy %q", strategy))
	}

	if err := r.storage.PutConflict(ctx, cd); err != nil {
		return nil, err
	}

	logging.Info("conflict resolved", map[string]interface{}{
		"entity_type": string(cd.EntityType),
		"entity_id":   cd.EntityID,
		"strategy":    string(cd.Strategy),
		"resolved":    cd.Resolved,
	})
	return outcome, nil
}

// ResolveManual settles a previously recorded manual conflict with the
// caller's choice (local_wins or server_wins) and marks it resolved.
func (r *Resolver) ResolveManual(ctx context.Context, conflictID string, choice models.Strategy) (*Outcome, error) {
	conflicts, err := r.storage.Conflicts(ctx, true)
	if err != nil {
		return nil, err
	}
	var cd *models.ConflictData
	for _, c := range conflicts {
		if c.ID == conflictID {
			cd = c
			break
		}
	}
	if cd == nil {
		return nil, errors.New(errors.ErrNotFound,
			fmt.Sprintf("unresolved conflict %s not found", conflictID))
	}

	var outcome *Outcome
	switch choice {
	case models.StrategyServerWins:
		outcome = &Outcome{Conflict: cd, Action: DiscardLocal, Winner: r.serverRecord(cd)}
	case models.StrategyLocalWins:
		outcome = &Outcome{Conflict: cd, Action: ReissueLocal, ReissuePayload: cd.LocalVersion}
	default:
		return nil, errors.New(errors.ErrInvalid,
			fmt.Sprintf("manual resolution must choose local_wins or server_wins, got %q", choice))
	}

	if err := r.storage.MarkConflictResolved(ctx, conflictID); err != nil {
		return nil, err
	}
	cd.Resolved = true
	cd.ResolvedAt = time.Now().Unix()
	return outcome, nil
}

// serverRecord materializes the server version as a synced local record.
func (r *Resolver) serverRecord(cd *models.ConflictData) *models.Record {
	now := time.Now().Unix()
	rec := &models.Record{
		ID:      cd.EntityID,
		Type:    cd.EntityType,
		Payload: cd.ServerVersion,
	}
	rec.Meta.UpdatedAt = now
	rec.Meta.MarkSynced(now)
	return rec
}
