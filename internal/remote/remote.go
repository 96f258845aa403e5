// Package remote defines the contract the reconciler consumes for each
// entity type, and classifies remote failures into the engine taxonomy:
// transport errors are retryable, validation errors are not, and conflicts
// are data rather than failures.
package remote

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/adorsys-gis/dgat-sync/internal/errors"
	"github.com/adorsys-gis/dgat-sync/internal/models"
)

// Filter narrows a remote fetch; keys and values are service-defined.
type Filter map[string]string

// Service is the remote contract for one entity type.
type Service interface {
	Fetch(ctx context.Context, f Filter) ([]*models.Record, error)
	Create(ctx context.Context, payload []byte) (*models.Record, error)
	Update(ctx context.Context, id string, payload []byte) (*models.Record, error)
	Delete(ctx context.Context, id string) error
}

// ConflictError reports that the server-side copy of an entity changed
// independently of the queued local mutation. It carries the server's
// current record so the resolver can act without a second round trip.
type ConflictError struct {
	Server *models.Record
	// ServerVersion is the server's explicit version counter, when the
	// service exposes one; 0 otherwise.
	ServerVersion int64
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Server != nil {
		return fmt.Sprintf("remote conflict on %s/%s", e.Server.Type, e.Server.ID)
	}
	return "remote conflict"
}

// AsConflict extracts a ConflictError from an error chain.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Registry maps entity types to their remote services.
type Registry struct {
	services map[models.EntityType]Service
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[models.EntityType]Service)}
}

// Register binds a service to an entity type.
func (r *Registry) Register(t models.EntityType, svc Service) {
	r.services[t] = svc
}

// For returns the service for an entity type.
func (r *Registry) For(t models.EntityType) (Service, error) {
	svc, ok := r.services[t]
	if !ok {
		return nil, errors.New(errors.ErrUnknownEntity,
			fmt.Sprintf("no remote service registered for %q", t))
	}
	return svc, nil
}

// Complete reports whether every known entity type has a service bound.
func (r *Registry) Complete() bool {
	for _, t := range models.All() {
		if _, ok := r.services[t]; !ok {
			return false
		}
	}
	return true
}
