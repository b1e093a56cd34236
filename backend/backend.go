// Package backend defines the builder capability and the registry that maps
// build kinds to their builders.
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/forgehq/forge/models"
)

// A Backend performs the actual build for one kind of job. Implementations
// may be shared between workers and must be threadsafe.
//
// Build either resolves to a BuildResult or fails with a descriptive error.
// The context carries the per-invocation deadline; a backend that can't
// finish in time should return ctx.Err().
type Backend interface {
	Build(ctx context.Context, job *models.BuildJob) (*models.BuildResult, error)
}

// A Registry holds the backend for each supported build kind. Kinds are
// enumerated explicitly at startup; submissions for unregistered kinds are
// rejected before a job record is created.
type Registry struct {
	mu       sync.RWMutex
	backends map[models.BuildKind]Backend
}

func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[models.BuildKind]Backend),
	}
}

// Register assigns b as the builder for kind, replacing any previous
// registration.
func (r *Registry) Register(kind models.BuildKind, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[kind] = b
}

// Get returns the backend for kind, or an error if the kind is unknown.
func (r *Registry) Get(kind models.BuildKind) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[kind]
	if !ok {
		return nil, fmt.Errorf("backend: no builder registered for kind %q", kind)
	}
	return b, nil
}

// Supported reports whether a builder is registered for kind.
func (r *Registry) Supported(kind models.BuildKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.backends[kind]
	return ok
}

// Kinds returns all registered build kinds.
func (r *Registry) Kinds() []models.BuildKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]models.BuildKind, 0, len(r.backends))
	for k := range r.backends {
		kinds = append(kinds, k)
	}
	return kinds
}
