package artifact

import (
	"context"

	lru "github.com/hashicorp/golang-lru"

	"github.com/YuminosukeSato/churnscope/pkg/errors"
	"github.com/YuminosukeSato/churnscope/pkg/log"
)

// Registry caches loaded artifacts by name. A cached entry is reused only
// while the committed manifest still carries the same artifact ID.
type Registry struct {
	store Store
	cache *lru.Cache
}

// NewRegistry keeps at most size loaded artifacts.
func NewRegistry(store Store, size int) (*Registry, error) {
	if size <= 0 {
		return nil, errors.NewValidationError("size", "must be positive", size)
	}
	cache, err := lru.NewWithEvict(size, func(key, _ interface{}) {
		log.GetLoggerWithName("artifact").Debug("Registry dropped an artifact", log.ModelNameKey, key)
	})
	if err != nil {
		return nil, errors.Wrap(err, "create registry cache")
	}
	return &Registry{store: store, cache: cache}, nil
}

// Get returns the artifact committed under name, loading it on a miss.
func (r *Registry) Get(ctx context.Context, name string) (*ExplainedModel, error) {
	man, err := ReadManifest(ctx, r.store, name)
	if err != nil {
		r.cache.Remove(name)
		return nil, err
	}
	if v, ok := r.cache.Get(name); ok {
		if m := v.(*ExplainedModel); m.id == man.ArtifactID {
			return m, nil
		}
	}
	m, err := Load(ctx, name, r.store)
	if err != nil {
		return nil, err
	}
	r.cache.Add(name, m)
	return m, nil
}

// Invalidate drops name from the cache.
func (r *Registry) Invalidate(name string) {
	r.cache.Remove(name)
}

// Len returns the number of cached artifacts.
func (r *Registry) Len() int {
	return r.cache.Len()
}
