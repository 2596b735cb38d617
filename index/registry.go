package index

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps backend keys to configured Indexer instances. It is built
// once at startup from capability flags (which stores are configured) and
// is read-only afterwards; lookups of unknown keys fail hard because
// embeddings written by one backend cannot be read through another.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Indexer
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Indexer)}
}

// Register adds a configured backend under its key, replacing any previous
// registration for the same key.
func (r *Registry) Register(key string, backend Indexer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[key] = backend
}

// Get returns the backend registered under key, or ErrUnknownBackend when
// the key was never configured.
func (r *Registry) Get(key string) (Indexer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	backend, ok := r.backends[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q (configured: %v)", ErrUnknownBackend, key, r.keysLocked())
	}
	return backend, nil
}

// Keys returns the registered backend keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keysLocked()
}

func (r *Registry) keysLocked() []string {
	keys := make([]string, 0, len(r.backends))
	for k := range r.backends {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
