package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/marmos91/dittosite/pkg/identity"
	"github.com/marmos91/dittosite/pkg/remote"
	"github.com/marmos91/dittosite/pkg/store/kv"
)

// StoreCache is the name of the store holding the server-side cache and
// the author's stored credentials.
const StoreCache = "cache"

// Registry manages the named resources shared by every adapter: key-value
// stores, the author's remote client and the identity manager.
//
// It provides thread-safe registration and lookup. Stores are registered
// once at startup by pkg/config and closed together by Close.
//
// Example usage:
//
//	reg := NewRegistry()
//	reg.RegisterStore(registry.StoreCache, badgerStore)
//	reg.SetRemote(s3Client)
//	reg.SetIdentity(identity.NewManager(uid, badgerStore, s3Client, provider))
//
//	store, _ := reg.GetStore(registry.StoreCache)
type Registry struct {
	mu       sync.RWMutex
	stores   map[string]kv.Store
	remote   remote.Client
	identity *identity.Manager
	closed   bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		stores: make(map[string]kv.Store),
	}
}

// RegisterStore adds a named key-value store to the registry.
// Returns an error if a store with the same name already exists.
func (r *Registry) RegisterStore(name string, store kv.Store) error {
	if store == nil {
		return fmt.Errorf("cannot register nil store")
	}
	if name == "" {
		return fmt.Errorf("cannot register store with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return kv.ErrClosed
	}
	if _, exists := r.stores[name]; exists {
		return fmt.Errorf("store %q already registered", name)
	}

	r.stores[name] = store
	return nil
}

// GetStore retrieves a store by name.
// Returns nil, error if not found.
func (r *Registry) GetStore(name string) (kv.Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	store, exists := r.stores[name]
	if !exists {
		return nil, fmt.Errorf("store %q not found", name)
	}
	return store, nil
}

// ListStores returns all registered store names, sorted.
// The returned slice is a copy and safe to modify.
func (r *Registry) ListStores() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CountStores returns the number of registered stores.
func (r *Registry) CountStores() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}

// SetRemote installs the author's remote client.
func (r *Registry) SetRemote(client remote.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remote = client
}

// Remote returns the author's remote client, or nil before SetRemote.
func (r *Registry) Remote() remote.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.remote
}

// SetIdentity installs the identity manager.
func (r *Registry) SetIdentity(m *identity.Manager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identity = m
}

// Identity returns the identity manager, or nil before SetIdentity.
func (r *Registry) Identity() *identity.Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.identity
}

// Close closes every registered store. It is idempotent; errors from
// individual stores are joined.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for name, store := range r.stores {
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
