package provider

import (
	"fmt"
	"sync"
)

// Factory constructs a provider for an endpoint. extra carries an optional
// transport resource, e.g. a net.Conn for IPC.
type Factory func(endpoint string, extra interface{}) (interface{}, error)

// Registry maps transport families to provider factories. It only stores
// factories, so replacing an entry never touches providers built earlier.
type Registry struct {
	mtx       sync.RWMutex
	factories map[TransportFamily]Factory
}

// DefaultRegistry is the process-wide registry. Transport packages add
// themselves from init.
var DefaultRegistry = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		mtx:       sync.RWMutex{},
		factories: make(map[TransportFamily]Factory),
	}
}

// Register adds or replaces the factory for family.
func (r *Registry) Register(family TransportFamily, factory Factory) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.factories[family] = factory
}

// Override replaces the factory for family and returns a func restoring the
// previous entry.
func (r *Registry) Override(family TransportFamily, factory Factory) (restore func()) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	prev, existed := r.factories[family]
	r.factories[family] = factory
	return func() {
		r.mtx.Lock()
		defer r.mtx.Unlock()
		if existed {
			r.factories[family] = prev
		} else {
			delete(r.factories, family)
		}
	}
}

// Lookup returns the factory registered for family.
func (r *Registry) Lookup(family TransportFamily) (Factory, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	f, ok := r.factories[family]
	return f, ok
}

// Snapshot returns a copy of the registry contents.
func (r *Registry) Snapshot() map[TransportFamily]Factory {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	out := make(map[TransportFamily]Factory, len(r.factories))
	for k, v := range r.factories {
		out[k] = v
	}
	return out
}

// New classifies endpoint and builds a provider with the matching factory.
func (r *Registry) New(endpoint string, extra interface{}) (interface{}, error) {
	family, ok := ClassifyEndpoint(endpoint)
	if !ok {
		return nil, &UnsupportedProviderError{Input: endpoint}
	}
	factory, ok := r.Lookup(family)
	if !ok {
		return nil, &UnsupportedProviderError{Input: endpoint}
	}
	p, err := factory(endpoint, extra)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", family, err)
	}
	return p, nil
}

// Register adds factory to the DefaultRegistry.
func Register(family TransportFamily, factory Factory) {
	DefaultRegistry.Register(family, factory)
}
