package vendors

import (
	"fmt"
	"sync"

	"github.com/engagic/engagic/pkg/models"
)

// Registry maps vendor names to adapters. It is the only component that
// knows which vendors exist.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.Vendor]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.Vendor]Adapter)}
}

// Register adds an adapter. Registering the same vendor twice panics: that
// is a wiring bug, not a runtime condition.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.adapters[a.Name()]; dup {
		panic(fmt.Sprintf("vendors: adapter %q registered twice", a.Name()))
	}
	r.adapters[a.Name()] = a
}

// Get returns the adapter for a vendor.
func (r *Registry) Get(vendor models.Vendor) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[vendor]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for vendor %q", vendor)
	}
	return a, nil
}

// Vendors lists the registered vendor names.
func (r *Registry) Vendors() []models.Vendor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]models.Vendor, 0, len(r.adapters))
	for v := range r.adapters {
		names = append(names, v)
	}
	return names
}

// DefaultRegistry builds the registry with every supported adapter sharing
// one HTTP client.
func DefaultRegistry(client *Client) *Registry {
	r := NewRegistry()
	r.Register(NewLegistar(client))
	r.Register(NewPrimeGov(client))
	r.Register(NewGranicus(client))
	r.Register(NewCivicClerk(client))
	r.Register(NewNovusAgenda(client))
	r.Register(NewCivicPlus(client))
	r.Register(NewEScribe(client))
	return r
}
