// Package adapter defines the service adapter interfaces for sgmap.
//
// An adapter answers one question for one service type: which resources of
// that type are members of a given security group. Two strategies exist.
// Lookupable adapters ask the provider with a server-side filter on every
// call. Preloadable adapters fetch the full inventory once and answer from
// an in-memory Index.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yairfalse/sgmap/pkg/resource"
)

// ErrUnknownService is returned when no adapter is registered for a service type.
var ErrUnknownService = errors.New("no adapter registered for service type")

// Adapter is the contract every service adapter implements.
type Adapter interface {
	// Type returns the service type this adapter resolves.
	Type() resource.ServiceType

	// ServiceNamesInGroup returns the names of all resources of this type that
	// are members of the group. No match is an empty slice, not an error.
	ServiceNamesInGroup(ctx context.Context, groupID string) ([]string, error)
}

// Lookupable adapters resolve a group with one filtered provider query per call.
type Lookupable interface {
	Adapter

	// ServicesInGroup issues a filtered query for the group. Nothing is cached.
	ServicesInGroup(ctx context.Context, groupID string) ([]resource.Resource, error)
}

// Preloadable adapters load their full inventory once and index it by group.
type Preloadable interface {
	Adapter

	// LoadServices builds the index if it has not been built yet.
	LoadServices(ctx context.Context) error

	// Loaded reports whether the index has been built.
	Loaded() bool
}

// Names projects records onto their display names, keeping order.
func Names(records []resource.Resource) []string {
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.DisplayName())
	}
	return names
}

// Registry holds one adapter per service type for a single region.
type Registry struct {
	mu       sync.RWMutex
	adapters map[resource.ServiceType]Adapter
	order    []resource.ServiceType
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[resource.ServiceType]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter, replacing any adapter of the same type.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[a.Type()]; !ok {
		r.order = append(r.order, a.Type())
	}
	r.adapters[a.Type()] = a
}

// Lookup returns the adapter for a service type, or ErrUnknownService.
func (r *Registry) Lookup(t resource.ServiceType) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, t)
	}
	return a, nil
}

// Types returns all registered service types in registration order.
func (r *Registry) Types() []resource.ServiceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]resource.ServiceType, len(r.order))
	copy(types, r.order)
	return types
}
