package models

import (
	"net/http"
	"sync/atomic"

	"github.com/casualjim/aviary/internal/registry"
	"github.com/casualjim/aviary/provider"
)

// Registry maps logical model names to provider clients. It is constructed
// explicitly and threaded through the engine rather than living as ambient
// global state. Clients hold no per-call state, so one instance per logical
// model name serves the whole process.
type Registry struct {
	clients     registry.Registry[provider.Provider]
	initialized atomic.Bool
}

// New creates an empty, uninitialized registry.
func New() *Registry {
	return &Registry{clients: registry.New[provider.Provider]()}
}

// Initialize registers the given clients and marks the registry ready.
// A second call is a no-op; the registered set never changes mid-flight.
func (r *Registry) Initialize(clients map[string]provider.Provider) {
	if !r.initialized.CompareAndSwap(false, true) {
		return
	}
	for name, client := range clients {
		r.clients.Add(name, client)
	}
}

// Get returns the client registered for the logical model name. It fails
// with a ModelNotFound error when the registry has not been initialized or
// the name is unregistered.
func (r *Registry) Get(name string) (provider.Provider, error) {
	if !r.initialized.Load() {
		return nil, provider.NewAPIError(provider.ModelNotFound, "registry", "not_initialized",
			http.StatusNotFound, "model registry is not initialized")
	}
	client, ok := r.clients.Get(name)
	if !ok {
		return nil, provider.NewAPIError(provider.ModelNotFound, "registry", "unknown_model",
			http.StatusNotFound, "no client registered for model "+name)
	}
	return client, nil
}

// Names lists the registered logical model names.
func (r *Registry) Names() []string {
	return r.clients.Names()
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	return r.clients.Len()
}

// Shutdown drops all client references and returns the registry to its
// uninitialized state.
func (r *Registry) Shutdown() {
	r.clients.Clear()
	r.initialized.Store(false)
}
