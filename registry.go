package stitch

import (
	"context"
	"fmt"
	"sync"
)

// Registry holds the app clients of a hosting application. It replaces a
// process-wide map of named clients: the application creates one, passes it
// where needed and closes it on shutdown.
type Registry struct {
	mu        sync.RWMutex
	clients   map[string]*AppClient
	defaultID string
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*AppClient)}
}

// InitializeAppClient creates and registers a client for appID.
func (r *Registry) InitializeAppClient(ctx context.Context, appID string, config AppClientConfiguration) (*AppClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[appID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAppClientExists, appID)
	}
	client, err := NewAppClient(ctx, appID, config)
	if err != nil {
		return nil, err
	}
	r.clients[appID] = client
	return client, nil
}

// InitializeDefaultAppClient is InitializeAppClient that also makes the client the default.
func (r *Registry) InitializeDefaultAppClient(ctx context.Context, appID string, config AppClientConfiguration) (*AppClient, error) {
	client, err := r.InitializeAppClient(ctx, appID, config)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.defaultID = appID
	r.mu.Unlock()
	return client, nil
}

// AppClient returns the client registered for appID.
func (r *Registry) AppClient(appID string) (*AppClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[appID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAppClientNotFound, appID)
	}
	return client, nil
}

// DefaultAppClient returns the default client.
func (r *Registry) DefaultAppClient() (*AppClient, error) {
	r.mu.RLock()
	id := r.defaultID
	r.mu.RUnlock()
	if id == "" {
		return nil, fmt.Errorf("%w: no default app client", ErrAppClientNotFound)
	}
	return r.AppClient(id)
}

// HasAppClient reports whether a client is registered for appID.
func (r *Registry) HasAppClient(appID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[appID]
	return ok
}

// Close closes and unregisters every client.
func (r *Registry) Close() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*AppClient)
	r.defaultID = ""
	r.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}
}
