package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds the configured transports by name.
type Registry struct {
	mu         sync.RWMutex
	transports map[string]Transport
	started    []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		transports: map[string]Transport{},
	}
}

// Register adds a transport to the registry.
func (r *Registry) Register(t Transport) error {
	if t == nil {
		return errors.New("transport is nil")
	}
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return errors.New("transport name is required")
	}
	if strings.Contains(name, "://") {
		return fmt.Errorf("invalid transport name: %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transports[name]; exists {
		return fmt.Errorf("transport already registered: %s", name)
	}
	r.transports[name] = t
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(t Transport) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns the transport registered under name.
func (r *Registry) Get(name string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[strings.TrimSpace(name)]
	return t, ok
}

// Webhook returns the transport registered under name if it accepts HTTP requests.
func (r *Registry) Webhook(name string) (Webhook, bool) {
	t, ok := r.Get(name)
	if !ok {
		return nil, false
	}
	w, ok := t.(Webhook)
	return w, ok
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]string, 0, len(r.transports))
	for name := range r.transports {
		items = append(items, name)
	}
	sort.Strings(items)
	return items
}

// StartAll starts every transport in name order. If one fails, those
// already started are stopped again.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, name := range r.Names() {
		t, _ := r.Get(name)
		if err := t.Start(ctx); err != nil {
			stopErr := r.StopAll(ctx)
			return errors.Join(fmt.Errorf("start transport %s: %w", name, err), stopErr)
		}
		r.mu.Lock()
		r.started = append(r.started, name)
		r.mu.Unlock()
	}
	return nil
}

// StopAll stops started transports in reverse start order.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	started := r.started
	r.started = nil
	r.mu.Unlock()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		t, ok := r.Get(started[i])
		if !ok {
			continue
		}
		if err := t.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop transport %s: %w", started[i], err))
		}
	}
	return errors.Join(errs...)
}
