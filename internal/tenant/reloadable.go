package tenant

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgnsrekt/overlay-relay/internal/relay"
)

// Reloadable wraps a registry and allows atomic replacement, so a tenant
// list can be refreshed without restarting the relay.
type Reloadable struct {
	mu      sync.RWMutex
	current relay.TenantRegistry
}

// NewReloadable creates a Reloadable with the given initial registry.
func NewReloadable(initial relay.TenantRegistry) *Reloadable {
	return &Reloadable{current: initial}
}

// Swap replaces the underlying registry and returns the old one.
func (r *Reloadable) Swap(next relay.TenantRegistry) relay.TenantRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.current
	r.current = next
	return old
}

// Current returns the registry in use.
func (r *Reloadable) Current() relay.TenantRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// ResolveCode delegates to the current registry.
func (r *Reloadable) ResolveCode(ctx context.Context, code string) (relay.Tenant, error) {
	return r.Current().ResolveCode(ctx, code)
}

// ResolveTenant delegates to the current registry.
func (r *Reloadable) ResolveTenant(ctx context.Context, idOrUsername string) (relay.Tenant, error) {
	return r.Current().ResolveTenant(ctx, idOrUsername)
}

// List delegates when the current registry can enumerate tenants.
func (r *Reloadable) List(ctx context.Context) ([]relay.Tenant, error) {
	lister, ok := r.Current().(Lister)
	if !ok {
		return nil, fmt.Errorf("tenant registry %T cannot list tenants", r.Current())
	}
	return lister.List(ctx)
}

// Compile-time interface verification
var (
	_ relay.TenantRegistry = (*Reloadable)(nil)
	_ Lister               = (*Reloadable)(nil)
)
