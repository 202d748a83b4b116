package relay

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// tenantSet is one tenant's subscribers. Once dead it has been (or is
// about to be) removed from the registry and must not be written to.
type tenantSet struct {
	mu   sync.Mutex
	subs map[string]Subscriber
	dead bool
}

// Registry tracks live subscribers globally and per tenant.
//
// Subscribers registered without a tenant live in the global set.
// Subscribers registered with a tenant live only in that tenant's set.
// Each tenant set has its own lock; mu only guards the tenants map.
type Registry struct {
	mu      sync.RWMutex
	tenants map[string]*tenantSet

	globalMu sync.RWMutex
	global   map[string]Subscriber

	logger *zap.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		tenants: make(map[string]*tenantSet),
		global:  make(map[string]Subscriber),
		logger:  logger,
	}
}

// Register adds sub to the global set, or to tenant's set when tenant is
// non-empty. Registering the same subscriber twice is a no-op.
func (r *Registry) Register(sub Subscriber, tenant string) {
	if tenant == "" {
		r.globalMu.Lock()
		r.global[sub.ID()] = sub
		r.globalMu.Unlock()
		r.logger.Debug("subscriber registered", zap.String("subscriberID", sub.ID()))
		return
	}

	for {
		set := r.setFor(tenant)
		set.mu.Lock()
		if set.dead {
			set.mu.Unlock()
			r.replaceDead(tenant, set)
			continue
		}
		set.subs[sub.ID()] = sub
		set.mu.Unlock()
		break
	}

	r.logger.Debug("subscriber registered",
		zap.String("subscriberID", sub.ID()),
		zap.String("tenant", tenant),
	)
}

// Unregister removes sub from the global set, or from tenant's set when
// tenant is non-empty. Safe to call repeatedly and for a tenant the
// subscriber never joined.
func (r *Registry) Unregister(sub Subscriber, tenant string) {
	if tenant == "" {
		r.globalMu.Lock()
		_, ok := r.global[sub.ID()]
		delete(r.global, sub.ID())
		r.globalMu.Unlock()
		if ok {
			r.logger.Debug("subscriber unregistered", zap.String("subscriberID", sub.ID()))
		}
		return
	}

	r.mu.RLock()
	set, ok := r.tenants[tenant]
	r.mu.RUnlock()
	if !ok {
		return
	}

	set.mu.Lock()
	_, present := set.subs[sub.ID()]
	delete(set.subs, sub.ID())
	empty := len(set.subs) == 0 && !set.dead
	if empty {
		set.dead = true
	}
	set.mu.Unlock()

	if empty {
		r.mu.Lock()
		if r.tenants[tenant] == set {
			delete(r.tenants, tenant)
		}
		r.mu.Unlock()
	}

	if present {
		r.logger.Debug("subscriber unregistered",
			zap.String("subscriberID", sub.ID()),
			zap.String("tenant", tenant),
			zap.Bool("tenantRemoved", empty),
		)
	}
}

// SubscribersFor returns a copy of tenant's live subscribers.
func (r *Registry) SubscribersFor(tenant string) []Subscriber {
	r.mu.RLock()
	set, ok := r.tenants[tenant]
	r.mu.RUnlock()
	if !ok {
		return []Subscriber{}
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	out := make([]Subscriber, 0, len(set.subs))
	for _, sub := range set.subs {
		out = append(out, sub)
	}
	return out
}

// Global returns a copy of the subscribers registered without a tenant.
func (r *Registry) Global() []Subscriber {
	r.globalMu.RLock()
	defer r.globalMu.RUnlock()
	out := make([]Subscriber, 0, len(r.global))
	for _, sub := range r.global {
		out = append(out, sub)
	}
	return out
}

// Tenants returns the tenants that currently have at least one subscriber.
func (r *Registry) Tenants() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tenants := make([]string, 0, len(r.tenants))
	for tenant := range r.tenants {
		tenants = append(tenants, tenant)
	}
	sort.Strings(tenants)
	return tenants
}

// TenantCount returns the number of tenant sets held by the registry.
func (r *Registry) TenantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tenants)
}

// Count returns the number of subscribers for tenant, or the total across
// the global set and every tenant when tenant is empty.
func (r *Registry) Count(tenant string) int {
	if tenant != "" {
		r.mu.RLock()
		set, ok := r.tenants[tenant]
		r.mu.RUnlock()
		if !ok {
			return 0
		}
		set.mu.Lock()
		defer set.mu.Unlock()
		return len(set.subs)
	}

	r.globalMu.RLock()
	total := len(r.global)
	r.globalMu.RUnlock()

	r.mu.RLock()
	sets := make([]*tenantSet, 0, len(r.tenants))
	for _, set := range r.tenants {
		sets = append(sets, set)
	}
	r.mu.RUnlock()

	for _, set := range sets {
		set.mu.Lock()
		total += len(set.subs)
		set.mu.Unlock()
	}
	return total
}

// setFor returns tenant's set, creating it if absent.
func (r *Registry) setFor(tenant string) *tenantSet {
	r.mu.RLock()
	set, ok := r.tenants[tenant]
	r.mu.RUnlock()
	if ok {
		return set
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.tenants[tenant]; ok {
		return set
	}
	set = &tenantSet{subs: make(map[string]Subscriber)}
	r.tenants[tenant] = set
	return set
}

// replaceDead swaps a dead set for a fresh one if it is still installed.
func (r *Registry) replaceDead(tenant string, dead *tenantSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tenants[tenant] == dead {
		r.tenants[tenant] = &tenantSet{subs: make(map[string]Subscriber)}
	}
}
