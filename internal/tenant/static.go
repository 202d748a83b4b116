// Package tenant provides tenant registry implementations for join resolution.
package tenant

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dgnsrekt/overlay-relay/internal/relay"
)

// Lister is implemented by registries that can enumerate their tenants.
type Lister interface {
	List(ctx context.Context) ([]relay.Tenant, error)
}

// Static is an in-memory registry keyed by code, ID and username.
type Static struct {
	mu         sync.RWMutex
	byCode     map[string]relay.Tenant
	byID       map[string]relay.Tenant
	byUsername map[string]relay.Tenant
}

// NewStatic creates a registry from tenants. A tenant without an ID uses
// its username as ID.
func NewStatic(tenants []relay.Tenant) *Static {
	s := &Static{
		byCode:     make(map[string]relay.Tenant),
		byID:       make(map[string]relay.Tenant),
		byUsername: make(map[string]relay.Tenant),
	}
	for _, t := range tenants {
		s.put(t)
	}
	return s
}

// Put adds or replaces a tenant.
func (s *Static) Put(t relay.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byID[normalizeID(t)]; ok {
		s.remove(old)
	}
	s.put(t)
}

// Delete removes a tenant by ID.
func (s *Static) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if ok {
		s.remove(t)
	}
	return ok
}

// ResolveCode implements relay.TenantRegistry.
func (s *Static) ResolveCode(_ context.Context, code string) (relay.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.byCode[code]; ok {
		return t, nil
	}
	return relay.Tenant{}, fmt.Errorf("code %q: %w", code, relay.ErrTenantNotFound)
}

// ResolveTenant implements relay.TenantRegistry. IDs match exactly,
// usernames case-insensitively.
func (s *Static) ResolveTenant(_ context.Context, idOrUsername string) (relay.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.byID[idOrUsername]; ok {
		return t, nil
	}
	if t, ok := s.byUsername[strings.ToLower(idOrUsername)]; ok {
		return t, nil
	}
	return relay.Tenant{}, fmt.Errorf("tenant %q: %w", idOrUsername, relay.ErrTenantNotFound)
}

// List returns all tenants sorted by ID.
func (s *Static) List(_ context.Context) ([]relay.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]relay.Tenant, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Len returns the number of tenants.
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Static) put(t relay.Tenant) {
	t.ID = normalizeID(t)
	s.byID[t.ID] = t
	if t.Code != "" {
		s.byCode[t.Code] = t
	}
	if t.Username != "" {
		s.byUsername[strings.ToLower(t.Username)] = t
	}
}

func (s *Static) remove(t relay.Tenant) {
	delete(s.byID, t.ID)
	if t.Code != "" {
		delete(s.byCode, t.Code)
	}
	if t.Username != "" {
		delete(s.byUsername, strings.ToLower(t.Username))
	}
}

func normalizeID(t relay.Tenant) string {
	if t.ID != "" {
		return t.ID
	}
	return t.Username
}

// Compile-time interface verification
var (
	_ relay.TenantRegistry = (*Static)(nil)
	_ Lister               = (*Static)(nil)
)
